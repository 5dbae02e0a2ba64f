package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EvaluatorCollector bundles Prometheus metrics for Gaussian parameter
// evaluation. It satisfies core.MetricsRecorder.
type EvaluatorCollector struct {
	gatherer prometheus.Gatherer

	SourcesTotal   *prometheus.CounterVec
	BatchDurations prometheus.Histogram
	BatchSize      prometheus.Gauge
	ReferenceRA    prometheus.Gauge
	ReferenceDec   prometheus.Gauge
}

// NewEvaluatorCollector registers evaluator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEvaluatorCollector(reg prometheus.Registerer) (*EvaluatorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sources := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gaussian_sources_total",
		Help: "Sources processed by the Gaussian parameter evaluator, labeled by outcome.",
	}, []string{"outcome"})
	sources, err := registerCounterVec(reg, sources, "gaussian_sources_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gaussian_batch_duration_seconds",
		Help:    "Wall-clock duration of one Gaussian parameter evaluation call.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "gaussian_batch_duration_seconds")
	if err != nil {
		return nil, err
	}

	size, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gaussian_batch_size",
		Help: "Number of sources in the most recent evaluation call.",
	}), "gaussian_batch_size")
	if err != nil {
		return nil, err
	}

	refRA, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gaussian_reference_ra_radians",
		Help: "Right ascension of the tangent-plane phase reference in use.",
	}), "gaussian_reference_ra_radians")
	if err != nil {
		return nil, err
	}
	refDec, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gaussian_reference_dec_radians",
		Help: "Declination of the tangent-plane phase reference in use.",
	}), "gaussian_reference_dec_radians")
	if err != nil {
		return nil, err
	}

	return &EvaluatorCollector{
		gatherer:       gatherer,
		SourcesTotal:   sources,
		BatchDurations: durations,
		BatchSize:      size,
		ReferenceRA:    refRA,
		ReferenceDec:   refDec,
	}, nil
}

// ObserveBatch records the size and duration of one evaluation call.
func (c *EvaluatorCollector) ObserveBatch(numSources int, d time.Duration) {
	if c == nil {
		return
	}
	if c.BatchSize != nil {
		c.BatchSize.Set(float64(numSources))
	}
	if c.BatchDurations != nil {
		c.BatchDurations.Observe(d.Seconds())
	}
}

// IncSourceOutcome counts one source under the given outcome label.
func (c *EvaluatorCollector) IncSourceOutcome(label string) {
	if c == nil || c.SourcesTotal == nil {
		return
	}
	if label == "" {
		label = "unknown"
	}
	c.SourcesTotal.WithLabelValues(label).Inc()
}

// SetReference publishes the phase reference of the current run.
func (c *EvaluatorCollector) SetReference(ra, dec float64) {
	if c == nil {
		return
	}
	if c.ReferenceRA != nil {
		c.ReferenceRA.Set(ra)
	}
	if c.ReferenceDec != nil {
		c.ReferenceDec.Set(dec)
	}
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EvaluatorCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EvaluatorCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
