package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/skymodel/core"
	"github.com/signalsfoundry/skymodel/model"
)

var _ core.MetricsRecorder = (*EvaluatorCollector)(nil)

func TestEvaluatorCollectorRecordsBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEvaluatorCollector(reg)
	if err != nil {
		t.Fatalf("NewEvaluatorCollector: %v", err)
	}

	collector.ObserveBatch(12, 20*time.Millisecond)
	collector.IncSourceOutcome("succeeded")
	collector.IncSourceOutcome("succeeded")
	collector.IncSourceOutcome("fit_failed")
	collector.IncSourceOutcome("")

	if got := testutil.ToFloat64(collector.BatchSize); got != 12 {
		t.Fatalf("gaussian_batch_size = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("succeeded")); got != 2 {
		t.Fatalf("gaussian_sources_total{succeeded} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("fit_failed")); got != 1 {
		t.Fatalf("gaussian_sources_total{fit_failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("gaussian_sources_total{unknown} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "gaussian_batch_duration_seconds", nil); count != 1 {
		t.Fatalf("gaussian_batch_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestEvaluatorCollectorWiredIntoEvaluator(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEvaluatorCollector(reg)
	if err != nil {
		t.Fatalf("NewEvaluatorCollector: %v", err)
	}

	const deg = 0.017453292519943295
	in := model.SourceBatch{
		RA:            model.Float64Column([]float64{0, 0}),
		Dec:           model.Float64Column([]float64{0, 0}),
		MajorFWHM:     model.Float64Column([]float64{0, deg}),
		MinorFWHM:     model.Float64Column([]float64{0, deg / 2}),
		PositionAngle: model.Float64Column([]float64{0, 0.3}),
	}
	out := model.NewGaussianCoefficients(2)

	ev := core.NewGaussianEvaluator(core.WithMetricsRecorder(collector))
	if _, err := ev.Evaluate(context.Background(), 2, out, in, model.Reference{}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("point_source")); got != 1 {
		t.Fatalf("gaussian_sources_total{point_source} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("succeeded")); got != 1 {
		t.Fatalf("gaussian_sources_total{succeeded} = %v, want 1", got)
	}
}

func TestNewEvaluatorCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEvaluatorCollector(reg)
	if err != nil {
		t.Fatalf("first NewEvaluatorCollector: %v", err)
	}
	second, err := NewEvaluatorCollector(reg)
	if err != nil {
		t.Fatalf("second NewEvaluatorCollector: %v", err)
	}

	first.IncSourceOutcome("succeeded")
	second.IncSourceOutcome("succeeded")
	if got := testutil.ToFloat64(first.SourcesTotal.WithLabelValues("succeeded")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *EvaluatorCollector
	c.ObserveBatch(1, time.Millisecond)
	c.IncSourceOutcome("succeeded")
	c.SetReference(1, 2)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector should have nil gatherer")
	}
}

func TestMetricsHandlerExposesEvaluatorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEvaluatorCollector(reg)
	if err != nil {
		t.Fatalf("NewEvaluatorCollector: %v", err)
	}
	collector.ObserveBatch(3, time.Millisecond)
	collector.IncSourceOutcome("succeeded")
	collector.SetReference(1.25, -0.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"gaussian_sources_total",
		"gaussian_batch_duration_seconds",
		"gaussian_batch_size 3",
		"gaussian_reference_ra_radians 1.25",
		"gaussian_reference_dec_radians -0.5",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
