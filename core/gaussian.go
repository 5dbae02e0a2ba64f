package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/skymodel/internal/logging"
	"github.com/signalsfoundry/skymodel/model"
)

const tracerName = "github.com/signalsfoundry/skymodel/core"

// fwhmToInvStd2 is π²/(2 ln 2).
const fwhmToInvStd2 = 7.11941466249375271693034

// The idealised ellipse is sampled every 60° of parametric angle.
const (
	ellipseSampleStepDeg = 60
	ellipseNumPoints     = 360 / ellipseSampleStepDeg
)

// RotateFunc re-centres points from (0, 0) onto (ra, dec) in place.
type RotateFunc func(lon, lat []float64, ra, dec float64) error

// FitFunc recovers an ellipse from boundary samples. It must wrap
// ErrEllipseFitFailed when no stable fit exists.
type FitFunc func(l, m []float64) (model.Ellipse, error)

// MetricsRecorder receives per-call evaluation statistics.
type MetricsRecorder interface {
	ObserveBatch(numSources int, d time.Duration)
	IncSourceOutcome(label string)
}

// GaussianEvaluator converts sky-plane Gaussian source shapes into
// tangent-plane quadratic-form coefficients.
type GaussianEvaluator struct {
	log     logging.Logger
	metrics MetricsRecorder
	workers int
	rotate  RotateFunc
	fit     FitFunc
}

// EvaluatorOption configures a GaussianEvaluator.
type EvaluatorOption func(*GaussianEvaluator)

// WithLogger sets the logger for fit diagnostics. Without it, the logger
// stored on the call context is used, if any.
func WithLogger(l logging.Logger) EvaluatorOption {
	return func(e *GaussianEvaluator) { e.log = l }
}

// WithMetricsRecorder wires a recorder for batch and outcome metrics.
func WithMetricsRecorder(r MetricsRecorder) EvaluatorOption {
	return func(e *GaussianEvaluator) { e.metrics = r }
}

// WithWorkers evaluates sources on n goroutines, each with private scratch
// buffers. Values below 2 keep the single-threaded loop.
func WithWorkers(n int) EvaluatorOption {
	return func(e *GaussianEvaluator) { e.workers = n }
}

// WithRotator replaces the sphere rotation step.
func WithRotator(fn RotateFunc) EvaluatorOption {
	return func(e *GaussianEvaluator) {
		if fn != nil {
			e.rotate = fn
		}
	}
}

// WithEllipseFitter replaces the ellipse fitting step.
func WithEllipseFitter(fn FitFunc) EvaluatorOption {
	return func(e *GaussianEvaluator) {
		if fn != nil {
			e.fit = fn
		}
	}
}

// NewGaussianEvaluator constructs an evaluator using RotatePoints and
// FitEllipse unless overridden.
func NewGaussianEvaluator(opts ...EvaluatorOption) *GaussianEvaluator {
	e := &GaussianEvaluator{
		workers: 1,
		rotate:  RotatePoints,
		fit:     FitEllipse,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateGaussianSourceParameters evaluates the Gaussian coefficients of the
// first numSources sources with a default evaluator, writing a, b and c in
// place. Sources with both axes zero, and sources whose projected ellipse
// cannot be fitted, are left untouched.
func EvaluateGaussianSourceParameters(ctx context.Context, numSources int,
	gaussianA, gaussianB, gaussianC, fwhmMajor, fwhmMinor, positionAngle, ra, dec *model.Column,
	ra0, dec0 float64) error {
	_, err := NewGaussianEvaluator().Evaluate(ctx, numSources,
		model.GaussianCoefficients{A: gaussianA, B: gaussianB, C: gaussianC},
		model.SourceBatch{RA: ra, Dec: dec, MajorFWHM: fwhmMajor, MinorFWHM: fwhmMinor, PositionAngle: positionAngle},
		model.Reference{RA: ra0, Dec: dec0},
	)
	return err
}

// Evaluate processes the first numSources sources of in against the tangent
// plane centred on ref, writing coefficients for each successfully fitted
// source into out.
//
// All preconditions are checked before any source is touched; on failure
// nothing is written and no outcomes are returned. Fit failures skip the
// source and processing continues. Any other error aborts the call: the
// outcomes slice is still returned, with the failing source marked fatal and
// unreached sources left pending.
func (e *GaussianEvaluator) Evaluate(ctx context.Context, numSources int,
	out model.GaussianCoefficients, in model.SourceBatch, ref model.Reference) ([]model.SourceOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateColumns(numSources, out, in); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "EvaluateGaussianParameters",
		trace.WithAttributes(
			attribute.Int("num_sources", numSources),
			attribute.Float64("ra0", ref.RA),
			attribute.Float64("dec0", ref.Dec),
		))
	defer span.End()

	log := e.logger(ctx)
	start := time.Now()

	outcomes := make([]model.SourceOutcome, numSources)
	for i := range outcomes {
		outcomes[i].Index = i
	}

	job := batchJob{
		in: columnsOf(in),
		out: outputColumns{
			a: out.A.Float64(),
			b: out.B.Float64(),
			c: out.C.Float64(),
		},
		ref:      ref,
		outcomes: outcomes,
		log:      log,
	}

	var err error
	if workers := min(e.workers, numSources); workers > 1 {
		err = e.runParallel(ctx, &job, workers)
	} else {
		err = e.runSequential(ctx, &job, 0, numSources, newEllipseScratch(), nil)
	}

	summary := model.SummarizeOutcomes(outcomes)
	span.SetAttributes(
		attribute.Int("sources_succeeded", summary.Succeeded),
		attribute.Int("sources_skipped", summary.Skipped()),
		attribute.Int("sources_fit_failed", summary.FitFailed),
	)
	if e.metrics != nil {
		e.metrics.ObserveBatch(numSources, time.Since(start))
		for _, o := range outcomes {
			if o.Kind != model.OutcomePending {
				e.metrics.IncSourceOutcome(o.Label())
			}
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcomes, err
	}
	return outcomes, nil
}

func (e *GaussianEvaluator) logger(ctx context.Context) logging.Logger {
	if e.log != nil {
		return e.log
	}
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return logging.Noop()
}

type inputColumns struct {
	ra, dec, major, minor, pa []float64
}

type outputColumns struct {
	a, b, c []float64
}

func columnsOf(in model.SourceBatch) inputColumns {
	return inputColumns{
		ra:    in.RA.Float64(),
		dec:   in.Dec.Float64(),
		major: in.MajorFWHM.Float64(),
		minor: in.MinorFWHM.Float64(),
		pa:    in.PositionAngle.Float64(),
	}
}

// batchJob is the read-only view of one Evaluate call shared by workers.
// Workers write only to their own indices of out and outcomes.
type batchJob struct {
	in       inputColumns
	out      outputColumns
	ref      model.Reference
	outcomes []model.SourceOutcome
	log      logging.Logger
}

// ellipseScratch holds the per-source sample buffers. One is allocated per
// worker and overwritten on every source.
type ellipseScratch struct {
	l, m, lon, lat []float64
}

func newEllipseScratch() *ellipseScratch {
	buf := make([]float64, 4*ellipseNumPoints)
	return &ellipseScratch{
		l:   buf[0*ellipseNumPoints : 1*ellipseNumPoints],
		m:   buf[1*ellipseNumPoints : 2*ellipseNumPoints],
		lon: buf[2*ellipseNumPoints : 3*ellipseNumPoints],
		lat: buf[3*ellipseNumPoints : 4*ellipseNumPoints],
	}
}

// runSequential evaluates sources [from, to). stop, when non-nil, is polled
// between sources so that a fatal error in another worker halts this one.
func (e *GaussianEvaluator) runSequential(ctx context.Context, job *batchJob, from, to int,
	scratch *ellipseScratch, stop *atomic.Bool) error {
	for i := from; i < to; i++ {
		if stop != nil && stop.Load() {
			return nil
		}
		outcome := e.evaluateSource(ctx, job, i, scratch)
		job.outcomes[i] = outcome
		if outcome.Kind == model.OutcomeFatal {
			return outcome.Err
		}
	}
	return nil
}

func (e *GaussianEvaluator) runParallel(ctx context.Context, job *batchJob, workers int) error {
	n := len(job.outcomes)
	chunk := (n + workers - 1) / workers

	var (
		wg       sync.WaitGroup
		stop     atomic.Bool
		once     sync.Once
		firstErr error
	)
	for from := 0; from < n; from += chunk {
		to := min(from+chunk, n)
		wg.Add(1)
		go func(from, to int) {
			defer wg.Done()
			if err := e.runSequential(ctx, job, from, to, newEllipseScratch(), &stop); err != nil {
				once.Do(func() { firstErr = err })
				stop.Store(true)
			}
		}(from, to)
	}
	wg.Wait()
	return firstErr
}

func (e *GaussianEvaluator) evaluateSource(ctx context.Context, job *batchJob, i int, s *ellipseScratch) model.SourceOutcome {
	outcome := model.SourceOutcome{Index: i}
	ra, dec := job.in.ra[i], job.in.dec[i]
	shape := model.Ellipse{
		Major:         job.in.major[i],
		Minor:         job.in.minor[i],
		PositionAngle: job.in.pa[i],
	}

	// TODO: project a source with exactly one zero axis as a line segment.
	// It currently takes the ellipse path, where the fit fails and it is skipped.
	if shape.IsPoint() {
		outcome.Kind = model.OutcomeSkipped
		outcome.Reason = model.SkipPointSource
		return outcome
	}

	fatal := func(step string, err error) model.SourceOutcome {
		outcome.Kind = model.OutcomeFatal
		outcome.Err = fmt.Errorf("source %d: %s: %w", i, step, err)
		return outcome
	}

	sampleEllipse(shape, s.l, s.m)
	if err := SphFromLM(0, 0, s.l, s.m, s.lon, s.lat); err != nil {
		return fatal("project to sphere", err)
	}
	if err := e.rotate(s.lon, s.lat, ra, dec); err != nil {
		return fatal("rotate", err)
	}
	if err := SphToLM(job.ref.RA, job.ref.Dec, s.lon, s.lat, s.l, s.m); err != nil {
		return fatal("re-project", err)
	}

	apparent, err := e.fit(s.l, s.m)
	if errors.Is(err, ErrEllipseFitFailed) {
		job.log.Warn(ctx, "gaussian ellipse solution failed",
			logging.Int("source_index", i),
			logging.Err(err),
		)
		outcome.Kind = model.OutcomeSkipped
		outcome.Reason = model.SkipFitFailed
		return outcome
	} else if err != nil {
		return fatal("fit ellipse", err)
	}

	a, b, c := GaussianCoefficientsFor(apparent)
	job.out.a[i] = a
	job.out.b[i] = b
	job.out.c[i] = c

	job.log.Debug(ctx, "gaussian source evaluated",
		logging.Int("source_index", i),
		logging.Float64("major_deg", apparent.Major*180/math.Pi),
		logging.Float64("minor_deg", apparent.Minor*180/math.Pi),
		logging.Float64("position_angle_deg", apparent.PositionAngle*180/math.Pi),
	)

	outcome.Kind = model.OutcomeSucceeded
	outcome.Apparent = apparent
	outcome.A, outcome.B, outcome.C = a, b, c
	return outcome
}

// sampleEllipse writes len(l) points on the boundary of shape, centred on the
// tangent-plane origin, at 60° steps of parametric angle.
func sampleEllipse(shape model.Ellipse, l, m []float64) {
	semiMajor := shape.Major / 2
	semiMinor := shape.Minor / 2
	sinPA, cosPA := math.Sincos(shape.PositionAngle)
	for j := range l {
		t := float64(j*ellipseSampleStepDeg) * math.Pi / 180
		sinT, cosT := math.Sincos(t)
		l[j] = semiMajor*cosT*sinPA + semiMinor*sinT*cosPA
		m[j] = semiMajor*cosT*cosPA - semiMinor*sinT*sinPA
	}
}

// GaussianCoefficientsFor returns the coefficients (a, b, c) of the
// quadratic form exp(-(a l² + 2b lm + c m²)) for a Gaussian of the given
// FWHM shape.
func GaussianCoefficientsFor(shape model.Ellipse) (a, b, c float64) {
	invStdMaj2 := shape.Major * shape.Major * fwhmToInvStd2
	invStdMin2 := shape.Minor * shape.Minor * fwhmToInvStd2
	sinPA, cosPA := math.Sincos(shape.PositionAngle)
	cosPA2 := cosPA * cosPA
	sinPA2 := sinPA * sinPA
	sin2PA := math.Sin(2 * shape.PositionAngle)

	a = cosPA2*invStdMin2/2 + sinPA2*invStdMaj2/2
	b = -sin2PA*invStdMin2/4 + sin2PA*invStdMaj2/4
	c = sinPA2*invStdMin2/2 + cosPA2*invStdMaj2/2
	return a, b, c
}

// validateColumns checks every precondition of Evaluate, in order: missing
// columns, negative count, mixed precision, short columns, device
// residency, and unimplemented precision.
func validateColumns(numSources int, out model.GaussianCoefficients, in model.SourceBatch) error {
	cols := append(out.Columns(), in.Columns()...)

	for _, c := range cols {
		if c.Column == nil {
			return fmt.Errorf("%w: column %s is nil", ErrInvalidArgument, c.Name)
		}
	}
	if numSources < 0 {
		return fmt.Errorf("%w: negative source count %d", ErrInvalidArgument, numSources)
	}

	precision := cols[0].Column.Precision()
	for _, c := range cols[1:] {
		if c.Column.Precision() != precision {
			return fmt.Errorf("%w: column %s is %s precision, %s is %s",
				ErrBadDataType, c.Name, c.Column.Precision(), cols[0].Name, precision)
		}
	}

	for _, c := range cols {
		if n := c.Column.Len(); n < numSources {
			return fmt.Errorf("%w: column %s has %d elements, need %d",
				ErrDimensionMismatch, c.Name, n, numSources)
		}
	}

	for _, c := range cols {
		if loc := c.Column.Location(); loc != model.LocationHost {
			return fmt.Errorf("%w: column %s is in %s memory", ErrBadLocation, c.Name, loc)
		}
	}

	if precision != model.PrecisionDouble {
		return fmt.Errorf("%w: %s precision gaussian evaluation", ErrFunctionNotAvailable, precision)
	}
	return nil
}
