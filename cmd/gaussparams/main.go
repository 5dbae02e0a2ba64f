// Command gaussparams evaluates tangent-plane Gaussian coefficients for the
// extended sources of a sky model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/skymodel/core"
	"github.com/signalsfoundry/skymodel/internal/logging"
	"github.com/signalsfoundry/skymodel/internal/observability"
	"github.com/signalsfoundry/skymodel/internal/skymodel"
	"github.com/signalsfoundry/skymodel/kb"
	"github.com/signalsfoundry/skymodel/model"
	"github.com/signalsfoundry/skymodel/timectrl"
)

const degToRad = math.Pi / 180

type options struct {
	skyPath     string
	ra0, dec0   float64 // degrees
	zenithLon   float64 // degrees
	zenithLat   float64 // degrees
	epoch       time.Time
	drift       time.Duration
	tick        time.Duration
	workers     int
	format      skymodel.Format
	outPath     string
	metricsAddr string
}

// zenith reports whether the phase reference tracks the zenith.
func (o options) zenith() bool { return !o.epoch.IsZero() || o.drift > 0 }

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("gaussparams", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts    options
		rawTime string
		rawFmt  string
	)
	fs.StringVar(&opts.skyPath, "sky", "", "Path to a sky model (text, or JSON with a .json extension)")
	fs.Float64Var(&opts.ra0, "ra0", 0, "Phase reference right ascension in degrees")
	fs.Float64Var(&opts.dec0, "dec0", 0, "Phase reference declination in degrees")
	fs.Float64Var(&opts.zenithLon, "zenith-lon", 0, "Observer longitude in degrees, east positive (zenith reference)")
	fs.Float64Var(&opts.zenithLat, "zenith-lat", 0, "Observer latitude in degrees (zenith reference)")
	fs.StringVar(&rawTime, "time", "", "Observation epoch (RFC3339); when set the reference tracks the zenith")
	fs.DurationVar(&opts.drift, "drift", 0, "Drift-scan length; re-evaluates at every -tick from -time")
	fs.DurationVar(&opts.tick, "tick", 10*time.Minute, "Drift-scan step")
	fs.IntVar(&opts.workers, "workers", 1, "Number of evaluation goroutines")
	fs.StringVar(&rawFmt, "format", "csv", "Output format: csv or json")
	fs.StringVar(&opts.outPath, "out", "-", "Output path, - for stdout")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.skyPath == "" {
		return options{}, errors.New("-sky is required")
	}
	if math.Abs(opts.dec0) > 90 || math.Abs(opts.zenithLat) > 90 {
		return options{}, errors.New("declination and latitude must be within [-90, 90] degrees")
	}
	if rawTime != "" {
		t, err := time.Parse(time.RFC3339, rawTime)
		if err != nil {
			return options{}, fmt.Errorf("-time: %w", err)
		}
		opts.epoch = t.UTC()
	}
	if opts.drift < 0 {
		return options{}, errors.New("-drift must not be negative")
	}
	if opts.drift > 0 && opts.tick <= 0 {
		return options{}, errors.New("-tick must be positive for a drift scan")
	}
	format, err := skymodel.ParseFormat(rawFmt)
	if err != nil {
		return options{}, err
	}
	opts.format = format
	return opts, nil
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "gaussparams:", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, log := logging.WithRunLogger(ctx, logging.NewFromEnv())

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	var collector *observability.EvaluatorCollector
	if opts.metricsAddr != "" {
		collector, err = observability.NewEvaluatorCollector(nil)
		if err != nil {
			log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
			return 1
		}
		if srv := serveMetrics(opts.metricsAddr, collector, log); srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}

	out, closeOut, err := openOutput(opts.outPath)
	if err != nil {
		log.Error(ctx, "failed to open output", logging.String("path", opts.outPath), logging.Err(err))
		return 1
	}
	defer closeOut()

	if err := run(ctx, opts, out, log, collector); err != nil {
		log.Error(ctx, "gaussian parameter evaluation failed", logging.Err(err))
		return 1
	}
	return 0
}

// run loads the sky model and evaluates it once, or at every epoch of a
// drift scan, writing results to w.
func run(ctx context.Context, opts options, w io.Writer, log logging.Logger, collector *observability.EvaluatorCollector) error {
	catalog, err := loadCatalog(ctx, opts.skyPath, log)
	if err != nil {
		return err
	}

	evalOpts := []core.EvaluatorOption{
		core.WithLogger(log),
		core.WithWorkers(opts.workers),
	}
	if collector != nil {
		evalOpts = append(evalOpts, core.WithMetricsRecorder(collector))
	}
	r := &runner{
		opts:      opts,
		catalog:   catalog,
		evaluator: core.NewGaussianEvaluator(evalOpts...),
		collector: collector,
		log:       log,
		w:         w,
	}

	if opts.drift <= 0 {
		return r.evaluateAt(ctx, opts.epoch)
	}

	start := opts.epoch
	if start.IsZero() {
		start = time.Now().UTC()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	tc := timectrl.NewTimeController(start, opts.tick, timectrl.Accelerated)
	tc.AddListener(func(epoch time.Time) {
		if runErr != nil {
			return
		}
		if err := r.evaluateAt(ctx, epoch); err != nil {
			runErr = err
			cancel()
		}
	})
	<-tc.Start(ctx, opts.drift)
	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}

type runner struct {
	opts      options
	catalog   *kb.SourceCatalog
	evaluator *core.GaussianEvaluator
	collector *observability.EvaluatorCollector
	log       logging.Logger
	w         io.Writer
	wrote     bool
}

func (r *runner) reference(epoch time.Time) model.Reference {
	if r.opts.zenith() {
		return core.ZenithReference(epoch, r.opts.zenithLon*degToRad, r.opts.zenithLat*degToRad)
	}
	return model.Reference{RA: r.opts.ra0 * degToRad, Dec: r.opts.dec0 * degToRad}
}

func (r *runner) evaluateAt(ctx context.Context, epoch time.Time) error {
	ref := r.reference(epoch)
	r.collector.SetReference(ref.RA, ref.Dec)

	batch, ids := r.catalog.Batch()
	n := len(ids)
	out := model.NewGaussianCoefficients(n)

	outcomes, evalErr := r.evaluator.Evaluate(ctx, n, out, batch, ref)
	if outcomes == nil {
		return evalErr
	}
	if err := r.catalog.ApplyOutcomes(ids, outcomes); err != nil {
		return err
	}

	if err := skymodel.Write(r.w, r.opts.format, skymodel.Results(epoch, ids, outcomes), !r.wrote); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	r.wrote = true

	summary := model.SummarizeOutcomes(outcomes)
	fields := []logging.Field{
		logging.Int("sources", n),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("point_sources", summary.PointSources),
		logging.Int("fit_failed", summary.FitFailed),
		logging.Float64("ra0_deg", ref.RA/degToRad),
		logging.Float64("dec0_deg", ref.Dec/degToRad),
	}
	if !epoch.IsZero() {
		fields = append(fields, logging.String("epoch", epoch.Format(time.RFC3339)))
	}
	r.log.Info(ctx, "evaluated gaussian parameters", fields...)
	return evalErr
}

func loadCatalog(ctx context.Context, path string, log logging.Logger) (*kb.SourceCatalog, error) {
	sources, err := skymodel.LoadFile(path)
	if err != nil {
		return nil, err
	}

	catalog := kb.NewSourceCatalog()
	extended := 0
	for _, s := range sources {
		if err := catalog.AddSource(s); err != nil {
			return nil, err
		}
		if !s.Shape().IsPoint() {
			extended++
		}
	}
	log.Info(ctx, "loaded sky model",
		logging.String("path", path),
		logging.Int("sources", len(sources)),
		logging.Int("extended", extended),
	)
	return catalog, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, collector *observability.EvaluatorCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
