package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/jdziat/govbench"
	"github.com/jdziat/govbench/internal/config"
	"github.com/jdziat/govbench/internal/metrics"
	"github.com/jdziat/govbench/pkg/catalog"
	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/judge"
	"github.com/jdziat/govbench/pkg/provider"
)

const (
	tracerName      = "github.com/jdziat/govbench"
	shutdownTimeout = 5 * time.Second
)

// app holds everything a stage command needs.
type app struct {
	cfg      *config.Config
	logger   govbench.StructuredLogger
	metrics  *metrics.Prometheus
	server   *http.Server
	pipeline *govbench.Pipeline
}

// newApp loads the configuration and catalogs, builds the model clients
// and the pipeline, and starts the metrics endpoint when one is set.
func newApp(ctx context.Context, path, out string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if out != "" {
		cfg.OutDir = out
	}
	if resume {
		cfg.Inference.Resume = true
		cfg.Judge.Resume = true
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	httpLogger := logger
	debug := true
	if sa, ok := logger.(*govbench.SlogAdapter); ok {
		sa = sa.With("dataset_version", cfg.DatasetVersion)
		logger, httpLogger = sa, sa.WithGroup("http")
		debug = sa.Enabled(slog.LevelDebug)
	}
	prom := metrics.NewPrometheus()

	set, err := catalog.Load(cfg.Catalogs)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalogs: %w", err)
	}

	hooked := func(next pkghttp.Doer) pkghttp.Doer {
		return pkghttp.NewHookedDoer(next, httpLogger, prom).
			Add("logging", pkghttp.LoggingHook(httpLogger), pkghttp.HookPriorityObservational).
			Add("metrics", pkghttp.MetricsHook(prom), pkghttp.HookPriorityObservational)
	}
	models, err := provider.BuildRegistry(provider.WrappedFactories(hooked), cfg.ProviderSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to build model clients: %w", err)
	}
	for _, m := range cfg.Models {
		if !debug {
			break
		}
		logger.Debug("model configured", "model_id", m.ID, "provider", m.Provider, "model", m.Model,
			"api_key", govbench.MaskCredential(m.APIKey))
	}

	p, err := govbench.New(set, models, pipelineOptions(cfg, logger, prom)...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: prom, pipeline: p}
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(ctx)
	}
	return a, nil
}

// pipelineOptions maps the file configuration onto pipeline options.
func pipelineOptions(cfg *config.Config, logger govbench.StructuredLogger, m govbench.Metrics) []govbench.ConfigOption {
	breaker := cfg.Retry.Breaker()
	opts := []govbench.ConfigOption{
		govbench.WithDatasetVersion(cfg.DatasetVersion),
		govbench.WithSeed(cfg.Seed),
		govbench.WithOutDir(cfg.OutDir),
		govbench.WithPerObligation(cfg.Render.PerObligation),
		govbench.WithKPerBase(cfg.Render.KPerBase),
		govbench.WithConstraintInjection(cfg.Enrich.InjectConstraints),
		govbench.WithMaxPromptChars(cfg.Enrich.MaxPromptChars),
		govbench.WithInference(infer.Config{
			Temperature:    cfg.Inference.Temperature,
			MaxTokens:      cfg.Inference.MaxTokens,
			SystemPrompt:   cfg.Inference.SystemPrompt,
			MaxConcurrency: cfg.Inference.MaxConcurrency,
			Resume:         cfg.Inference.Resume,
			Breaker:        breaker,
		}),
		govbench.WithJudging(judge.Config{
			Temperature:    cfg.Judge.Temperature,
			MaxTokens:      cfg.Judge.MaxTokens,
			MaxConcurrency: cfg.Judge.MaxConcurrency,
			Resume:         cfg.Judge.Resume,
			Breaker:        breaker,
		}),
		govbench.WithBackoff(cfg.Retry.Backoff()),
		govbench.WithCandidates(cfg.Candidates...),
		govbench.WithJudges(cfg.Judges...),
		govbench.WithCatalogFiles(cfg.Catalogs.Files()...),
		govbench.WithLogger(logger),
		govbench.WithMetrics(m),
		govbench.WithTracer(otel.Tracer(tracerName)),
	}
	for _, model := range cfg.Models {
		if model.RequestsPerSecond > 0 {
			opts = append(opts, govbench.WithRateLimit(model.ID, model.RequestsPerSecond))
		}
	}
	return opts
}

// newLogger builds the logger named by the logging config. The text and
// json formats return a *govbench.SlogAdapter; printf writes plain
// log.Logger lines.
func newLogger(cfg config.LoggingConfig, w io.Writer) (govbench.StructuredLogger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "printf":
		return levelFilter{
			StructuredLogger: govbench.WrapStdLogger(log.New(w, "govbench: ", log.LstdFlags|log.Lmsgprefix)),
			min:              level,
		}, nil
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return govbench.NewSlogAdapter(slog.New(handler)), nil
}

// levelFilter drops lines below min for loggers that write everything.
type levelFilter struct {
	govbench.StructuredLogger
	min slog.Level
}

func (f levelFilter) Debug(msg string, args ...any) {
	if f.min <= slog.LevelDebug {
		f.StructuredLogger.Debug(msg, args...)
	}
}

func (f levelFilter) Info(msg string, args ...any) {
	if f.min <= slog.LevelInfo {
		f.StructuredLogger.Info(msg, args...)
	}
}

func (f levelFilter) Warn(msg string, args ...any) {
	if f.min <= slog.LevelWarn {
		f.StructuredLogger.Warn(msg, args...)
	}
}

func (a *app) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint stopped", "addr", a.cfg.Metrics.Addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Addr)
}

// close stops the metrics endpoint and writes the metrics text file.
func (a *app) close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics endpoint: %w", err))
		}
	}
	if a.cfg.Metrics.TextFile != "" {
		if err := a.metrics.WriteTextFile(a.cfg.Metrics.TextFile); err != nil {
			errs = append(errs, fmt.Errorf("metrics text file: %w", err))
		}
	}
	return errors.Join(errs...)
}
