// Package infer runs scenarios against candidate models. Each model has
// its own worker and its own pair of success and failure streams, so
// workers never share state. Reruns skip scenarios already present in a
// model's success stream.
package infer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/id"
	"github.com/jdziat/govbench/pkg/provider"
	"github.com/jdziat/govbench/pkg/stream"
	"github.com/jdziat/govbench/pkg/types"
)

// Defaults for call parameters.
const (
	DefaultTemperature = 0.0
	DefaultMaxTokens   = 1024
)

// Model is one candidate model to run.
type Model struct {
	ID                string
	Client            provider.Client
	RequestsPerSecond float64
}

// Layout locates a model's output streams.
type Layout interface {
	ResponsesPath(modelID string) string
	FailuresPath(modelID string) string
}

// Config holds the call parameters of a run.
type Config struct {
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	// MaxConcurrency bounds concurrent model workers. Zero runs every
	// model at once.
	MaxConcurrency int

	// Resume keeps existing streams and skips completed scenarios.
	// Otherwise both streams are rebuilt from scratch.
	Resume bool

	// Breaker configures one circuit breaker per model. A zero
	// FailureThreshold disables it.
	Breaker pkghttp.BreakerConfig
}

// Stats counts what one model worker did.
type Stats struct {
	ModelID     string         `json:"model_id"`
	Attempted   int            `json:"attempted"`
	Skipped     int            `json:"skipped"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Calls       int            `json:"calls"`
	ByErrorType map[string]int `json:"by_error_type"`
	ByStatus    map[string]int `json:"by_status"`
}

func newStats(modelID string) *Stats {
	return &Stats{ModelID: modelID, ByErrorType: map[string]int{}, ByStatus: map[string]int{}}
}

// RecordFailure counts a failure record.
func (s *Stats) RecordFailure(f types.FailureRecord) {
	s.Failed++
	s.ByErrorType[f.ErrorType]++
	if f.StatusCode != 0 {
		s.ByStatus[strconv.Itoa(f.StatusCode)]++
	}
}

// Runner executes the inference stage.
type Runner struct {
	cfg     Config
	invoker *Invoker
	ids     *id.Generator
	logger  Logger
	metrics Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
			r.invoker.Metrics = m
		}
	}
}

// WithRetrier sets the retry policy.
func WithRetrier(rt *pkghttp.Retrier) Option {
	return func(r *Runner) {
		if rt != nil {
			r.invoker.Retrier = rt
		}
	}
}

// WithTracer sets the tracer used for call spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.invoker.Tracer = t
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.invoker.Now = now
		}
	}
}

// WithIDGenerator sets the response id generator.
func WithIDGenerator(g *id.Generator) Option {
	return func(r *Runner) {
		if g != nil {
			r.ids = g
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, opts ...Option) *Runner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	r := &Runner{
		cfg:     cfg,
		invoker: NewInvoker("infer"),
		ids:     id.NewGenerator(nil),
		logger:  nopLogger{},
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Messages builds the chat turns for a prompt.
func Messages(systemPrompt, prompt string) []types.Message {
	msgs := make([]types.Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: systemPrompt})
	}
	return append(msgs, types.Message{Role: types.RoleUser, Content: prompt})
}

// Run processes every scenario for every model and returns per-model stats
// keyed by model id. Per-item failures are recorded in the failure streams,
// not returned; Run fails only on stream I/O errors or cancellation.
func (r *Runner) Run(ctx context.Context, scenarios []types.Scenario, models []Model, layout Layout) (map[string]*Stats, error) {
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m.ID == "" || m.Client == nil {
			return nil, fmt.Errorf("infer: model %q has no client", m.ID)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("infer: model %q listed twice", m.ID)
		}
		seen[m.ID] = true
	}

	var (
		mu  sync.Mutex
		all = make(map[string]*Stats, len(models))
	)
	g, ctx := errgroup.WithContext(ctx)
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}
	for _, m := range models {
		g.Go(func() error {
			stats, err := r.runModel(ctx, scenarios, m, layout)
			mu.Lock()
			all[m.ID] = stats
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	return all, err
}

func (r *Runner) openStreams(layout Layout, modelID string) (*stream.Writer, *stream.Writer, map[string]struct{}, error) {
	okPath, failPath := layout.ResponsesPath(modelID), layout.FailuresPath(modelID)
	open := stream.Create
	done := map[string]struct{}{}
	if r.cfg.Resume {
		open = stream.Append
		var err error
		done, err = stream.Keys(okPath, func(resp types.CandidateResponse) string { return resp.ScenarioID })
		if err != nil {
			return nil, nil, nil, err
		}
	}
	okW, err := open(okPath)
	if err != nil {
		return nil, nil, nil, err
	}
	failW, err := open(failPath)
	if err != nil {
		_ = okW.Close()
		return nil, nil, nil, err
	}
	return okW, failW, done, nil
}

func (r *Runner) runModel(ctx context.Context, scenarios []types.Scenario, m Model, layout Layout) (stats *Stats, err error) {
	stats = newStats(m.ID)
	okW, failW, done, err := r.openStreams(layout, m.ID)
	if err != nil {
		return stats, err
	}
	defer func() {
		err = errors.Join(err, okW.Close(), failW.Close())
	}()

	limiter := NewLimiter(m.RequestsPerSecond)
	breaker := NewBreaker(r.cfg.Breaker, m.ID, r.logger)
	r.logger.Info("inference worker started", "model_id", m.ID, "scenarios", len(scenarios), "already_done", len(done))

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, ok := done[sc.ScenarioID]; ok {
			stats.Skipped++
			r.metrics.IncrementCounter("infer.skipped", 1)
			continue
		}
		stats.Attempted++

		msgs := Messages(r.cfg.SystemPrompt, sc.Prompt)
		out := r.invoker.Invoke(ctx, "infer.chat", Call{
			Client:      m.Client,
			Limiter:     limiter,
			Breaker:     breaker,
			Messages:    msgs,
			Temperature: r.cfg.Temperature,
			MaxTokens:   r.cfg.MaxTokens,
			Attributes: []attribute.KeyValue{
				attribute.String("govbench.model_id", m.ID),
				attribute.String("govbench.scenario_id", sc.ScenarioID),
			},
		})
		stats.Calls += out.Attempts

		if out.Err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			f := Failure(sc.ScenarioID, m.ID, m.Client.Provider(), out.Attempts, out.Err, r.invoker.Now())
			stats.RecordFailure(f)
			r.logger.Warn("inference call failed",
				"model_id", m.ID, "scenario_id", sc.ScenarioID,
				"error_type", f.ErrorType, "status", f.StatusCode, "attempts", f.Attempts)
			if err := failW.Write(f); err != nil {
				return stats, err
			}
			continue
		}

		resp := types.CandidateResponse{
			ResponseID: r.ids.MustGenerate(),
			ScenarioID: sc.ScenarioID,
			ModelID:    m.ID,
			Provider:   m.Client.Provider(),
			Prompt:     sc.Prompt,
			Messages:   msgs,
			OutputText: out.Result.Text,
			Raw:        out.Result.Raw,
			Meta: types.CallMeta{
				LatencyMS:    out.Latency.Milliseconds(),
				Attempts:     out.Attempts,
				Temperature:  r.cfg.Temperature,
				MaxTokens:    r.cfg.MaxTokens,
				FinishReason: out.Result.FinishReason,
				Usage:        out.Result.Usage,
				CreatedAt:    r.invoker.Now().UTC(),
			},
		}
		if err := okW.Write(resp); err != nil {
			return stats, err
		}
		stats.Succeeded++
		r.logger.Debug("inference call succeeded", "model_id", m.ID, "scenario_id", sc.ScenarioID, "attempts", out.Attempts)
	}

	r.logger.Info("inference worker finished", "model_id", m.ID,
		"succeeded", stats.Succeeded, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}
