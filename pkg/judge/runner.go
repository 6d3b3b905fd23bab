// Package judge scores candidate responses with judge models against a
// rubric. One worker runs per (judge model, candidate model) pair and owns
// that pair's score and failure streams.
package judge

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
	"golang.org/x/time/rate"

	"github.com/jdziat/govbench/pkg/catalog"
	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/id"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/provider"
	"github.com/jdziat/govbench/pkg/stream"
	"github.com/jdziat/govbench/pkg/types"
)

// DefaultMaxTokens bounds judge replies.
const DefaultMaxTokens = 1024

// FlagGRSMismatch is set on a score whose grs_score disagrees with its
// weighted dimension scores.
const FlagGRSMismatch = "grs_mismatch"

// Model is one judge model.
type Model struct {
	ID                string
	Client            provider.Client
	RequestsPerSecond float64
}

// Candidate is one candidate model's successful responses.
type Candidate struct {
	ModelID   string
	Responses []types.CandidateResponse
}

// Layout locates the streams of a (judge, candidate) pair.
type Layout interface {
	ScoresPath(judgeID, candidateID string) string
	JudgeFailuresPath(judgeID, candidateID string) string
}

// Config holds the call parameters of a judge run.
type Config struct {
	Temperature    float64
	MaxTokens      int
	MaxConcurrency int
	Resume         bool

	// Breaker configures one circuit breaker per judge model, shared by
	// that judge's workers.
	Breaker pkghttp.BreakerConfig
}

// Stats counts what one (judge, candidate) worker did.
type Stats struct {
	JudgeModelID     string         `json:"judge_model_id"`
	CandidateModelID string         `json:"candidate_model_id"`
	Attempted        int            `json:"attempted"`
	Skipped          int            `json:"skipped"`
	Succeeded        int            `json:"succeeded"`
	Failed           int            `json:"failed"`
	Calls            int            `json:"calls"`
	Mismatched       int            `json:"grs_mismatched"`
	ByErrorType      map[string]int `json:"by_error_type"`
	ByStatus         map[string]int `json:"by_status"`
}

// Key returns "<judge>/<candidate>".
func Key(judgeID, candidateID string) string {
	return judgeID + "/" + candidateID
}

func (s *Stats) recordFailure(f types.FailureRecord) {
	s.Failed++
	s.ByErrorType[f.ErrorType]++
	if f.StatusCode != 0 {
		s.ByStatus[strconv.Itoa(f.StatusCode)]++
	}
}

// Runner executes the judge stage.
type Runner struct {
	cfg     Config
	rubric  *catalog.Rubric
	invoker *infer.Invoker
	logger  infer.Logger
	metrics infer.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l infer.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m infer.Metrics) Option {
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

// NewRunner creates a Runner scoring against rubric.
func NewRunner(rubric *catalog.Rubric, cfg Config, opts ...Option) *Runner {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	r := &Runner{
		cfg:     cfg,
		rubric:  rubric,
		invoker: infer.NewInvoker("judge"),
		logger:  nopLogger{},
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) IncrementCounter(string, int64)       {}
func (nopMetrics) RecordDuration(string, time.Duration) {}

// Run scores every candidate response with every judge. Stats are keyed
// by Key(judge, candidate). Per-item failures go to the failure streams;
// Run fails only on stream I/O errors or cancellation.
func (r *Runner) Run(ctx context.Context, scenarios []types.Scenario, candidates []Candidate, judges []Model, layout Layout) (map[string]*Stats, error) {
	for _, j := range judges {
		if j.ID == "" || j.Client == nil {
			return nil, fmt.Errorf("judge: model %q has no client", j.ID)
		}
	}
	byID := make(map[string]*types.Scenario, len(scenarios))
	for i := range scenarios {
		byID[scenarios[i].ScenarioID] = &scenarios[i]
	}

	var (
		mu  sync.Mutex
		all = make(map[string]*Stats, len(judges)*len(candidates))
	)
	g, ctx := errgroup.WithContext(ctx)
	if r.cfg.MaxConcurrency > 0 {
		g.SetLimit(r.cfg.MaxConcurrency)
	}
	for _, j := range judges {
		limiter := infer.NewLimiter(j.RequestsPerSecond)
		breaker := infer.NewBreaker(r.cfg.Breaker, j.ID, r.logger)
		for _, c := range candidates {
			g.Go(func() error {
				w := &worker{Runner: r, judge: j, limiter: limiter, breaker: breaker, scenarios: byID}
				stats, err := w.run(ctx, c, layout)
				mu.Lock()
				all[Key(j.ID, c.ModelID)] = stats
				mu.Unlock()
				return err
			})
		}
	}
	err := g.Wait()
	return all, err
}

type worker struct {
	*Runner
	judge     Model
	limiter   *rate.Limiter
	breaker   *pkghttp.Breaker
	scenarios map[string]*types.Scenario
}

func (w *worker) run(ctx context.Context, c Candidate, layout Layout) (stats *Stats, err error) {
	stats = &Stats{
		JudgeModelID:     w.judge.ID,
		CandidateModelID: c.ModelID,
		ByErrorType:      map[string]int{},
		ByStatus:         map[string]int{},
	}
	okPath, failPath := layout.ScoresPath(w.judge.ID, c.ModelID), layout.JudgeFailuresPath(w.judge.ID, c.ModelID)

	open := stream.Create
	done := map[string]struct{}{}
	if w.cfg.Resume {
		open = stream.Append
		done, err = stream.Keys(okPath, func(s types.JudgeScore) string { return s.ScenarioID })
		if err != nil {
			return stats, err
		}
	}
	okW, err := open(okPath)
	if err != nil {
		return stats, err
	}
	failW, err := open(failPath)
	if err != nil {
		_ = okW.Close()
		return stats, err
	}
	defer func() {
		err = errors.Join(err, okW.Close(), failW.Close())
	}()

	w.logger.Info("judge worker started", "judge_model_id", w.judge.ID, "candidate_model_id", c.ModelID,
		"responses", len(c.Responses), "already_done", len(done))

	for _, resp := range c.Responses {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, ok := done[resp.ScenarioID]; ok {
			stats.Skipped++
			w.metrics.IncrementCounter("judge.skipped", 1)
			continue
		}
		done[resp.ScenarioID] = struct{}{}
		stats.Attempted++

		score, failure, err := w.score(ctx, c.ModelID, resp)
		if err != nil {
			return stats, err
		}
		if failure != nil {
			stats.Calls += failure.Attempts
			stats.recordFailure(*failure)
			w.logger.Warn("judge call failed",
				"judge_model_id", w.judge.ID, "candidate_model_id", c.ModelID, "scenario_id", resp.ScenarioID,
				"error_type", failure.ErrorType, "status", failure.StatusCode, "attempts", failure.Attempts)
			if err := failW.Write(failure); err != nil {
				return stats, err
			}
			continue
		}
		stats.Calls += score.Meta.Attempts
		if _, ok := score.Flags[FlagGRSMismatch]; ok {
			stats.Mismatched++
		}
		if err := okW.Write(score); err != nil {
			return stats, err
		}
		stats.Succeeded++
	}

	w.logger.Info("judge worker finished", "judge_model_id", w.judge.ID, "candidate_model_id", c.ModelID,
		"succeeded", stats.Succeeded, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}

// score judges one response. It returns either a score or a failure
// record; a non-nil error means the run must stop.
func (w *worker) score(ctx context.Context, candidateID string, resp types.CandidateResponse) (*types.JudgeScore, *types.FailureRecord, error) {
	fail := func(attempts int, cause error) *types.FailureRecord {
		f := infer.Failure(resp.ScenarioID, w.judge.ID, w.judge.Client.Provider(), attempts, cause, w.invoker.Now())
		f.CandidateModelID = candidateID
		f.JudgeModelID = w.judge.ID
		return &f
	}

	sc, ok := w.scenarios[resp.ScenarioID]
	if !ok {
		w.metrics.IncrementCounter("judge.missing_scenario", 1)
		return nil, fail(0, fmt.Errorf("response %s: %w", resp.ResponseID, pkgerrors.ErrMissingScenario)), nil
	}

	call := infer.Call{
		Client:      w.judge.Client,
		Limiter:     w.limiter,
		Breaker:     w.breaker,
		Messages:    Messages(w.rubric, *sc, resp.OutputText),
		Temperature: w.cfg.Temperature,
		MaxTokens:   w.cfg.MaxTokens,
		Attributes: []attribute.KeyValue{
			attribute.String("govbench.judge_model_id", w.judge.ID),
			attribute.String("govbench.candidate_model_id", candidateID),
			attribute.String("govbench.scenario_id", resp.ScenarioID),
		},
	}
	out := w.invoker.Invoke(ctx, "judge.chat", call)
	if out.Err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, fail(out.Attempts, out.Err), nil
	}

	verdict, err := Parse(out.Result.Text, w.rubric)
	if err != nil {
		w.metrics.IncrementCounter("judge.malformed", 1)
		return nil, fail(out.Attempts, err), nil
	}
	flags := verdict.Flags
	if msg := grsMismatch(verdict.GRSScore, WeightedScore(w.rubric, verdict.DimensionScores)); msg != "" {
		if flags == nil {
			flags = map[string]any{}
		}
		flags[FlagGRSMismatch] = msg
	}

	return &types.JudgeScore{
		JudgeScoreID:      id.Stable(id.JudgeNamespace, resp.ScenarioID, candidateID, w.judge.ID),
		ScenarioID:        resp.ScenarioID,
		CandidateModelID:  candidateID,
		CandidateProvider: resp.Provider,
		JudgeModelID:      w.judge.ID,
		JudgeProvider:     w.judge.Client.Provider(),
		RubricVersion:     w.rubric.Version,
		GRSScore:          verdict.GRSScore,
		DimensionScores:   verdict.DimensionScores,
		Flags:             flags,
		Raw:               out.Result.Raw,
		Meta: types.CallMeta{
			LatencyMS:    out.Latency.Milliseconds(),
			Attempts:     out.Attempts,
			Temperature:  w.cfg.Temperature,
			MaxTokens:    w.cfg.MaxTokens,
			FinishReason: out.Result.FinishReason,
			Usage:        out.Result.Usage,
			CreatedAt:    w.invoker.Now().UTC(),
		},
	}, nil, nil
}
