package govbench

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/jdziat/govbench/pkg/aggregate"
	"github.com/jdziat/govbench/pkg/catalog"
	"github.com/jdziat/govbench/pkg/dedup"
	"github.com/jdziat/govbench/pkg/enrich"
	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/id"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/judge"
	"github.com/jdziat/govbench/pkg/obligation"
	"github.com/jdziat/govbench/pkg/perturb"
	"github.com/jdziat/govbench/pkg/provider"
	"github.com/jdziat/govbench/pkg/render"
	"github.com/jdziat/govbench/pkg/rng"
	"github.com/jdziat/govbench/pkg/stream"
	"github.com/jdziat/govbench/pkg/types"
)

// ErrMissingArtifact is returned when a stage runs before the stage that
// produces its input.
var ErrMissingArtifact = errors.New("govbench: input artifact not found")

// Pipeline runs the evaluation stages over one artifact directory. Each
// stage reads the previous stage's artifacts from disk, so stages can run
// in separate processes. A Pipeline is not safe for concurrent stage runs.
type Pipeline struct {
	cfg     *Config
	set     *catalog.Set
	index   *obligation.Index
	models  *provider.Registry
	layout  Layout
	retrier *pkghttp.Retrier
	ids     *id.Generator
}

// New validates the catalogs, the model selection and the options and
// returns a ready pipeline. Every configuration problem surfaces here,
// before any artifact is touched.
func New(set *catalog.Set, models *provider.Registry, opts ...ConfigOption) (*Pipeline, error) {
	cfg := &Config{Seed: DefaultSeed}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if set == nil {
		return nil, pkgerrors.NewValidationError("catalogs", "catalog set is required")
	}
	if err := set.Check(); err != nil {
		return nil, err
	}
	if set.Obligations == nil {
		return nil, pkgerrors.NewValidationErrorWithCause("obligations", "catalog is missing", pkgerrors.ErrEmptyObligations)
	}
	index, err := obligation.NewIndex(set.Obligations.Obligations)
	if err != nil {
		return nil, err
	}

	if models == nil {
		return nil, pkgerrors.NewValidationError("models", "model registry is required")
	}
	if err := resolveModels(cfg, models); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		set:    set,
		index:  index,
		models: models,
		layout: NewLayout(cfg.OutDir),
		ids: id.NewGenerator(&id.GeneratorConfig{
			Mode:    id.ModeFallback,
			Metrics: cfg.Metrics,
			Logger:  printfBridge{cfg.Logger},
		}),
	}
	p.retrier = &pkghttp.Retrier{
		Strategy: cfg.Backoff,
		Sleep:    cfg.Sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			cfg.Metrics.IncrementCounter("retry.attempts", 1)
			cfg.Logger.Debug("retrying model call",
				"attempt", attempt, "delay", delay, "error_type", string(pkgerrors.Classify(err)))
		},
	}
	cfg.Logger.Debug("pipeline configured", "config", cfg.String())
	return p, nil
}

// resolveModels checks the judge and candidate selections against the
// registry and fills in the default candidates.
func resolveModels(cfg *Config, models *provider.Registry) error {
	if len(cfg.Judges) == 0 {
		return pkgerrors.NewValidationError("judges", "at least one judge model is required")
	}
	known := models.IDs()
	for _, j := range cfg.Judges {
		if !slices.Contains(known, j) {
			return pkgerrors.NewValidationErrorWithCause("judges", fmt.Sprintf("unknown model %q", j), pkgerrors.ErrUnknownModel)
		}
	}
	if len(cfg.Candidates) == 0 {
		for _, m := range known {
			if !slices.Contains(cfg.Judges, m) {
				cfg.Candidates = append(cfg.Candidates, m)
			}
		}
	}
	if len(cfg.Candidates) == 0 {
		return pkgerrors.NewValidationError("candidates", "at least one candidate model is required")
	}
	seen := make(map[string]bool, len(cfg.Candidates))
	for _, c := range cfg.Candidates {
		if !slices.Contains(known, c) {
			return pkgerrors.NewValidationErrorWithCause("candidates", fmt.Sprintf("unknown model %q", c), pkgerrors.ErrUnknownModel)
		}
		if seen[c] {
			return pkgerrors.NewValidationError("candidates", fmt.Sprintf("model %q listed twice", c))
		}
		seen[c] = true
	}
	if err := checkFileNames(append(slices.Clone(cfg.Candidates), cfg.Judges...)); err != nil {
		return pkgerrors.NewValidationErrorWithCause("models", err.Error(), err)
	}
	return nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() Config {
	return *p.cfg
}

// Layout returns the artifact layout.
func (p *Pipeline) Layout() Layout {
	return p.layout
}

// Render writes one base scenario per obligation draw.
func (p *Pipeline) Render(ctx context.Context) (*RenderReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := p.cfg.Now()
	p.cfg.Logger.Info("stage started", "stage", StageRender, "obligations", p.index.Len())

	bases, err := render.New(p.set, p.cfg.PerObligation).Render(p.index.All(), rng.New(p.cfg.Seed, StageRender))
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if err := stream.WriteAll(p.layout.BaseScenarios(), bases); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	report := &RenderReport{
		Obligations:   p.index.Len(),
		BaseScenarios: len(bases),
		ByDomain:      map[string]int{},
		ByTemplate:    map[string]int{},
	}
	for _, b := range bases {
		report.ByDomain[b.Domain]++
		report.ByTemplate[b.TemplateID]++
	}
	p.cfg.Metrics.SetGauge("render.base_scenarios", float64(len(bases)))

	params := map[string]any{"per_obligation": p.cfg.PerObligation}
	if err := p.finish(StageRender, start, p.cfg.CatalogFiles, []string{p.layout.BaseScenarios()}, params, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Perturb applies mutations to the base scenarios and drops candidates
// whose prompts repeat.
func (p *Pipeline) Perturb(ctx context.Context) (*PerturbReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := p.cfg.Now()
	bases, err := readArtifact[types.BaseScenario](p.layout.BaseScenarios(), StageRender)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Info("stage started", "stage", StagePerturb, "base_scenarios", len(bases))

	raw, err := perturb.New(p.set.Mutations, p.cfg.KPerBase).Perturb(bases, rng.New(p.cfg.Seed, StagePerturb))
	if err != nil {
		return nil, fmt.Errorf("perturb: %w", err)
	}
	cands, dr := dedup.Dedup(raw)
	if err := stream.WriteAll(p.layout.Candidates(), cands); err != nil {
		return nil, fmt.Errorf("perturb: %w", err)
	}

	report := &PerturbReport{BaseScenarios: len(bases), Report: dr, ByFamily: map[string]int{}}
	for _, c := range cands {
		report.ByFamily[c.Mutation.Family]++
	}
	p.cfg.Metrics.IncrementCounter("perturb.dedup_removed", int64(dr.DedupRemoved))
	p.cfg.Metrics.SetGauge("perturb.candidates", float64(len(cands)))
	if dr.DedupRemoved > 0 {
		p.cfg.Logger.Info("duplicate prompts removed", "removed", dr.DedupRemoved, "kept", dr.DedupedCount)
	}

	params := map[string]any{"k_per_base": p.cfg.KPerBase}
	inputs := append([]string{p.layout.BaseScenarios()}, p.cfg.CatalogFiles...)
	if err := p.finish(StagePerturb, start, inputs, []string{p.layout.Candidates()}, params, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Validate enriches candidates into scenarios and records rejections.
func (p *Pipeline) Validate(ctx context.Context) (*enrich.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := p.cfg.Now()
	cands, err := readArtifact[types.CandidateScenario](p.layout.Candidates(), StagePerturb)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Info("stage started", "stage", StageValidate, "candidates", len(cands))

	e := enrich.New(p.index, p.set.Domains, p.set.RiskPolicy, enrich.Options{
		DatasetVersion:    p.cfg.DatasetVersion,
		InjectConstraints: p.cfg.InjectConstraints,
		MaxPromptChars:    p.cfg.MaxPromptChars,
	})
	scenarios, rejects, report := e.Enrich(cands)
	if err := stream.WriteAll(p.layout.Scenarios(), scenarios); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if err := stream.WriteAll(p.layout.Rejected(), rejects); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	p.cfg.Metrics.SetGauge("validate.scenarios", float64(len(scenarios)))
	p.cfg.Metrics.IncrementCounter("validate.rejected", int64(len(rejects)))
	if report.ObligationMissing > 0 {
		p.cfg.Logger.Warn("scenarios reference unknown obligations", "count", report.ObligationMissing)
	}

	params := map[string]any{
		"inject_constraints": p.cfg.InjectConstraints,
		"max_prompt_chars":   p.cfg.MaxPromptChars,
		"risk_policy":        p.set.RiskPolicy.Version,
	}
	inputs := append([]string{p.layout.Candidates()}, p.cfg.CatalogFiles...)
	outputs := []string{p.layout.Scenarios(), p.layout.Rejected()}
	if err := p.finish(StageValidate, start, inputs, outputs, params, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Infer runs every scenario against every candidate model.
func (p *Pipeline) Infer(ctx context.Context) (*InferReport, error) {
	start := p.cfg.Now()
	scenarios, err := readArtifact[types.Scenario](p.layout.Scenarios(), StageValidate)
	if err != nil {
		return nil, err
	}
	models, err := p.modelSet(p.cfg.Candidates)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Info("stage started", "stage", StageInfer,
		"scenarios", len(scenarios), "candidates", len(models), "resume", p.cfg.Inference.Resume)

	runner := infer.NewRunner(p.cfg.Inference,
		infer.WithLogger(p.cfg.Logger),
		infer.WithMetrics(p.cfg.Metrics),
		infer.WithRetrier(p.retrier),
		infer.WithTracer(p.cfg.Tracer),
		infer.WithClock(p.cfg.Now),
		infer.WithIDGenerator(p.ids),
	)
	inferModels := make([]infer.Model, len(models))
	for i, m := range models {
		inferModels[i] = infer.Model{ID: m.id, Client: m.client, RequestsPerSecond: m.rps}
	}
	stats, err := runner.Run(ctx, scenarios, inferModels, p.layout)
	report := &InferReport{Scenarios: len(scenarios), Models: stats}
	if err != nil {
		return report, fmt.Errorf("infer: %w", err)
	}

	var outputs []string
	for _, modelID := range p.cfg.Candidates {
		outputs = append(outputs, p.layout.ResponsesPath(modelID), p.layout.FailuresPath(modelID))
	}
	params := map[string]any{
		"candidates":    p.cfg.Candidates,
		"temperature":   p.cfg.Inference.Temperature,
		"max_tokens":    p.cfg.Inference.MaxTokens,
		"system_prompt": p.cfg.Inference.SystemPrompt != "",
		"resume":        p.cfg.Inference.Resume,
		"max_attempts":  p.cfg.Backoff.MaxAttempts,
	}
	if err := p.finish(StageInfer, start, []string{p.layout.Scenarios()}, outputs, params, report); err != nil {
		return report, err
	}
	return report, nil
}

// Judge scores every candidate response with every judge model.
func (p *Pipeline) Judge(ctx context.Context) (*JudgeReport, error) {
	start := p.cfg.Now()
	scenarios, err := readArtifact[types.Scenario](p.layout.Scenarios(), StageValidate)
	if err != nil {
		return nil, err
	}
	judges, err := p.modelSet(p.cfg.Judges)
	if err != nil {
		return nil, err
	}

	inputs := []string{p.layout.Scenarios()}
	candidates := make([]judge.Candidate, 0, len(p.cfg.Candidates))
	responses := 0
	for _, modelID := range p.cfg.Candidates {
		path := p.layout.ResponsesPath(modelID)
		resps, err := readArtifact[types.CandidateResponse](path, StageInfer)
		if err != nil {
			return nil, err
		}
		responses += len(resps)
		candidates = append(candidates, judge.Candidate{ModelID: modelID, Responses: resps})
		inputs = append(inputs, path)
	}
	p.cfg.Logger.Info("stage started", "stage", StageJudge,
		"responses", responses, "judges", len(judges), "resume", p.cfg.Judge.Resume)

	runner := judge.NewRunner(p.set.Rubric, p.cfg.Judge,
		judge.WithLogger(p.cfg.Logger),
		judge.WithMetrics(p.cfg.Metrics),
		judge.WithRetrier(p.retrier),
		judge.WithTracer(p.cfg.Tracer),
		judge.WithClock(p.cfg.Now),
	)
	judgeModels := make([]judge.Model, len(judges))
	for i, m := range judges {
		judgeModels[i] = judge.Model{ID: m.id, Client: m.client, RequestsPerSecond: m.rps}
	}
	stats, err := runner.Run(ctx, scenarios, candidates, judgeModels, p.layout)
	report := &JudgeReport{RubricVersion: p.set.Rubric.Version, Responses: responses, Pairs: stats}
	if err != nil {
		return report, fmt.Errorf("judge: %w", err)
	}

	var outputs []string
	for _, j := range p.cfg.Judges {
		for _, c := range p.cfg.Candidates {
			outputs = append(outputs, p.layout.ScoresPath(j, c), p.layout.JudgeFailuresPath(j, c))
		}
	}
	params := map[string]any{
		"judges":         p.cfg.Judges,
		"rubric_version": p.set.Rubric.Version,
		"temperature":    p.cfg.Judge.Temperature,
		"max_tokens":     p.cfg.Judge.MaxTokens,
		"resume":         p.cfg.Judge.Resume,
		"max_attempts":   p.cfg.Backoff.MaxAttempts,
	}
	if err := p.finish(StageJudge, start, inputs, outputs, params, report); err != nil {
		return report, err
	}
	return report, nil
}

// Aggregate recomputes the leaderboard from every judge score on disk.
func (p *Pipeline) Aggregate(ctx context.Context) (*AggregateReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := p.cfg.Now()
	scenarios, err := readArtifact[types.Scenario](p.layout.Scenarios(), StageValidate)
	if err != nil {
		return nil, err
	}

	inputs := []string{p.layout.Scenarios()}
	var scores []types.JudgeScore
	for _, j := range p.cfg.Judges {
		for _, c := range p.cfg.Candidates {
			path := p.layout.ScoresPath(j, c)
			if _, err := os.Stat(path); err != nil {
				p.cfg.Logger.Warn("no scores for pair", "judge_model_id", j, "candidate_model_id", c)
				continue
			}
			recs, err := stream.ReadAll[types.JudgeScore](path)
			if err != nil {
				return nil, fmt.Errorf("aggregate: %w", err)
			}
			scores = append(scores, recs...)
			inputs = append(inputs, path)
		}
	}
	p.cfg.Logger.Info("stage started", "stage", StageAggregate, "scores", len(scores))

	rows, ar := aggregate.Aggregate(scores, aggregate.RiskMap(scenarios))
	if err := stream.WriteAll(p.layout.Leaderboard(), rows); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	for _, row := range rows {
		p.cfg.Metrics.SetGauge("leaderboard.risk_weighted_grs."+row.CandidateModelID, row.RiskWeightedGRS)
	}
	if ar.UnknownScenarios > 0 {
		p.cfg.Logger.Warn("scores reference unknown scenarios", "count", ar.UnknownScenarios)
	}

	report := &AggregateReport{Rows: len(rows), Report: ar}
	if err := p.finish(StageAggregate, start, inputs, []string{p.layout.Leaderboard()}, nil, report); err != nil {
		return nil, err
	}
	return report, nil
}

// Leaderboard reads the rows written by Aggregate.
func (p *Pipeline) Leaderboard() ([]types.AggregationRow, error) {
	return readArtifact[types.AggregationRow](p.layout.Leaderboard(), StageAggregate)
}

// Run executes every stage in order and stops at the first error.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	start := p.cfg.Now()
	report := &RunReport{}
	var err error
	if report.Render, err = p.Render(ctx); err != nil {
		return report, err
	}
	if report.Perturb, err = p.Perturb(ctx); err != nil {
		return report, err
	}
	if report.Validate, err = p.Validate(ctx); err != nil {
		return report, err
	}
	if report.Infer, err = p.Infer(ctx); err != nil {
		return report, err
	}
	if report.Judge, err = p.Judge(ctx); err != nil {
		return report, err
	}
	if report.Aggregate, err = p.Aggregate(ctx); err != nil {
		return report, err
	}
	report.Duration = p.cfg.Now().Sub(start)
	p.cfg.Logger.Info("run finished", "duration", report.Duration, "leaderboard", p.layout.Leaderboard())
	return report, nil
}

type selectedModel struct {
	id     string
	client provider.Client
	rps    float64
}

func (p *Pipeline) modelSet(ids []string) ([]selectedModel, error) {
	out := make([]selectedModel, 0, len(ids))
	for _, modelID := range ids {
		c, err := p.models.Lookup(modelID)
		if err != nil {
			return nil, err
		}
		out = append(out, selectedModel{id: modelID, client: c, rps: p.cfg.RequestsPerSecond[modelID]})
	}
	return out, nil
}

// finish writes the stage manifest and report and records the timing.
func (p *Pipeline) finish(stage string, start time.Time, inputs, outputs []string, params map[string]any, report any) error {
	in, err := stream.HashFiles(inputs...)
	if err != nil {
		return fmt.Errorf("%s: manifest: %w", stage, err)
	}
	out, err := stream.HashFiles(outputs...)
	if err != nil {
		return fmt.Errorf("%s: manifest: %w", stage, err)
	}
	m := stream.Manifest{
		Stage:          stage,
		DatasetVersion: p.cfg.DatasetVersion,
		GeneratedAt:    p.cfg.Now().UTC(),
		Seed:           p.cfg.Seed,
		Inputs:         in,
		Outputs:        out,
		Params:         params,
	}
	if err := m.Write(p.layout.Manifest(stage)); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	if err := stream.WriteJSONAtomic(p.layout.Report(stage), report); err != nil {
		return fmt.Errorf("%s: report: %w", stage, err)
	}

	elapsed := p.cfg.Now().Sub(start)
	p.cfg.Metrics.RecordDuration("stage."+stage, elapsed)
	p.cfg.Logger.Info("stage finished", "stage", stage, "duration", elapsed)
	return nil
}

// readArtifact reads a stream that an earlier stage must have produced.
func readArtifact[T any](path, producer string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (run the %s stage first)", ErrMissingArtifact, path, producer)
		}
		return nil, err
	}
	return stream.ReadAll[T](path)
}
