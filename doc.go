// Package govbench measures how language models behave under governance
// pressure. It renders synthetic scenarios from regulatory and policy
// obligations, perturbs them with pressure mutations, runs them against
// candidate models, scores each answer with judge models against a
// weighted rubric and aggregates the scores into a risk-weighted
// leaderboard.
//
// # Quick Start
//
// Load the catalogs, build the model registry and run every stage:
//
//	set, err := catalog.Load(paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	models, err := provider.BuildRegistry(provider.DefaultFactories(nil), specs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := govbench.New(set, models,
//	    govbench.WithOutDir("out"),
//	    govbench.WithJudges("judge-gpt"),
//	    govbench.WithLogger(govbench.NewSlogAdapter(slog.Default())),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := p.Run(ctx)
//
// # Stages
//
// Each stage reads the artifacts of the previous one from the output
// directory and writes its own, plus a manifest under manifests/ and a
// summary under reports/:
//
//	render    -> base_scenarios.jsonl
//	perturb   -> candidates.jsonl (deduplicated)
//	validate  -> scenarios.jsonl, scenarios_rejected.jsonl
//	infer     -> responses/<model>.jsonl, responses/<model>.failures.jsonl
//	judge     -> judgements/<judge>/<candidate>.jsonl (+ .failures.jsonl)
//	aggregate -> leaderboard.jsonl
//
// Render, perturb and validate are deterministic for a given seed and
// catalog set and always rewrite their outputs. Infer and judge append to
// their streams; with resume enabled they skip work already recorded, so
// an interrupted run continues where it stopped. Aggregate always
// recomputes from every score on disk.
//
// # Failures
//
// A model call that keeps failing after its retries becomes a failure
// record, not a run error. Runs fail only on configuration problems,
// artifact I/O errors and cancellation.
//
// # Thread Safety
//
// A Pipeline runs one stage at a time. Inside infer and judge, each model
// (or judge and candidate pair) has its own worker and owns its streams.
package govbench
