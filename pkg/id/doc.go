// Package id provides identifier generation for pipeline records.
//
// Two kinds of ids are produced:
//   - Stable ids: name-based UUIDs (version 5) derived from record content,
//     so rerunning a stage over the same inputs yields the same ids.
//   - Random ids: UUID version 4, for response and judge-score records.
//
// Random generation modes:
//   - ModeFallback: uses a timestamp/counter id when the system random
//     source fails (default)
//   - ModeStrict: returns an error when the random source fails
//
// Example usage:
//
//	scenarioID := id.Stable(id.ScenarioNamespace, datasetVersion, promptHash)
//
//	gen := id.NewGenerator(&id.GeneratorConfig{Mode: id.ModeStrict})
//	responseID, err := gen.Generate()
package id
