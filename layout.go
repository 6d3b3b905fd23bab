package govbench

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Stage names, used for manifests, reports and metrics.
const (
	StageRender    = "render"
	StagePerturb   = "perturb"
	StageValidate  = "validate"
	StageInfer     = "infer"
	StageJudge     = "judge"
	StageAggregate = "aggregate"
)

// Stages lists every stage in execution order.
var Stages = []string{StageRender, StagePerturb, StageValidate, StageInfer, StageJudge, StageAggregate}

// Layout maps artifacts to paths under a root directory:
//
//	<root>/base_scenarios.jsonl
//	<root>/candidates.jsonl
//	<root>/scenarios.jsonl
//	<root>/scenarios_rejected.jsonl
//	<root>/responses/<model>.jsonl
//	<root>/responses/<model>.failures.jsonl
//	<root>/judgements/<judge>/<candidate>.jsonl
//	<root>/judgements/<judge>/<candidate>.failures.jsonl
//	<root>/leaderboard.jsonl
//	<root>/manifests/<stage>.json
//	<root>/reports/<stage>.json
//
// Model ids become file names through FileName.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at dir.
func NewLayout(dir string) Layout {
	return Layout{Root: dir}
}

// BaseScenarios is the render output.
func (l Layout) BaseScenarios() string { return filepath.Join(l.Root, "base_scenarios.jsonl") }

// Candidates is the deduplicated perturb output.
func (l Layout) Candidates() string { return filepath.Join(l.Root, "candidates.jsonl") }

// Scenarios is the validate output.
func (l Layout) Scenarios() string { return filepath.Join(l.Root, "scenarios.jsonl") }

// Rejected holds candidates the validate stage refused.
func (l Layout) Rejected() string { return filepath.Join(l.Root, "scenarios_rejected.jsonl") }

// ResponsesPath is a candidate model's success stream.
func (l Layout) ResponsesPath(modelID string) string {
	return filepath.Join(l.Root, "responses", FileName(modelID)+".jsonl")
}

// FailuresPath is a candidate model's failure stream.
func (l Layout) FailuresPath(modelID string) string {
	return filepath.Join(l.Root, "responses", FileName(modelID)+".failures.jsonl")
}

// ScoresPath is the score stream of one (judge, candidate) pair.
func (l Layout) ScoresPath(judgeID, candidateID string) string {
	return filepath.Join(l.Root, "judgements", FileName(judgeID), FileName(candidateID)+".jsonl")
}

// JudgeFailuresPath is the failure stream of one (judge, candidate) pair.
func (l Layout) JudgeFailuresPath(judgeID, candidateID string) string {
	return filepath.Join(l.Root, "judgements", FileName(judgeID), FileName(candidateID)+".failures.jsonl")
}

// Leaderboard is the aggregate output.
func (l Layout) Leaderboard() string { return filepath.Join(l.Root, "leaderboard.jsonl") }

// Manifest is the provenance record of a stage.
func (l Layout) Manifest(stage string) string {
	return filepath.Join(l.Root, "manifests", stage+".json")
}

// Report is the summary of a stage.
func (l Layout) Report(stage string) string {
	return filepath.Join(l.Root, "reports", stage+".json")
}

// FileName maps a model id onto a file name: every byte outside
// [A-Za-z0-9._-] becomes '_', and names that would be empty or start with
// a dot are prefixed with '_'.
func FileName(modelID string) string {
	var b strings.Builder
	b.Grow(len(modelID) + 1)
	if modelID == "" || modelID[0] == '.' {
		b.WriteByte('_')
	}
	for i := 0; i < len(modelID); i++ {
		c := modelID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// checkFileNames fails when two model ids share a file name.
func checkFileNames(ids []string) error {
	owner := make(map[string]string, len(ids))
	for _, id := range ids {
		name := FileName(id)
		if prev, ok := owner[name]; ok && prev != id {
			return fmt.Errorf("models %q and %q map to the same file name %q", prev, id, name)
		}
		owner[name] = id
	}
	return nil
}
