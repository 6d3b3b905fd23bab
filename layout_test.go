package govbench

import (
	"path/filepath"
	"testing"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"gpt-4o-mini", "gpt-4o-mini"},
		{"claude-3.5-sonnet", "claude-3.5-sonnet"},
		{"meta/llama3:8b", "meta_llama3_8b"},
		{"a b", "a_b"},
		{"../escape", "_.._escape"},
		{".hidden", "_.hidden"},
		{"", "_"},
		{"modèle", "mod__le"},
	}
	for _, tt := range tests {
		if got := FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckFileNames(t *testing.T) {
	if err := checkFileNames([]string{"a", "b", "a"}); err != nil {
		t.Errorf("repeated id should not collide with itself: %v", err)
	}
	if err := checkFileNames([]string{"org/model", "org:model"}); err == nil {
		t.Error("expected collision between org/model and org:model")
	}
}

func TestLayout_Paths(t *testing.T) {
	l := NewLayout("out")

	tests := []struct {
		name, got, want string
	}{
		{"base", l.BaseScenarios(), filepath.Join("out", "base_scenarios.jsonl")},
		{"candidates", l.Candidates(), filepath.Join("out", "candidates.jsonl")},
		{"scenarios", l.Scenarios(), filepath.Join("out", "scenarios.jsonl")},
		{"rejected", l.Rejected(), filepath.Join("out", "scenarios_rejected.jsonl")},
		{"responses", l.ResponsesPath("org/m"), filepath.Join("out", "responses", "org_m.jsonl")},
		{"failures", l.FailuresPath("org/m"), filepath.Join("out", "responses", "org_m.failures.jsonl")},
		{"scores", l.ScoresPath("j", "c"), filepath.Join("out", "judgements", "j", "c.jsonl")},
		{"judge failures", l.JudgeFailuresPath("j", "c"), filepath.Join("out", "judgements", "j", "c.failures.jsonl")},
		{"leaderboard", l.Leaderboard(), filepath.Join("out", "leaderboard.jsonl")},
		{"manifest", l.Manifest(StageInfer), filepath.Join("out", "manifests", "infer.json")},
		{"report", l.Report(StageJudge), filepath.Join("out", "reports", "judge.json")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
