package id

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

type countingMetrics struct{ counters map[string]int64 }

func (m *countingMetrics) IncrementCounter(name string, value int64) {
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

type captureLogger struct{ lines int }

func (l *captureLogger) Printf(string, ...any) { l.lines++ }

func TestStable(t *testing.T) {
	a := Stable(ScenarioNamespace, "v1", "abc")
	if a != Stable(ScenarioNamespace, "v1", "abc") {
		t.Fatal("stable id changed between calls")
	}
	if a == Stable(ScenarioNamespace, "v2", "abc") {
		t.Error("dataset version should change the id")
	}
	if Stable(ScenarioNamespace, "a", "bc") == Stable(ScenarioNamespace, "ab", "c") {
		t.Error("part boundaries should matter")
	}
	if a == Stable(JudgeNamespace, "v1", "abc") {
		t.Error("namespace should change the id")
	}
	u, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("not a uuid: %v", err)
	}
	if u.Version() != 5 {
		t.Errorf("version = %d, want 5", u.Version())
	}
}

func TestGenerate(t *testing.T) {
	m := &countingMetrics{}
	g := NewGenerator(&GeneratorConfig{Metrics: m})
	a, err := g.Generate()
	if err != nil {
		t.Fatal(err)
	}
	b := g.MustGenerate()
	if a == b {
		t.Error("random ids should differ")
	}
	if m.counters["id.generated"] != 2 {
		t.Errorf("generated = %d, want 2", m.counters["id.generated"])
	}
}

func TestGenerateFailureModes(t *testing.T) {
	failing := func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy exhausted") }

	tests := []struct {
		mode    Mode
		wantErr bool
	}{
		{ModeFallback, false},
		{ModeStrict, true},
		{Mode(99), true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			logger := &captureLogger{}
			g := NewGenerator(&GeneratorConfig{Mode: tt.mode, Logger: logger})
			g.random = failing

			id, err := g.Generate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if !IsFallbackID(id) {
					t.Errorf("id %q is not a fallback id", id)
				}
				_, _ = g.Generate()
				if logger.lines != 1 {
					t.Errorf("logged %d warnings, want 1", logger.lines)
				}
			}
			if g.Failures() == 0 {
				t.Error("failures not counted")
			}
		})
	}
}

func TestNilConfig(t *testing.T) {
	if NewGenerator(nil).mode != ModeFallback {
		t.Error("nil config should select fallback mode")
	}
	if IsFallbackID("fb-") || IsFallbackID("abc") {
		t.Error("IsFallbackID false positive")
	}
}
