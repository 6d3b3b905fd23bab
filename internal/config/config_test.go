package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	"github.com/jdziat/govbench/pkg/provider"
)

const sampleConfig = `
dataset_version: "2026-10"
seed: 7
out_dir: out
catalogs:
  obligations: catalogs/obligations.yaml
  roles: catalogs/roles.yaml
  org_contexts: catalogs/orgs.yaml
  activities: catalogs/activities.yaml
  templates: catalogs/templates.yaml
  mutations: catalogs/mutations.yaml
  rubric: catalogs/rubric.yaml
render:
  per_obligation: 2
  k_per_base: 1
retry:
  max_attempts: 3
  initial_delay: 500ms
  max_delay: 10s
  jitter: 0.2
  circuit_threshold: 4
  circuit_cool_down: 2m
models:
  - id: gpt
    provider: openai
    model: gpt-4o-mini
    api_key: ${TEST_GOVBENCH_KEY}
    rps: 2
  - id: local
    provider: ollama
    model: llama3.2
    base_url: http://localhost:11434
  - id: judge
    provider: anthropic
    model: claude-sonnet
    timeout: 90s
judges: [judge]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "govbench.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Render.PerObligation != 3 {
		t.Errorf("expected per_obligation 3, got %d", cfg.Render.PerObligation)
	}
	if cfg.Render.KPerBase != 2 {
		t.Errorf("expected k_per_base 2, got %d", cfg.Render.KPerBase)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Jitter != 0.2 {
		t.Errorf("expected jitter 0.2, got %v", cfg.Retry.Jitter)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info level, got %s", cfg.Logging.Level)
	}
	if cfg.Retry.CircuitThreshold != 0 {
		t.Errorf("expected breaker disabled by default, got threshold %d", cfg.Retry.CircuitThreshold)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_GOVBENCH_KEY", "sk-from-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dir := filepath.Dir(path)
	if cfg.OutDir != filepath.Join(dir, "out") {
		t.Errorf("out_dir not resolved against config dir: %s", cfg.OutDir)
	}
	if cfg.Catalogs.Rubric != filepath.Join(dir, "catalogs/rubric.yaml") {
		t.Errorf("rubric path not resolved: %s", cfg.Catalogs.Rubric)
	}
	if cfg.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Seed)
	}
	if cfg.Retry.InitialDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms initial delay, got %v", cfg.Retry.InitialDelay)
	}

	gpt, _ := cfg.Model("gpt")
	if gpt.APIKey != "sk-from-env" {
		t.Errorf("expected expanded key, got %q", gpt.APIKey)
	}
	judge, _ := cfg.Model("judge")
	if judge.APIKey != "sk-ant" {
		t.Errorf("expected ANTHROPIC_API_KEY fallback, got %q", judge.APIKey)
	}
	if judge.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %v", judge.Timeout)
	}

	got := strings.Join(cfg.CandidateIDs(), ",")
	if got != "gpt,local" {
		t.Errorf("CandidateIDs() = %s, want gpt,local", got)
	}

	specs := cfg.ProviderSpecs()
	if specs["local"].Provider != provider.KindOllama || specs["local"].BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected spec for local: %+v", specs["local"])
	}

	b := cfg.Retry.Backoff()
	if b.MaxAttempts != 3 || b.MaxDelay != 10*time.Second {
		t.Errorf("unexpected backoff: %+v", b)
	}
	br := cfg.Retry.Breaker()
	if br.FailureThreshold != 4 || br.CoolDown != 2*time.Minute {
		t.Errorf("unexpected breaker: %+v", br)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GOVBENCH_SEED", "99")
	t.Setenv("GOVBENCH_INFER_RESUME", "true")
	t.Setenv("GOVBENCH_RETRY_MAX_ATTEMPTS", "8")
	t.Setenv("GOVBENCH_CATALOG_RUBRIC", "/abs/rubric.yaml")
	t.Setenv("GOVBENCH_CANDIDATES", "local")
	t.Setenv("GOVBENCH_LOG_FORMAT", "json")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Seed != 99 {
		t.Errorf("expected seed 99, got %d", cfg.Seed)
	}
	if !cfg.Inference.Resume {
		t.Error("expected inference resume from env")
	}
	if cfg.Retry.MaxAttempts != 8 {
		t.Errorf("expected 8 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Catalogs.Rubric != "/abs/rubric.yaml" {
		t.Errorf("expected rubric override, got %s", cfg.Catalogs.Rubric)
	}
	if got := cfg.CandidateIDs(); len(got) != 1 || got[0] != "local" {
		t.Errorf("CandidateIDs() = %v, want [local]", got)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Logging.Format)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(string) string
		field string
	}{
		{
			name:  "unknown key",
			edit:  func(s string) string { return s + "bogus: 1\n" },
			field: "",
		},
		{
			name:  "unknown provider",
			edit:  func(s string) string { return strings.Replace(s, "provider: ollama", "provider: bard", 1) },
			field: "config.models[1].provider",
		},
		{
			name:  "missing model name",
			edit:  func(s string) string { return strings.Replace(s, "model: llama3.2", "", 1) },
			field: "config.models[1].model",
		},
		{
			name:  "unknown judge",
			edit:  func(s string) string { return strings.Replace(s, "judges: [judge]", "judges: [oracle]", 1) },
			field: "config.judges[0]",
		},
		{
			name:  "no judges",
			edit:  func(s string) string { return strings.Replace(s, "judges: [judge]", "", 1) },
			field: "config.judges",
		},
		{
			name:  "duplicate model",
			edit:  func(s string) string { return strings.Replace(s, "id: local", "id: gpt", 1) },
			field: "config.models[1].id",
		},
		{
			name:  "zero attempts",
			edit:  func(s string) string { return strings.Replace(s, "max_attempts: 3", "max_attempts: 0", 1) },
			field: "config.retry.max_attempts",
		},
		{
			name:  "max delay below initial",
			edit:  func(s string) string { return strings.Replace(s, "max_delay: 10s", "max_delay: 100ms", 1) },
			field: "config.retry.max_delay",
		},
		{
			name:  "missing catalog",
			edit:  func(s string) string { return strings.Replace(s, "  rubric: catalogs/rubric.yaml\n", "", 1) },
			field: "config.catalogs.rubric",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.edit(sampleConfig)))
			if err == nil {
				t.Fatal("expected error")
			}
			var verr *pkgerrors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
			if tt.field != "" && verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestStaticModelNeedsNoName(t *testing.T) {
	body := strings.Replace(sampleConfig, "    provider: ollama\n    model: llama3.2\n", "    provider: static\n    text: ok\n", 1)
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	local, _ := cfg.Model("local")
	if local.Spec().Text != "ok" {
		t.Errorf("expected static text, got %q", local.Spec().Text)
	}
}

func TestExpandEnvVar(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envKey   string
		envValue string
		expected string
	}{
		{"dollar brace syntax", "${TEST_VAR}", "TEST_VAR", "test-value", "test-value"},
		{"dollar syntax", "$TEST_VAR", "TEST_VAR", "test-value", "test-value"},
		{"embedded", "Bearer ${TEST_VAR}", "TEST_VAR", "abc", "Bearer abc"},
		{"no variable", "plain-value", "", "", "plain-value"},
		{"empty", "", "", "", ""},
		{"unset variable", "${TEST_UNSET_VAR_XYZ}", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envKey != "" {
				t.Setenv(tt.envKey, tt.envValue)
			}
			if got := expandEnvVar(tt.input); got != tt.expected {
				t.Errorf("expandEnvVar(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".govbench.yaml"), []byte("seed: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	got := findConfigFile()
	if filepath.Base(got) != ".govbench.yaml" {
		t.Errorf("findConfigFile() = %q, want .govbench.yaml in an ancestor", got)
	}
}
