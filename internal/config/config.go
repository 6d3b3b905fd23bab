// Package config provides configuration loading for govbench.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/jdziat/govbench/pkg/catalog"
	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/provider"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOVBENCH_"

// Config represents the complete run configuration.
type Config struct {
	DatasetVersion string        `yaml:"dataset_version" env:"DATASET_VERSION" validate:"required"`
	Seed           uint64        `yaml:"seed" env:"SEED"`
	OutDir         string        `yaml:"out_dir" env:"OUT_DIR" validate:"required"`
	Catalogs       catalog.Paths `yaml:"catalogs" envPrefix:"CATALOG_"`

	Render    RenderConfig    `yaml:"render" envPrefix:"RENDER_"`
	Enrich    EnrichConfig    `yaml:"enrich" envPrefix:"ENRICH_"`
	Inference InferenceConfig `yaml:"inference" envPrefix:"INFER_"`
	Judge     JudgeConfig     `yaml:"judge" envPrefix:"JUDGE_"`
	Retry     RetryConfig     `yaml:"retry" envPrefix:"RETRY_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`

	Models     []ModelConfig `yaml:"models" validate:"required,min=1,dive"`
	Candidates []string      `yaml:"candidates" env:"CANDIDATES" envSeparator:","`
	Judges     []string      `yaml:"judges" env:"JUDGES" envSeparator:","`
}

// RenderConfig sizes the render and perturb stages.
type RenderConfig struct {
	PerObligation int `yaml:"per_obligation" env:"PER_OBLIGATION" validate:"gte=1"`
	KPerBase      int `yaml:"k_per_base" env:"K_PER_BASE" validate:"gte=1"`
}

// EnrichConfig configures the validate stage.
type EnrichConfig struct {
	InjectConstraints bool `yaml:"inject_constraints" env:"INJECT_CONSTRAINTS"`
	MaxPromptChars    int  `yaml:"max_prompt_chars" env:"MAX_PROMPT_CHARS"`
}

// InferenceConfig configures candidate calls.
type InferenceConfig struct {
	Temperature    float64 `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" env:"MAX_TOKENS" validate:"gte=1"`
	SystemPrompt   string  `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	MaxConcurrency int     `yaml:"max_concurrency" env:"MAX_CONCURRENCY" validate:"gte=0"`
	Resume         bool    `yaml:"resume" env:"RESUME"`
}

// JudgeConfig configures judge calls.
type JudgeConfig struct {
	Temperature    float64 `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" env:"MAX_TOKENS" validate:"gte=1"`
	MaxConcurrency int     `yaml:"max_concurrency" env:"MAX_CONCURRENCY" validate:"gte=0"`
	Resume         bool    `yaml:"resume" env:"RESUME"`
}

// RetryConfig is the backoff policy shared by inference and judging.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" validate:"gte=1"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY" validate:"gt=0"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY" validate:"gtefield=InitialDelay"`
	Jitter       float64       `yaml:"jitter" env:"JITTER" validate:"gte=0,lt=1"`

	// CircuitThreshold opens a model's breaker after that many consecutive
	// transient failures. Zero disables the breaker.
	CircuitThreshold int           `yaml:"circuit_threshold" env:"CIRCUIT_THRESHOLD" validate:"gte=0"`
	CircuitCoolDown  time.Duration `yaml:"circuit_cool_down" env:"CIRCUIT_COOL_DOWN" validate:"gte=0"`
}

// Backoff returns the configured backoff strategy.
func (r RetryConfig) Backoff() *pkghttp.ExponentialBackoff {
	b := pkghttp.NewExponentialBackoff()
	b.MaxAttempts = r.MaxAttempts
	b.InitialDelay = r.InitialDelay
	b.MaxDelay = r.MaxDelay
	b.Jitter = r.Jitter
	return b
}

// Breaker returns the per-model circuit breaker settings.
func (r RetryConfig) Breaker() pkghttp.BreakerConfig {
	return pkghttp.BreakerConfig{
		FailureThreshold: r.CircuitThreshold,
		CoolDown:         r.CircuitCoolDown,
	}
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json printf"`
}

// MetricsConfig configures Prometheus exposition. Both fields are optional.
type MetricsConfig struct {
	// Addr serves /metrics while the run is in progress.
	Addr string `yaml:"addr" env:"ADDR"`

	// TextFile receives the final metric values in the text exposition
	// format when the run ends.
	TextFile string `yaml:"textfile" env:"TEXTFILE"`
}

// ModelConfig declares one model endpoint.
type ModelConfig struct {
	ID                string        `yaml:"id" validate:"required"`
	Provider          provider.Kind `yaml:"provider" validate:"required,oneof=openai anthropic ollama custom static"`
	Model             string        `yaml:"model" validate:"required_unless=Provider static"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"rps" validate:"gte=0"`
	Text              string        `yaml:"text"`
}

// Spec converts the entry into a provider spec.
func (m ModelConfig) Spec() provider.Spec {
	return provider.Spec{
		Provider: m.Provider,
		Model:    m.Model,
		BaseURL:  m.BaseURL,
		APIKey:   m.APIKey,
		Timeout:  m.Timeout,
		Text:     m.Text,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DatasetVersion: "dev",
		Seed:           42,
		OutDir:         "out",
		Render: RenderConfig{
			PerObligation: 3,
			KPerBase:      2,
		},
		Enrich: EnrichConfig{
			MaxPromptChars: 16000,
		},
		Inference: InferenceConfig{
			Temperature:    0,
			MaxTokens:      1024,
			MaxConcurrency: 4,
		},
		Judge: JudgeConfig{
			Temperature:    0,
			MaxTokens:      1024,
			MaxConcurrency: 4,
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Jitter:       0.2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FileNames are searched, in order, when no config path is given.
var FileNames = []string{"govbench.yaml", "govbench.yml", ".govbench.yaml", ".govbench.yml"}

// Load builds the configuration: defaults, then the YAML file at path (or
// the nearest file named in FileNames when path is empty), then GOVBENCH_*
// environment overrides, then ${VAR} expansion in secrets, then
// validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.resolvePaths(filepath.Dir(path))
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, pkgerrors.NewValidationErrorWithCause("env", "invalid environment override", err)
	}

	expandEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile searches the working directory and its parents.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadFromFile reads configuration from a YAML file. Unknown keys are
// rejected.
func loadFromFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return pkgerrors.NewValidationErrorWithCause(path, "cannot read config", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.NewValidationErrorWithCause(path, "malformed config: "+err.Error(), err)
	}
	return nil
}

// resolvePaths makes relative catalog and output paths relative to the
// config file's directory.
func (c *Config) resolvePaths(base string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	resolve(&c.OutDir)
	for _, p := range []*string{
		&c.Catalogs.Obligations, &c.Catalogs.Roles, &c.Catalogs.OrgContexts,
		&c.Catalogs.Activities, &c.Catalogs.Domains, &c.Catalogs.Templates,
		&c.Catalogs.Mutations, &c.Catalogs.Rubric, &c.Catalogs.RiskPolicy,
	} {
		resolve(p)
	}
}

var envRef = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// expandEnvVars expands ${VAR} references in model endpoints and keys and
// falls back to the provider's conventional key variable.
func expandEnvVars(cfg *Config) {
	for i := range cfg.Models {
		m := &cfg.Models[i]
		m.APIKey = expandEnvVar(m.APIKey)
		m.BaseURL = expandEnvVar(m.BaseURL)
		if m.APIKey == "" {
			m.APIKey = defaultAPIKey(m.Provider)
		}
	}
}

// expandEnvVar expands ${VAR} and $VAR references.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimPrefix(name, "$")
		name = strings.TrimSuffix(name, "}")
		return os.Getenv(name)
	})
}

func defaultAPIKey(kind provider.Kind) string {
	switch kind {
	case provider.KindOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case provider.KindAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

var validate = catalog.NewValidator()

// Validate checks field rules and cross references: model ids are unique,
// every candidate and judge names a declared model, and at least one of
// each is configured. When Candidates is empty every non-judge model is a
// candidate.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return catalog.ValidationFailure("config", err)
	}

	known := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if known[m.ID] {
			return pkgerrors.NewValidationError(fmt.Sprintf("config.models[%d].id", i), fmt.Sprintf("duplicate model %q", m.ID))
		}
		known[m.ID] = true
	}

	if len(c.Judges) == 0 {
		return pkgerrors.NewValidationError("config.judges", "at least one judge model is required")
	}
	for i, id := range c.Judges {
		if !known[id] {
			return pkgerrors.NewValidationError(fmt.Sprintf("config.judges[%d]", i), fmt.Sprintf("unknown model %q", id))
		}
	}
	for i, id := range c.Candidates {
		if !known[id] {
			return pkgerrors.NewValidationError(fmt.Sprintf("config.candidates[%d]", i), fmt.Sprintf("unknown model %q", id))
		}
	}
	if len(c.CandidateIDs()) == 0 {
		return pkgerrors.NewValidationError("config.candidates", "at least one candidate model is required")
	}
	return nil
}

// CandidateIDs returns the candidate model ids: Candidates when set,
// otherwise every declared model that is not a judge.
func (c *Config) CandidateIDs() []string {
	if len(c.Candidates) > 0 {
		return c.Candidates
	}
	judges := make(map[string]bool, len(c.Judges))
	for _, id := range c.Judges {
		judges[id] = true
	}
	var ids []string
	for _, m := range c.Models {
		if !judges[m.ID] {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// ProviderSpecs returns the provider spec of every declared model, keyed
// by model id.
func (c *Config) ProviderSpecs() map[string]provider.Spec {
	specs := make(map[string]provider.Spec, len(c.Models))
	for _, m := range c.Models {
		specs[m.ID] = m.Spec()
	}
	return specs
}

// Model returns the declared model with id.
func (c *Config) Model(id string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}
