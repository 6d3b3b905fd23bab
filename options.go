package govbench

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/judge"
)

// ConfigOption is a function that modifies a Config.
type ConfigOption func(*Config)

// WithDatasetVersion sets the dataset version.
func WithDatasetVersion(version string) ConfigOption {
	return func(c *Config) {
		c.DatasetVersion = version
	}
}

// WithSeed sets the run seed.
func WithSeed(seed uint64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithOutDir sets the artifact root.
func WithOutDir(dir string) ConfigOption {
	return func(c *Config) {
		c.OutDir = dir
	}
}

// WithPerObligation sets how many base scenarios each obligation yields.
func WithPerObligation(n int) ConfigOption {
	return func(c *Config) {
		c.PerObligation = n
	}
}

// WithKPerBase sets how many mutations each base scenario yields.
func WithKPerBase(k int) ConfigOption {
	return func(c *Config) {
		c.KPerBase = k
	}
}

// WithConstraintInjection toggles the constraint block in prompts.
func WithConstraintInjection(enabled bool) ConfigOption {
	return func(c *Config) {
		c.InjectConstraints = enabled
	}
}

// WithMaxPromptChars sets the prompt length limit.
func WithMaxPromptChars(n int) ConfigOption {
	return func(c *Config) {
		c.MaxPromptChars = n
	}
}

// WithInference sets the inference call parameters.
func WithInference(cfg infer.Config) ConfigOption {
	return func(c *Config) {
		c.Inference = cfg
	}
}

// WithJudging sets the judge call parameters.
func WithJudging(cfg judge.Config) ConfigOption {
	return func(c *Config) {
		c.Judge = cfg
	}
}

// WithResume makes inference and judging skip completed work.
func WithResume(resume bool) ConfigOption {
	return func(c *Config) {
		c.Inference.Resume = resume
		c.Judge.Resume = resume
	}
}

// WithBackoff sets the retry policy.
func WithBackoff(b *pkghttp.ExponentialBackoff) ConfigOption {
	return func(c *Config) {
		c.Backoff = b
	}
}

// WithCandidates selects the candidate models.
func WithCandidates(ids ...string) ConfigOption {
	return func(c *Config) {
		c.Candidates = append([]string(nil), ids...)
	}
}

// WithJudges selects the judge models.
func WithJudges(ids ...string) ConfigOption {
	return func(c *Config) {
		c.Judges = append([]string(nil), ids...)
	}
}

// WithRateLimit limits calls to modelID to rps requests per second.
func WithRateLimit(modelID string, rps float64) ConfigOption {
	return func(c *Config) {
		if c.RequestsPerSecond == nil {
			c.RequestsPerSecond = map[string]float64{}
		}
		c.RequestsPerSecond[modelID] = rps
	}
}

// WithCatalogFiles records the catalog files for manifest hashing.
func WithCatalogFiles(paths ...string) ConfigOption {
	return func(c *Config) {
		c.CatalogFiles = append([]string(nil), paths...)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger StructuredLogger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer for model call spans.
func WithTracer(t trace.Tracer) ConfigOption {
	return func(c *Config) {
		c.Tracer = t
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) ConfigOption {
	return func(c *Config) {
		c.Now = now
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep pkghttp.SleepFunc) ConfigOption {
	return func(c *Config) {
		c.Sleep = sleep
	}
}
