package govbench

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/infer"
	"github.com/jdziat/govbench/pkg/judge"
)

// Default values for pipeline configuration.
const (
	// DefaultDatasetVersion namespaces scenario ids when none is set.
	DefaultDatasetVersion = "dev"

	// DefaultSeed drives every random choice of a run.
	DefaultSeed uint64 = 42

	// DefaultOutDir is where artifacts are written.
	DefaultOutDir = "out"

	// DefaultPerObligation is the number of base scenarios per obligation.
	DefaultPerObligation = 3

	// DefaultKPerBase is the number of mutations drawn per base scenario.
	DefaultKPerBase = 2
)

// Config holds the pipeline settings. Build it with functional options
// passed to New; unset fields take the defaults above.
type Config struct {
	// DatasetVersion namespaces scenario ids and is recorded in manifests.
	DatasetVersion string

	// Seed drives rendering and perturbation. Each stage derives its own
	// stream from it, so stages can be rerun independently.
	Seed uint64

	// OutDir is the artifact root.
	OutDir string

	// PerObligation and KPerBase size the render and perturb stages.
	PerObligation int
	KPerBase      int

	// InjectConstraints appends the MUST / MUST NOT block to prompts.
	InjectConstraints bool

	// MaxPromptChars rejects longer prompts; negative disables the check.
	MaxPromptChars int

	// Inference and Judge configure the model-calling stages.
	Inference infer.Config
	Judge     judge.Config

	// Backoff is the retry policy shared by inference and judging.
	Backoff *pkghttp.ExponentialBackoff

	// Candidates are the model ids answering scenarios. Empty selects every
	// registered model that is not a judge.
	Candidates []string

	// Judges are the model ids scoring responses.
	Judges []string

	// RequestsPerSecond limits calls per model id; absent ids are
	// unlimited.
	RequestsPerSecond map[string]float64

	// CatalogFiles are hashed into the render and validate manifests.
	CatalogFiles []string

	// Logger receives structured pipeline logs.
	Logger StructuredLogger

	// Metrics receives counters, timings and gauges.
	Metrics Metrics

	// Tracer wraps model calls in spans. Nil uses the global provider.
	Tracer trace.Tracer

	// Now is the clock used for timestamps.
	Now func() time.Time

	// Sleep replaces the backoff sleep.
	Sleep pkghttp.SleepFunc
}

func (c *Config) applyDefaults() {
	if c.DatasetVersion == "" {
		c.DatasetVersion = DefaultDatasetVersion
	}
	if c.OutDir == "" {
		c.OutDir = DefaultOutDir
	}
	if c.PerObligation == 0 {
		c.PerObligation = DefaultPerObligation
	}
	if c.KPerBase == 0 {
		c.KPerBase = DefaultKPerBase
	}
	if c.Backoff == nil {
		c.Backoff = pkghttp.NewExponentialBackoff()
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = pkghttp.ContextSleep
	}
}

func (c *Config) validate() error {
	if c.PerObligation < 1 {
		return fmt.Errorf("govbench: per_obligation must be at least 1, got %d", c.PerObligation)
	}
	if c.KPerBase < 1 {
		return fmt.Errorf("govbench: k_per_base must be at least 1, got %d", c.KPerBase)
	}
	if c.Inference.Temperature < 0 || c.Judge.Temperature < 0 {
		return fmt.Errorf("govbench: temperature cannot be negative")
	}
	if c.Inference.MaxConcurrency < 0 || c.Judge.MaxConcurrency < 0 {
		return fmt.Errorf("govbench: max concurrency cannot be negative")
	}
	if c.Backoff.MaxAttempts < 0 {
		return fmt.Errorf("govbench: max attempts cannot be negative, got %d", c.Backoff.MaxAttempts)
	}
	if c.Backoff.Jitter < 0 || c.Backoff.Jitter >= 1 {
		return fmt.Errorf("govbench: jitter must be in [0, 1), got %v", c.Backoff.Jitter)
	}
	for id, rps := range c.RequestsPerSecond {
		if rps < 0 {
			return fmt.Errorf("govbench: requests per second for %q cannot be negative", id)
		}
	}
	return nil
}

// String returns a one-line summary safe for logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatasetVersion: %q, Seed: %d, OutDir: %q, PerObligation: %d, KPerBase: %d, Candidates: %v, Judges: %v, Resume: infer=%t judge=%t}",
		c.DatasetVersion, c.Seed, c.OutDir, c.PerObligation, c.KPerBase, c.Candidates, c.Judges, c.Inference.Resume, c.Judge.Resume)
}
