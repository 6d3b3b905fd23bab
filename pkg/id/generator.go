package id

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Logger interface for logging within the id package.
// This is a minimal interface that avoids circular dependencies.
type Logger interface {
	Printf(format string, v ...any)
}

// Metrics interface for recording metrics within the id package.
// This is a minimal interface that avoids circular dependencies.
type Metrics interface {
	IncrementCounter(name string, value int64)
}

// Namespaces for stable ids.
var (
	ScenarioNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("govbench:scenario"))
	JudgeNamespace    = uuid.NewSHA1(uuid.NameSpaceURL, []byte("govbench:judge-score"))
)

// Stable returns the version 5 UUID of parts joined with a NUL separator
// under namespace.
func Stable(namespace uuid.UUID, parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "\x00"))).String()
}

// Mode controls how random ids are generated when the random source fails.
type Mode int

const (
	// ModeFallback uses a timestamp/counter id when the random source fails.
	ModeFallback Mode = iota

	// ModeStrict returns an error when the random source fails.
	ModeStrict
)

// String returns a string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFallback:
		return "fallback"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

var (
	fallbackCounter uint64
	processID       = os.Getpid()
)

// Generator generates random ids with configurable failure handling.
type Generator struct {
	mode     Mode
	metrics  Metrics
	logger   Logger
	random   func() (uuid.UUID, error)
	failures atomic.Int64
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// Mode controls behavior when the random source fails.
	Mode Mode

	// Metrics is used to track id generation statistics.
	Metrics Metrics

	// Logger is used to log warnings.
	Logger Logger
}

// NewGenerator creates a Generator. A nil config selects ModeFallback.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	if cfg == nil {
		cfg = &GeneratorConfig{Mode: ModeFallback}
	}
	return &Generator{
		mode:    cfg.Mode,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		random:  uuid.NewRandom,
	}
}

// Generate creates a new random id.
// Returns an error only in ModeStrict when the random source fails.
func (g *Generator) Generate() (string, error) {
	u, err := g.random()
	if err == nil {
		if g.metrics != nil {
			g.metrics.IncrementCounter("id.generated", 1)
		}
		return u.String(), nil
	}

	failures := g.failures.Add(1)
	if g.metrics != nil {
		g.metrics.IncrementCounter("id.random_failures", 1)
	}

	switch g.mode {
	case ModeStrict:
		return "", fmt.Errorf("govbench: random id generation failed (%d failures): %w", failures, err)
	case ModeFallback:
		if failures == 1 && g.logger != nil {
			g.logger.Printf("WARNING: random source failed, using fallback ids: %v", err)
		}
		if g.metrics != nil {
			g.metrics.IncrementCounter("id.fallback_used", 1)
		}
		return fallbackID(), nil
	default:
		return "", fmt.Errorf("govbench: unknown id generation mode: %d", g.mode)
	}
}

// MustGenerate generates an id or panics.
func (g *Generator) MustGenerate() string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// Failures returns how many times the random source has failed.
func (g *Generator) Failures() int64 {
	return g.failures.Load()
}

// fallbackID combines timestamp, counter and process id.
// Format: fb-{timestamp_hex}-{counter_hex}-{pid}
func fallbackID() string {
	counter := atomic.AddUint64(&fallbackCounter, 1)
	return fmt.Sprintf("fb-%x-%08x-%d", time.Now().UnixNano(), counter, processID)
}

// IsFallbackID returns true if the id was generated using the fallback method.
func IsFallbackID(id string) bool {
	return strings.HasPrefix(id, "fb-") && len(id) > 3
}
