package govbenchtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	pkghttp "github.com/jdziat/govbench/pkg/http"
)

// MockMetrics records all metrics operations for later verification.
type MockMetrics struct {
	mu       sync.Mutex
	Counters map[string]int64
	Gauges   map[string]float64
	Timings  map[string][]int64 // Duration in nanoseconds
}

// NewMockMetrics creates a new mock metrics collector.
func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Counters: make(map[string]int64),
		Gauges:   make(map[string]float64),
		Timings:  make(map[string][]int64),
	}
}

// IncrementCounter implements Metrics.IncrementCounter.
func (m *MockMetrics) IncrementCounter(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Counters[name] += value
}

// RecordDuration implements Metrics.RecordDuration.
func (m *MockMetrics) RecordDuration(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timings[name] = append(m.Timings[name], duration.Nanoseconds())
}

// SetGauge implements Metrics.SetGauge.
func (m *MockMetrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gauges[name] = value
}

// GetCounter returns the value of a counter.
func (m *MockMetrics) GetCounter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Counters[name]
}

// GetGauge returns the value of a gauge.
func (m *MockMetrics) GetGauge(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gauges[name]
}

// GetTimings returns all recorded timings for a metric.
func (m *MockMetrics) GetTimings(name string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64{}, m.Timings[name]...)
}

// Entry is one captured log call.
type Entry struct {
	Level   string
	Message string
	Args    []any
}

// MockLogger captures log calls at every level. It satisfies both the
// leveled Logger interfaces and the Printf-style logger used for id
// generation.
type MockLogger struct {
	mu      sync.Mutex
	Entries []Entry
}

// NewMockLogger creates a new mock logger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, Entry{Level: level, Message: msg, Args: args})
}

// Debug records a debug entry.
func (l *MockLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }

// Info records an info entry.
func (l *MockLogger) Info(msg string, args ...any) { l.record("info", msg, args) }

// Warn records a warning entry.
func (l *MockLogger) Warn(msg string, args ...any) { l.record("warn", msg, args) }

// Error records an error entry.
func (l *MockLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

// Printf records an info entry with the formatted message.
func (l *MockLogger) Printf(format string, v ...any) {
	l.record("info", fmt.Sprintf(format, v...), nil)
}

// GetEntries returns all captured entries.
func (l *MockLogger) GetEntries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry{}, l.Entries...)
}

// Count returns the number of entries at level.
func (l *MockLogger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// NoSleep is a pkghttp.SleepFunc that returns at once.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// FastRetrier returns a retrier with the default backoff policy capped at
// maxAttempts that never actually sleeps. Requested delays are appended
// to delays when it is non-nil.
func FastRetrier(maxAttempts int, delays *[]time.Duration) *pkghttp.Retrier {
	backoff := pkghttp.NewExponentialBackoff()
	backoff.MaxAttempts = maxAttempts
	r := pkghttp.NewRetrier(backoff)
	var mu sync.Mutex
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			mu.Lock()
			*delays = append(*delays, d)
			mu.Unlock()
		}
		return ctx.Err()
	}
	return r
}
