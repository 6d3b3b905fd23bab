package govbench

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"
)

// Logger is a printf-style logger, compatible with *log.Logger.
//
// Prefer StructuredLogger. A printf-style logger can be wrapped with
// WrapPrintfLogger:
//
//	p, _ := govbench.New(set, models,
//	    govbench.WithLogger(govbench.WrapPrintfLogger(log.Default())),
//	)
type Logger interface {
	// Printf logs a formatted message.
	Printf(format string, v ...any)
}

// StructuredLogger is the leveled, key-value logger the pipeline writes to.
// It matches the method set of *slog.Logger:
//
//	p, _ := govbench.New(set, models,
//	    govbench.WithLogger(govbench.NewSlogAdapter(slog.Default())),
//	)
type StructuredLogger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// printfLoggerWrapper wraps a printf-style logger to implement StructuredLogger.
type printfLoggerWrapper struct {
	logger Logger
}

// WrapPrintfLogger wraps a printf-style Logger (like *log.Logger) to implement
// StructuredLogger. Every line is prefixed with its level and the key-value
// pairs are appended.
func WrapPrintfLogger(l Logger) StructuredLogger {
	return &printfLoggerWrapper{logger: l}
}

// WrapStdLogger wraps a standard library *log.Logger to implement StructuredLogger.
func WrapStdLogger(l *log.Logger) StructuredLogger {
	return WrapPrintfLogger(l)
}

func (w *printfLoggerWrapper) Debug(msg string, args ...any) {
	w.logger.Printf("[DEBUG] %s%s", msg, formatArgs(args))
}

func (w *printfLoggerWrapper) Info(msg string, args ...any) {
	w.logger.Printf("[INFO] %s%s", msg, formatArgs(args))
}

func (w *printfLoggerWrapper) Warn(msg string, args ...any) {
	w.logger.Printf("[WARN] %s%s", msg, formatArgs(args))
}

func (w *printfLoggerWrapper) Error(msg string, args ...any) {
	w.logger.Printf("[ERROR] %s%s", msg, formatArgs(args))
}

var _ StructuredLogger = (*printfLoggerWrapper)(nil)

// Metrics receives pipeline telemetry. internal/metrics provides a
// Prometheus implementation.
type Metrics interface {
	// IncrementCounter increments a counter metric.
	IncrementCounter(name string, value int64)
	// RecordDuration records a duration metric.
	RecordDuration(name string, duration time.Duration)
	// SetGauge sets a gauge metric.
	SetGauge(name string, value float64)
}

type nopMetrics struct{}

func (nopMetrics) IncrementCounter(string, int64)       {}
func (nopMetrics) RecordDuration(string, time.Duration) {}
func (nopMetrics) SetGauge(string, float64)             {}

// formatArgs formats key-value pairs as " | k=v k=v". A trailing key
// without a value is dropped.
func formatArgs(args []any) string {
	if len(args) < 2 {
		return ""
	}
	var b strings.Builder
	b.WriteString(" |")
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

// NopLogger is a logger that discards all log messages.
type NopLogger struct{}

// Printf implements Logger.Printf.
func (NopLogger) Printf(format string, v ...any) {}

// Debug implements StructuredLogger.Debug.
func (NopLogger) Debug(msg string, args ...any) {}

// Info implements StructuredLogger.Info.
func (NopLogger) Info(msg string, args ...any) {}

// Warn implements StructuredLogger.Warn.
func (NopLogger) Warn(msg string, args ...any) {}

// Error implements StructuredLogger.Error.
func (NopLogger) Error(msg string, args ...any) {}

var (
	_ Logger           = NopLogger{}
	_ StructuredLogger = NopLogger{}
)

// MaskCredential masks an API key for safe logging. A vendor prefix such as
// "sk-" or "sk-ant-" is kept along with the last 4 characters.
//
// Examples:
//
//	MaskCredential("sk-1234567890abcdef")     => "sk-************cdef"
//	MaskCredential("sk-ant-abcd1234efgh5678") => "sk-ant-************5678"
//	MaskCredential("short")                   => "****"
func MaskCredential(s string) string {
	const visibleSuffix = 4
	if s == "" {
		return ""
	}
	if len(s) <= 2*visibleSuffix {
		return "****"
	}

	prefixEnd := 0
	for _, p := range []string{"sk-ant-", "sk-proj-", "sk-"} {
		if strings.HasPrefix(s, p) {
			prefixEnd = len(p)
			break
		}
	}
	maskLen := len(s) - prefixEnd - visibleSuffix
	if maskLen < 4 {
		return "****" + s[len(s)-visibleSuffix:]
	}
	return s[:prefixEnd] + strings.Repeat("*", maskLen) + s[len(s)-visibleSuffix:]
}

// SlogAdapter adapts a *slog.Logger to StructuredLogger. It also satisfies
// Logger, so it can be handed to components that only print.
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	p, _ := govbench.New(set, models,
//	    govbench.WithLogger(govbench.NewSlogAdapter(logger)),
//	)
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Debug implements StructuredLogger.Debug.
func (a *SlogAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

// Info implements StructuredLogger.Info.
func (a *SlogAdapter) Info(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

// Warn implements StructuredLogger.Warn.
func (a *SlogAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

// Error implements StructuredLogger.Error.
func (a *SlogAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// Printf implements Logger.Printf at warn level.
func (a *SlogAdapter) Printf(format string, v ...any) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

// Enabled reports whether level is logged.
func (a *SlogAdapter) Enabled(level slog.Level) bool {
	return a.logger.Enabled(context.Background(), level)
}

// WithGroup returns a new SlogAdapter with a log group prefix.
func (a *SlogAdapter) WithGroup(name string) *SlogAdapter {
	return &SlogAdapter{logger: a.logger.WithGroup(name)}
}

// With returns a new SlogAdapter with the given attributes added.
func (a *SlogAdapter) With(args ...any) *SlogAdapter {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// printfBridge exposes a StructuredLogger as a Logger for components that
// only print warnings.
type printfBridge struct {
	logger StructuredLogger
}

func (b printfBridge) Printf(format string, v ...any) {
	b.logger.Warn(fmt.Sprintf(format, v...))
}
