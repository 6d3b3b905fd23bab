package infer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
	pkghttp "github.com/jdziat/govbench/pkg/http"
	"github.com/jdziat/govbench/pkg/provider"
	"github.com/jdziat/govbench/pkg/types"
)

const tracerName = "github.com/jdziat/govbench/pkg/infer"

// Logger is the minimal logging interface used by the runners.
// This is a minimal interface that avoids circular dependencies.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Metrics is the minimal metrics interface used by the runners.
// This is a minimal interface that avoids circular dependencies.
type Metrics interface {
	IncrementCounter(name string, value int64)
	RecordDuration(name string, duration time.Duration)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) IncrementCounter(string, int64)       {}
func (nopMetrics) RecordDuration(string, time.Duration) {}

// Call is one chat request to make.
type Call struct {
	Client      provider.Client
	Limiter     *rate.Limiter
	Breaker     *pkghttp.Breaker
	Messages    []types.Message
	Temperature float64
	MaxTokens   int
	Attributes  []attribute.KeyValue
}

// Outcome is the result of an Invoke.
type Outcome struct {
	Result   *provider.Result
	Attempts int
	Latency  time.Duration
	Err      error
}

// Invoker performs model calls under a retry policy, an optional rate
// limiter and a trace span. It is shared by the inference and judge
// runners.
type Invoker struct {
	Retrier *pkghttp.Retrier
	Tracer  trace.Tracer
	Metrics Metrics
	Now     func() time.Time

	// MetricPrefix namespaces recorded metrics, e.g. "infer" or "judge".
	MetricPrefix string
}

// NewInvoker returns an Invoker with the default backoff and the global
// tracer provider.
func NewInvoker(prefix string) *Invoker {
	return &Invoker{
		Retrier:      pkghttp.NewRetrier(pkghttp.NewExponentialBackoff()),
		Tracer:       otel.Tracer(tracerName),
		Metrics:      nopMetrics{},
		Now:          time.Now,
		MetricPrefix: prefix,
	}
}

// Invoke makes the call. Each attempt waits on the limiter first. The
// request itself is not canceled by ctx; ctx only interrupts limiter waits
// and backoff sleeps. An open breaker fails the call with zero attempts.
func (inv *Invoker) Invoke(ctx context.Context, spanName string, call Call) Outcome {
	ctx, span := inv.Tracer.Start(ctx, spanName, trace.WithAttributes(call.Attributes...))
	defer span.End()

	if err := call.Breaker.Allow(); err != nil {
		err = fmt.Errorf("%s: %w", call.Client.Provider(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(pkgerrors.ErrCodeCircuitOpen))
		inv.Metrics.IncrementCounter(inv.MetricPrefix+".circuit_open", 1)
		return Outcome{Err: err}
	}

	start := inv.Now()
	var res *provider.Result
	attempts, err := inv.Retrier.Do(ctx, func(ctx context.Context) error {
		if call.Limiter != nil {
			if err := call.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var callErr error
		res, callErr = call.Client.Chat(context.WithoutCancel(ctx), call.Messages, call.Temperature, call.MaxTokens)
		return callErr
	})
	latency := inv.Now().Sub(start)
	if !errors.Is(err, context.Canceled) {
		call.Breaker.Record(err)
	}

	span.SetAttributes(attribute.Int("govbench.attempts", attempts))
	inv.Metrics.IncrementCounter(inv.MetricPrefix+".calls", int64(attempts))
	inv.Metrics.RecordDuration(inv.MetricPrefix+".latency", latency)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(pkgerrors.Classify(err)))
		inv.Metrics.IncrementCounter(inv.MetricPrefix+".failures", 1)
		return Outcome{Attempts: attempts, Latency: latency, Err: err}
	}
	span.SetStatus(codes.Ok, "")
	return Outcome{Result: res, Attempts: attempts, Latency: latency}
}

// NewLimiter returns a limiter for rps requests per second, or nil when
// rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Failure builds the failure record for a call that failed for good.
func Failure(scenarioID, modelID, providerName string, attempts int, err error, at time.Time) types.FailureRecord {
	return types.FailureRecord{
		ScenarioID: scenarioID,
		ModelID:    modelID,
		Provider:   providerName,
		ErrorType:  string(pkgerrors.Classify(err)),
		Error:      err.Error(),
		StatusCode: pkgerrors.StatusCode(err),
		Attempts:   attempts,
		FailedAt:   at.UTC(),
	}
}

// NewBreaker builds the breaker for one model from cfg, logging state
// changes. It returns nil when cfg disables breaking.
func NewBreaker(cfg pkghttp.BreakerConfig, modelID string, logger Logger) *pkghttp.Breaker {
	cfg.OnStateChange = func(from, to pkghttp.CircuitState) {
		logger.Warn("circuit breaker state changed", "model_id", modelID, "from", from.String(), "to", to.String())
	}
	return pkghttp.NewBreaker(cfg)
}
