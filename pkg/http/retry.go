package http

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
)

// RetryableError is an interface for errors that know if they're retryable.
type RetryableError interface {
	error
	IsRetryable() bool
}

// IsRetryableNetworkError determines if a transport-level error is transient.
// Timeouts and dropped or refused connections are retried; DNS and TLS
// failures point at configuration mistakes and are not.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.ECONNREFUSED, syscall.ECONNABORTED, syscall.EPIPE:
			return true
		case syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return false
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return IsRetryableNetworkError(urlErr.Err)
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"certificate", "x509:", "tls:", "no such host"} {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}
	for _, pattern := range []string{"timeout", "reset by peer", "connection refused", "broken pipe", "temporary failure", "eof"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// WrapTransport converts a raw transport failure into a *pkgerrors.TransportError
// so the retry policy can classify it. Errors that already carry a
// classification are returned unchanged.
func WrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var pipeErr pkgerrors.Error
	if errors.As(err, &pipeErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &pkgerrors.TransportError{
		Op:        op,
		Err:       err,
		Retryable: IsRetryableNetworkError(err),
		Timeout:   isTimeout(err),
	}
}

// RetryStrategy defines how failed requests are retried.
type RetryStrategy interface {
	// ShouldRetry returns true if another attempt should follow the given
	// number of completed attempts.
	ShouldRetry(attempts int, err error) bool

	// RetryDelay returns how long to wait before retry number n (0-based).
	RetryDelay(n int) time.Duration
}

// RetryStrategyWithError is an optional extension of RetryStrategy that
// allows the retry delay to be influenced by the error, for example by a
// Retry-After header.
type RetryStrategyWithError interface {
	RetryStrategy
	RetryDelayWithError(n int, err error) time.Duration
}

// ExponentialBackoff implements capped exponential backoff with
// multiplicative jitter.
type ExponentialBackoff struct {
	// InitialDelay is the delay before the first retry.
	// Defaults to 1 second if not set.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay before jitter is applied.
	// Defaults to 30 seconds if not set.
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay increases.
	// Defaults to 2.0 if not set.
	Multiplier float64

	// Jitter is the relative spread applied to each delay: a value of 0.2
	// multiplies the delay by a uniform factor in [0.8, 1.2]. Zero disables it.
	Jitter float64

	// MaxAttempts is the total number of attempts, including the first.
	// Defaults to 5 if not set.
	MaxAttempts int

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.Float64.
	Rand func() float64
}

// NewExponentialBackoff creates a new exponential backoff strategy with defaults.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		MaxAttempts:  5,
	}
}

func (e *ExponentialBackoff) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return 5
	}
	return e.MaxAttempts
}

// ShouldRetry implements RetryStrategy.ShouldRetry.
func (e *ExponentialBackoff) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts >= e.maxAttempts() {
		return false
	}

	var retryableErr RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}

	return IsRetryableNetworkError(err)
}

// BaseDelay returns the capped delay for retry n without jitter.
func (e *ExponentialBackoff) BaseDelay(n int) time.Duration {
	initialDelay := e.InitialDelay
	if initialDelay == 0 {
		initialDelay = 1 * time.Second
	}

	maxDelay := e.MaxDelay
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}

	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2.0
	}

	delay := float64(initialDelay) * math.Pow(multiplier, float64(n))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

// RetryDelay implements RetryStrategy.RetryDelay.
func (e *ExponentialBackoff) RetryDelay(n int) time.Duration {
	delay := float64(e.BaseDelay(n))
	if e.Jitter > 0 {
		random := e.Rand
		if random == nil {
			random = rand.Float64
		}
		delay *= 1 + e.Jitter*(2*random()-1)
	}
	return time.Duration(delay)
}

// RetryDelayWithError implements RetryStrategyWithError.RetryDelayWithError.
// A numeric Retry-After from the server replaces the computed delay.
func (e *ExponentialBackoff) RetryDelayWithError(n int, err error) time.Duration {
	if retryAfter := pkgerrors.RetryAfter(err); retryAfter > 0 {
		return retryAfter
	}
	return e.RetryDelay(n)
}

// NoRetry is a retry strategy that never retries.
type NoRetry struct{}

// ShouldRetry implements RetryStrategy.ShouldRetry.
func (NoRetry) ShouldRetry(int, error) bool {
	return false
}

// RetryDelay implements RetryStrategy.RetryDelay.
func (NoRetry) RetryDelay(int) time.Duration {
	return 0
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier runs an operation under a RetryStrategy.
type Retrier struct {
	Strategy RetryStrategy
	Sleep    SleepFunc

	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// NewRetrier returns a Retrier with the given strategy and a real sleep.
func NewRetrier(strategy RetryStrategy) *Retrier {
	return &Retrier{Strategy: strategy, Sleep: ContextSleep}
}

// Do calls fn until it succeeds, the strategy gives up, or ctx ends.
// It returns the number of attempts made and the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	strategy := r.Strategy
	if strategy == nil {
		strategy = NoRetry{}
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !strategy.ShouldRetry(attempt, err) {
			return attempt, err
		}

		var delay time.Duration
		if withErr, ok := strategy.(RetryStrategyWithError); ok {
			delay = withErr.RetryDelayWithError(attempt-1, err)
		} else {
			delay = strategy.RetryDelay(attempt - 1)
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, err)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return attempt, err
		}
	}
}
