package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"
	"time"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
)

// recordingSleep captures requested delays without sleeping.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, false},
		{"net timeout", timeoutError{}, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"network unreachable", syscall.ENETUNREACH, false},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "invalid.example.com"}, false},
		{"url error wrapping timeout", &url.Error{Op: "Post", URL: "http://x", Err: context.DeadlineExceeded}, true},
		{"certificate error", errors.New("x509: certificate signed by unknown authority"), false},
		{"unexpected EOF message", errors.New("unexpected EOF"), true},
		{"unknown error", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableNetworkError(tt.err); got != tt.expected {
				t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestWrapTransport(t *testing.T) {
	if WrapTransport("x", nil) != nil {
		t.Fatal("nil in, nil out")
	}

	err := WrapTransport("send request", &url.Error{Op: "Post", URL: "http://x", Err: timeoutError{}})
	var transportErr *pkgerrors.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %T", err)
	}
	if !transportErr.Retryable || !transportErr.Timeout {
		t.Errorf("expected retryable timeout, got %+v", transportErr)
	}

	apiErr := &pkgerrors.APIError{StatusCode: 500}
	if got := WrapTransport("x", apiErr); got != apiErr {
		t.Error("classified errors must pass through unchanged")
	}
}

func TestExponentialBackoff_ShouldRetry(t *testing.T) {
	backoff := &ExponentialBackoff{MaxAttempts: 3}

	tests := []struct {
		name     string
		attempts int
		err      error
		expected bool
	}{
		{"429 after first attempt", 1, &pkgerrors.APIError{StatusCode: 429}, true},
		{"503 after second attempt", 2, &pkgerrors.APIError{StatusCode: 503}, true},
		{"budget exhausted", 3, &pkgerrors.APIError{StatusCode: 503}, false},
		{"400 never retried", 1, &pkgerrors.APIError{StatusCode: 400}, false},
		{"malformed never retried", 1, pkgerrors.Malformed("no choices"), false},
		{"raw timeout retried", 1, context.DeadlineExceeded, true},
		{"nil error", 1, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoff.ShouldRetry(tt.attempts, tt.err); got != tt.expected {
				t.Errorf("ShouldRetry(%d) = %v, want %v", tt.attempts, got, tt.expected)
			}
		})
	}
}

func TestExponentialBackoff_BaseDelay(t *testing.T) {
	backoff := &ExponentialBackoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2,
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1 * time.Second,
		1 * time.Second,
	}
	for n, w := range want {
		if got := backoff.BaseDelay(n); got != w {
			t.Errorf("BaseDelay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestExponentialBackoff_JitterBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999} {
		backoff := &ExponentialBackoff{
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Jitter:       0.2,
			Rand:         func() float64 { return r },
		}
		got := backoff.RetryDelay(0)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Errorf("rand=%v: RetryDelay(0) = %v, want within ±20%% of 1s", r, got)
		}
	}
}

func TestExponentialBackoff_RetryAfterOverrides(t *testing.T) {
	backoff := &ExponentialBackoff{InitialDelay: time.Second, MaxDelay: 2 * time.Second}

	err := &pkgerrors.APIError{StatusCode: 429, RetryAfter: 5 * time.Second}
	if got := backoff.RetryDelayWithError(0, err); got != 5*time.Second {
		t.Errorf("RetryDelayWithError = %v, want 5s from Retry-After", got)
	}

	if got := backoff.RetryDelayWithError(0, &pkgerrors.APIError{StatusCode: 429}); got != time.Second {
		t.Errorf("RetryDelayWithError without header = %v, want 1s", got)
	}
}

// TestRetrier_AlwaysRateLimited verifies that a permanently rate-limited
// call is attempted exactly MaxAttempts times with non-decreasing delays.
func TestRetrier_AlwaysRateLimited(t *testing.T) {
	const maxAttempts = 5
	rec := &recordingSleep{}
	retrier := &Retrier{
		Strategy: &ExponentialBackoff{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     40 * time.Millisecond,
			MaxAttempts:  maxAttempts,
		},
		Sleep: rec.sleep,
	}

	calls := 0
	attempts, err := retrier.Do(context.Background(), func(context.Context) error {
		calls++
		return &pkgerrors.APIError{StatusCode: 429}
	})

	if calls != maxAttempts || attempts != maxAttempts {
		t.Fatalf("calls = %d, attempts = %d, want %d", calls, attempts, maxAttempts)
	}
	if !errors.Is(err, pkgerrors.ErrRateLimited) {
		t.Errorf("expected final 429, got %v", err)
	}
	if len(rec.delays) != maxAttempts-1 {
		t.Fatalf("expected %d sleeps, got %d", maxAttempts-1, len(rec.delays))
	}
	for i := 1; i < len(rec.delays); i++ {
		if rec.delays[i] < rec.delays[i-1] {
			t.Errorf("delay %d (%v) decreased from %v", i, rec.delays[i], rec.delays[i-1])
		}
	}
	if last := rec.delays[len(rec.delays)-1]; last != 40*time.Millisecond {
		t.Errorf("last delay = %v, want cap 40ms", last)
	}
}

func TestRetrier_NonRetryableStopsImmediately(t *testing.T) {
	rec := &recordingSleep{}
	retrier := &Retrier{Strategy: &ExponentialBackoff{MaxAttempts: 5}, Sleep: rec.sleep}

	calls := 0
	attempts, err := retrier.Do(context.Background(), func(context.Context) error {
		calls++
		return &pkgerrors.APIError{StatusCode: 401}
	})

	if calls != 1 || attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1", calls, attempts)
	}
	if len(rec.delays) != 0 {
		t.Errorf("expected no sleeps, got %v", rec.delays)
	}
	if pkgerrors.StatusCode(err) != 401 {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRetrier_RecoversAfterTransientFailure(t *testing.T) {
	rec := &recordingSleep{}
	var retried []int
	retrier := &Retrier{
		Strategy: &ExponentialBackoff{InitialDelay: time.Millisecond, MaxAttempts: 4},
		Sleep:    rec.sleep,
		OnRetry: func(attempt int, _ time.Duration, _ error) {
			retried = append(retried, attempt)
		},
	}

	calls := 0
	attempts, err := retrier.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &pkgerrors.APIError{StatusCode: 503, RetryAfter: 2 * time.Second}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	for _, d := range rec.delays {
		if d != 2*time.Second {
			t.Errorf("expected Retry-After delay 2s, got %v", d)
		}
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v", retried)
	}
}

func TestRetrier_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	retrier := &Retrier{Strategy: &ExponentialBackoff{MaxAttempts: 5}}

	calls := 0
	_, err := retrier.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return &pkgerrors.APIError{StatusCode: 500}
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err == nil {
		t.Error("expected error")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{" 1.5 ", 1500 * time.Millisecond},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPostJSON(t *testing.T) {
	t.Run("success returns body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			if r.Header.Get("x-api-key") != "k" {
				t.Errorf("missing custom header")
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		body, err := PostJSON(context.Background(), server.Client(), "test", server.URL, map[string]string{"x-api-key": "k"}, map[string]string{"a": "b"})
		if err != nil {
			t.Fatalf("PostJSON: %v", err)
		}
		if string(body) != `{"ok":true}` {
			t.Errorf("body = %s", body)
		}
	})

	t.Run("429 with Retry-After", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "4")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
		}))
		defer server.Close()

		_, err := PostJSON(context.Background(), server.Client(), "anthropic", server.URL, nil, struct{}{})
		apiErr, ok := pkgerrors.AsAPIError(err)
		if !ok {
			t.Fatalf("expected APIError, got %T", err)
		}
		if apiErr.StatusCode != 429 || apiErr.RetryAfter != 4*time.Second || apiErr.Message != "slow down" {
			t.Errorf("unexpected APIError %+v", apiErr)
		}
		if apiErr.Provider != "anthropic" {
			t.Errorf("Provider = %q", apiErr.Provider)
		}
	})

	t.Run("refused connection is transport error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		addr := server.URL
		server.Close()

		_, err := PostJSON(context.Background(), http.DefaultClient, "ollama", addr, nil, struct{}{})
		var transportErr *pkgerrors.TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("expected TransportError, got %T: %v", err, err)
		}
		if !transportErr.Retryable {
			t.Error("refused connections should be retryable")
		}
	})
}
