package errors

import (
	"fmt"
	"time"
)

// retryableStatus lists the HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	408: true,
	409: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryableStatus reports whether an HTTP status code is retryable.
func IsRetryableStatus(status int) bool {
	return retryableStatus[status]
}

// APIError represents a non-2xx response from a model provider.
// It supports error wrapping via Unwrap() and comparison via Is().
type APIError struct {
	StatusCode int           `json:"status_code"`
	Message    string        `json:"message"`
	Provider   string        `json:"provider,omitempty"`
	RetryAfter time.Duration `json:"-"` // From Retry-After header
	Err        error         `json:"-"` // Underlying error for wrapping
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := "govbench: API error"
	if e.Provider != "" {
		prefix = fmt.Sprintf("govbench: %s API error", e.Provider)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s (status %d): %s", prefix, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (status %d)", prefix, e.StatusCode)
}

// Unwrap returns the underlying error for error chain support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for errors.Is().
// It matches on status code, allowing comparisons like:
//
//	if errors.Is(err, errors.ErrRateLimited) { ... }
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// IsRateLimited returns true if the error is a 429 Too Many Requests error.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if the error is a 5xx server error.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// SuggestedRetryAfter returns the suggested retry delay from the Retry-After header.
func (e *APIError) SuggestedRetryAfter() time.Duration {
	return e.RetryAfter
}

// Code returns the error code for the API error.
func (e *APIError) Code() ErrorCode {
	switch {
	case e.StatusCode == 401, e.StatusCode == 403:
		return ErrCodeAuth
	case e.IsRateLimited():
		return ErrCodeRateLimit
	case e.StatusCode == 408:
		return ErrCodeTimeout
	default:
		return ErrCodeAPI
	}
}

var _ Error = (*APIError)(nil)

// TransportError wraps a failure below the HTTP layer: timeouts, refused or
// reset connections, truncated bodies.
type TransportError struct {
	Op        string
	Err       error
	Retryable bool
	Timeout   bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("govbench: transport error: %v", e.Err)
	}
	return fmt.Sprintf("govbench: transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable implements Error.
func (e *TransportError) IsRetryable() bool {
	return e.Retryable
}

// Code implements Error.
func (e *TransportError) Code() ErrorCode {
	if e.Timeout {
		return ErrCodeTimeout
	}
	return ErrCodeNetwork
}

var _ Error = (*TransportError)(nil)
