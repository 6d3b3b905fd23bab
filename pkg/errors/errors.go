package errors

import (
	"context"
	"errors"
	"time"
)

// ErrorCode represents a category of error for failure records and reports.
type ErrorCode string

// Error codes for categorization.
const (
	ErrCodeConfig            ErrorCode = "config"             // Configuration errors
	ErrCodeValidation        ErrorCode = "validation"         // Catalog/record validation errors
	ErrCodeNetwork           ErrorCode = "network"            // Transport/connection errors
	ErrCodeTimeout           ErrorCode = "timeout"            // Request timeouts
	ErrCodeAPI               ErrorCode = "http_error"         // Non-2xx responses
	ErrCodeAuth              ErrorCode = "auth"               // 401/403 responses
	ErrCodeRateLimit         ErrorCode = "rate_limited"       // 429 responses
	ErrCodeMalformedResponse ErrorCode = "malformed_response" // Responses that fail schema checks
	ErrCodeMissingScenario   ErrorCode = "missing_scenario"   // Responses whose scenario is unknown
	ErrCodeCircuitOpen       ErrorCode = "circuit_open"       // Calls skipped while a model's breaker is open
	ErrCodeCanceled          ErrorCode = "canceled"           // Context cancellation
	ErrCodeInternal          ErrorCode = "internal"           // Anything else
)

// Error is the common interface for all typed pipeline errors.
type Error interface {
	error

	// Code returns a machine-readable error code for categorization.
	Code() ErrorCode

	// IsRetryable returns true if the operation can be retried.
	IsRetryable() bool
}

// Sentinel errors.
var (
	ErrEmptyObligations = errors.New("govbench: obligation list is empty")
	ErrUnknownProvider  = errors.New("govbench: unknown provider")
	ErrUnknownModel     = errors.New("govbench: unknown model")
	ErrMissingScenario  = errors.New("govbench: scenario not found")
	ErrCircuitOpen      = errors.New("govbench: circuit breaker is open")
)

// Sentinel APIError values for use with errors.Is().
// These match on status code only.
var (
	ErrNotFound     = &APIError{StatusCode: 404}
	ErrUnauthorized = &APIError{StatusCode: 401}
	ErrForbidden    = &APIError{StatusCode: 403}
	ErrRateLimited  = &APIError{StatusCode: 429}
)

// IsRetryable returns true if the error represents a retryable condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pipeErr Error
	if errors.As(err, &pipeErr) {
		return pipeErr.IsRetryable()
	}
	return false
}

// RetryAfter returns the server-suggested retry delay carried by err, or 0.
func RetryAfter(err error) time.Duration {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.RetryAfter
	}
	return 0
}

// AsAPIError extracts an *APIError from the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.StatusCode
	}
	return 0
}

// Classify maps err onto an ErrorCode.
func Classify(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ErrCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ErrMissingScenario):
		return ErrCodeMissingScenario
	case errors.Is(err, ErrCircuitOpen):
		return ErrCodeCircuitOpen
	}
	var pipeErr Error
	if errors.As(err, &pipeErr) {
		return pipeErr.Code()
	}
	return ErrCodeInternal
}
