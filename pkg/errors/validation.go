package errors

import "fmt"

// ValidationError represents a configuration or record validation failure.
type ValidationError struct {
	Field   string
	Message string
	Err     error // Underlying error for wrapping
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("govbench: validation error: %s", e.Message)
	}
	return fmt.Sprintf("govbench: validation error for field %q: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Code returns the error code for the validation error.
func (e *ValidationError) Code() ErrorCode {
	return ErrCodeValidation
}

// IsRetryable returns false for validation errors (they should be fixed, not retried).
func (e *ValidationError) IsRetryable() bool {
	return false
}

var _ Error = (*ValidationError)(nil)

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorWithCause creates a new validation error with an underlying cause.
func NewValidationErrorWithCause(field, message string, cause error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     cause,
	}
}

// MalformedResponseError reports a model or judge response that does not
// match the expected shape. It is never retried.
type MalformedResponseError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("govbench: malformed response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("govbench: malformed response: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// Code implements Error.
func (e *MalformedResponseError) Code() ErrorCode {
	return ErrCodeMalformedResponse
}

// IsRetryable implements Error.
func (e *MalformedResponseError) IsRetryable() bool {
	return false
}

var _ Error = (*MalformedResponseError)(nil)

// Malformed creates a MalformedResponseError with a formatted reason.
func Malformed(format string, args ...any) *MalformedResponseError {
	return &MalformedResponseError{Reason: fmt.Sprintf(format, args...)}
}
