// Package errors defines the error taxonomy shared by every pipeline stage.
//
// Errors fall into four groups:
//
//   - Configuration errors: malformed or missing catalogs and run
//     configuration. Represented by ValidationError and fatal to a run.
//   - Transient call errors: retryable HTTP statuses and transport
//     failures. Represented by APIError and TransportError.
//   - Permanent per-item failures: non-retryable HTTP errors and model
//     output that does not match the expected schema
//     (MalformedResponseError). Recorded as failure records.
//   - Data-integrity conditions: unresolved references. These are flagged
//     on the affected record rather than returned as errors.
//
// All typed errors implement the Error interface:
//
//	var pipeErr errors.Error
//	if stdErrors.As(err, &pipeErr) {
//	    log.Printf("code=%s retryable=%v", pipeErr.Code(), pipeErr.IsRetryable())
//	}
//
// Classify maps any error onto an ErrorCode for failure records and stage
// reports.
package errors
