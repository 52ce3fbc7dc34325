package types

import "fmt"

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Pipeline stages use these instead of hardcoded
// strings so boundary handlers can decide retry/drop/escalate uniformly.
const (
	// Malformed input -- logged and dropped, never retried.
	ErrCodeMalformedPayload ErrorCode = "malformed_payload"

	// Transient I/O failures. The underlying clients carry their own retry
	// policies; the core logs and drops the current event.
	ErrCodeCacheUnavailable  ErrorCode = "cache_unavailable"
	ErrCodeBrokerUnavailable ErrorCode = "broker_unavailable"
	ErrCodeInternalDB        ErrorCode = "internal_database_error"
	ErrCodeAuditUnavailable  ErrorCode = "audit_store_unavailable"

	// Fatal startup conditions.
	ErrCodeStartup ErrorCode = "startup_failed"

	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// AppError is the standard application error type. All domain errors are
// expressed as AppError to enable consistent error chain support and
// boundary-level handling.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
