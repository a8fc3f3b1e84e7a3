package errors

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Session
	ErrCodeSessionNotFound         ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExpired          ErrorCode = "SESSION_EXPIRED"
	ErrCodeSessionCapacityExceeded ErrorCode = "SESSION_CAPACITY_EXCEEDED"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodeBodyTooLarge    ErrorCode = "BODY_TOO_LARGE"

	// Rate Limiting
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Telemetry
	ErrCodeTelemetryDisabled ErrorCode = "TELEMETRY_DISABLED"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	retryAfter time.Duration
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// RetryAfter is the back-off hint carried by rate limit errors; zero otherwise.
func (e *AppError) RetryAfter() time.Duration {
	return e.retryAfter
}

// RetryAfterSeconds rounds the back-off hint up to whole seconds.
func (e *AppError) RetryAfterSeconds() int {
	if e.retryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.retryAfter.Seconds()))
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

// SessionNotFound is also what callers see for a session owned by another
// merchant, so the two cases are indistinguishable from outside.
func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found")
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session has expired")
}

func SessionCapacityExceeded() *AppError {
	return New(ErrCodeSessionCapacityExceeded, "Session capacity exceeded, try again later")
}

// RateLimited always carries a positive retry hint of at least one second.
func RateLimited(retryAfter time.Duration) *AppError {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	err := New(ErrCodeRateLimited, "Rate limit exceeded")
	err.retryAfter = retryAfter
	return err.WithDetails(map[string]int{"retryAfterSeconds": err.RetryAfterSeconds()})
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func BodyTooLarge() *AppError {
	return New(ErrCodeBodyTooLarge, "Request body too large")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// TelemetryDisabled is returned for history queries when no event store is
// configured.
func TelemetryDisabled() *AppError {
	return New(ErrCodeTelemetryDisabled, "Session telemetry is not enabled")
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
