package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeSessionNotFound, "Session not found")
		assert.Equal(t, "SESSION_NOT_FOUND: Session not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("database connection failed")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "Database error")
		assert.Contains(t, err.Error(), "database connection failed")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
		assert.True(t, errors.Is(err, cause))
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "merchant_id"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"SessionNotFound", func() *AppError { return SessionNotFound() }, ErrCodeSessionNotFound},
		{"SessionExpired", func() *AppError { return SessionExpired() }, ErrCodeSessionExpired},
		{"SessionCapacityExceeded", func() *AppError { return SessionCapacityExceeded() }, ErrCodeSessionCapacityExceeded},
		{"RateLimited", func() *AppError { return RateLimited(time.Minute) }, ErrCodeRateLimited},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"InvalidInput", func() *AppError { return InvalidInput("merchant_id", "too long") }, ErrCodeInvalidInput},
		{"MissingRequired", func() *AppError { return MissingRequired("session_id") }, ErrCodeMissingRequired},
		{"BodyTooLarge", func() *AppError { return BodyTooLarge() }, ErrCodeBodyTooLarge},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
		{"TelemetryDisabled", func() *AppError { return TelemetryDisabled() }, ErrCodeTelemetryDisabled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestRateLimited(t *testing.T) {
	t.Run("rounds retry hint up to whole seconds", func(t *testing.T) {
		err := RateLimited(1500 * time.Millisecond)
		assert.Equal(t, 2, err.RetryAfterSeconds())
		assert.Equal(t, map[string]int{"retryAfterSeconds": 2}, err.Details)
	})

	t.Run("never carries less than one second", func(t *testing.T) {
		err := RateLimited(0)
		assert.Equal(t, time.Second, err.RetryAfter())
		assert.Equal(t, 1, err.RetryAfterSeconds())
	})

	t.Run("other errors carry no retry hint", func(t *testing.T) {
		assert.Equal(t, 0, SessionNotFound().RetryAfterSeconds())
	})
}

func TestDatabase(t *testing.T) {
	t.Run("wraps database error", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Database(cause)
		assert.Equal(t, ErrCodeDatabase, err.Code)
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestExternal(t *testing.T) {
	t.Run("wraps external service error", func(t *testing.T) {
		cause := errors.New("timeout")
		err := External("relay", cause)
		assert.Equal(t, ErrCodeExternal, err.Code)
		assert.Contains(t, err.Message, "relay")
		assert.Equal(t, cause, err.Unwrap())
	})
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := SessionExpired()
		wrapped := errors.Join(errors.New("context"), original)
		extracted, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
		assert.True(t, IsAppError(wrapped))
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		err := errors.New("standard error")
		extracted, ok := AsAppError(err)
		assert.False(t, ok)
		assert.Nil(t, extracted)
		assert.False(t, IsAppError(err))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns code for AppError", func(t *testing.T) {
		assert.Equal(t, ErrCodeSessionExpired, GetCode(SessionExpired()))
	})

	t.Run("returns ErrCodeInternal for standard error", func(t *testing.T) {
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}
