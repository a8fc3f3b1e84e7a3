package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/widget-session-server/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantCode apperrors.ErrorCode
	}{
		{"not found", apperrors.SessionNotFound(), http.StatusNotFound, apperrors.ErrCodeSessionNotFound},
		{"expired", apperrors.SessionExpired(), http.StatusUnauthorized, apperrors.ErrCodeSessionExpired},
		{"capacity", apperrors.SessionCapacityExceeded(), http.StatusServiceUnavailable, apperrors.ErrCodeSessionCapacityExceeded},
		{"telemetry disabled", apperrors.TelemetryDisabled(), http.StatusServiceUnavailable, apperrors.ErrCodeTelemetryDisabled},
		{"database", apperrors.Database(errors.New("conn reset")), http.StatusInternalServerError, apperrors.ErrCodeDatabase},
		{"missing field", apperrors.MissingRequired("merchant_id"), http.StatusBadRequest, apperrors.ErrCodeMissingRequired},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Empty(t, rec.Header().Get("Retry-After"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}

	t.Run("rate limited sets Retry-After", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.RateLimited(42*time.Second))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "42", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"retryAfterSeconds":42`)
	})
}

func TestClientIP(t *testing.T) {
	t.Run("strips port", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:52100"
		assert.Equal(t, "203.0.113.7", ClientIP(req))
	})

	t.Run("keeps bare address set by RealIP", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "2001:db8::1"
		assert.Equal(t, "2001:db8::1", ClientIP(req))
	})
}
