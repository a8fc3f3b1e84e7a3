package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/widget-session-server/internal/errors"
	"github.com/openclaw/widget-session-server/internal/httputil"
	"github.com/openclaw/widget-session-server/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError logs server-side failures before answering; client errors are
// not logged.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if !apperrors.IsAppError(err) || httputil.StatusFromCode(code) >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(code)).Msg("request failed")
	}
	httputil.WriteError(w, err)
}

func formatSession(session *model.Session, now time.Time) map[string]any {
	return map[string]any{
		"sessionId":      session.ID,
		"merchantId":     session.MerchantID,
		"createdAt":      session.CreatedAt.Format(time.RFC3339),
		"lastActivityAt": session.LastActivityAt.Format(time.RFC3339),
		"expiresAt":      session.ExpiresAt.Format(time.RFC3339),
		"expiresIn":      int(session.TTLRemaining(now).Seconds()),
	}
}

func formatSessionEvent(event model.SessionEvent) map[string]any {
	return map[string]any{
		"type":       event.Type,
		"occurredAt": event.OccurredAt.Format(time.RFC3339),
	}
}
