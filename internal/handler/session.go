package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/widget-session-server/internal/middleware"
	"github.com/openclaw/widget-session-server/internal/service"
)

type SessionHandler struct {
	gateway *service.SessionGateway
	now     func() time.Time
}

func NewSessionHandler(gateway *service.SessionGateway) *SessionHandler {
	return &SessionHandler{
		gateway: gateway,
		now:     time.Now,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Get("/{sessionID}", h.GetSession)
	r.Post("/{sessionID}/refresh", h.RefreshSession)
	r.Delete("/{sessionID}", h.EndSession)

	return r
}

// POST /v1/session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.gateway.CreateSession(r.Context(), middleware.GetMerchantID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSession(session, h.now()))
}

// GET /v1/session/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.gateway.GetSession(ctx, chi.URLParam(r, "sessionID"), middleware.GetMerchantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSession(session, h.now()))
}

// POST /v1/session/{sessionID}/refresh
func (h *SessionHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.gateway.RefreshSession(ctx, chi.URLParam(r, "sessionID"), middleware.GetMerchantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, formatSession(session, h.now()))
}

// DELETE /v1/session/{sessionID}
//
// Succeeds whether or not the session existed, so callers cannot probe for
// other merchants' sessions.
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, err := h.gateway.EndSession(ctx, chi.URLParam(r, "sessionID"), middleware.GetMerchantID(ctx)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
