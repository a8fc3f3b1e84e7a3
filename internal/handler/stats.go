package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/widget-session-server/internal/middleware"
	"github.com/openclaw/widget-session-server/internal/service"
)

type StatsHandler struct {
	stats *service.StatsService
}

func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.MerchantStats)
	r.Get("/sessions/{sessionID}/events", h.SessionHistory)

	return r
}

// GET /v1/stats
func (h *StatsHandler) MerchantStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.MerchantStats(r.Context(), middleware.GetMerchantID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GET /v1/stats/sessions/{sessionID}/events
func (h *StatsHandler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	events, err := h.stats.SessionHistory(ctx, sessionID, middleware.GetMerchantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	formatted := make([]map[string]any, len(events))
	for i, event := range events {
		formatted[i] = formatSessionEvent(event)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"events":    formatted,
	})
}
