package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/widget-session-server/internal/errors"
	"github.com/openclaw/widget-session-server/internal/middleware"
	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/service"
)

type widgetRequestBody struct {
	SessionID string `json:"session_id"`
}

// WidgetHandler validates the visitor's session and hands message, search
// and checkout requests to the downstream pipeline.
type WidgetHandler struct {
	gateway *service.SessionGateway
	relay   *service.RelayService
}

func NewWidgetHandler(gateway *service.SessionGateway, relay *service.RelayService) *WidgetHandler {
	return &WidgetHandler{
		gateway: gateway,
		relay:   relay,
	}
}

func (h *WidgetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/message", h.handle(model.WidgetRequestMessage))
	r.Post("/search", h.handle(model.WidgetRequestSearch))
	r.Post("/checkout", h.handle(model.WidgetRequestCheckout))

	return r
}

// POST /v1/widget/{kind}
func (h *WidgetHandler) handle(kind model.WidgetRequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, body, err := readWidgetBody(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if body.SessionID == "" {
			writeError(w, apperrors.MissingRequired("session_id"))
			return
		}

		session, err := h.gateway.Validate(ctx, body.SessionID, middleware.GetMerchantID(ctx))
		if err != nil {
			writeError(w, err)
			return
		}

		req, err := h.relay.Forward(ctx, kind, session, payload)
		if err != nil {
			log.Error().
				Err(err).
				Str("sessionId", session.ID).
				Str("kind", string(kind)).
				Msg("failed to relay widget request")
			writeError(w, apperrors.External("widget pipeline", err))
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"requestId": req.ID,
			"sessionId": session.ID,
			"expiresAt": session.ExpiresAt,
		})
	}
}

func readWidgetBody(r *http.Request) (json.RawMessage, widgetRequestBody, error) {
	var body widgetRequestBody

	if r.Body == nil {
		return nil, body, apperrors.MissingRequired("session_id")
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, body, apperrors.BodyTooLarge()
		}
		return nil, body, apperrors.ValidationError("Failed to read request body")
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, body, apperrors.ValidationError("Request body must be a JSON object")
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, body, apperrors.ValidationError("Invalid JSON body")
	}

	return json.RawMessage(raw), body, nil
}
