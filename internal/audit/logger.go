package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/httputil"
)

type EventType string

const (
	EventSessionCreate    EventType = "session_create"
	EventSessionEnd       EventType = "session_end"
	EventSessionExpire    EventType = "session_expire"
	EventMerchantMismatch EventType = "merchant_mismatch"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
	EventCapacityExceeded EventType = "capacity_exceeded"
	EventEntropyFailure   EventType = "entropy_failure"
	EventIDCollision      EventType = "session_id_collision"
)

type Event struct {
	Type       EventType
	SessionID  string
	MerchantID string
	IP         string
	UserAgent  string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.MerchantID != "" {
		logger = logger.With().Str("merchant_id", event.MerchantID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Duration:
		return e.Dur(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = httputil.ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}
