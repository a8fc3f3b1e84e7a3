package model

import "time"

type SessionEventType string

const (
	SessionEventCreated  SessionEventType = "created"
	SessionEventEnded    SessionEventType = "ended"
	SessionEventExpired  SessionEventType = "expired"
	SessionEventReaped   SessionEventType = "reaped"
	SessionEventRejected SessionEventType = "rejected"
)

// SessionEvent is a lifecycle telemetry record. Expired and reaped are
// distinguished here only; callers see both as an unresolvable session.
type SessionEvent struct {
	ID         int64            `db:"id" json:"-"`
	SessionID  string           `db:"session_id" json:"sessionId"`
	MerchantID string           `db:"merchant_id" json:"merchantId"`
	Type       SessionEventType `db:"event_type" json:"type"`
	OccurredAt time.Time        `db:"occurred_at" json:"occurredAt"`
}

func NewSessionEvent(session Session, eventType SessionEventType, at time.Time) SessionEvent {
	return SessionEvent{
		SessionID:  session.ID,
		MerchantID: session.MerchantID,
		Type:       eventType,
		OccurredAt: at.UTC(),
	}
}
