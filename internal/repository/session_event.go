package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/widget-session-server/internal/database"
	"github.com/openclaw/widget-session-server/internal/model"
)

type SessionEventRepository interface {
	Record(ctx context.Context, event model.SessionEvent) error
	FindBySessionID(ctx context.Context, sessionID string) ([]model.SessionEvent, error)
	CountByMerchantSince(ctx context.Context, merchantID string, eventType model.SessionEventType, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type sessionEventRepo struct {
	db database.DBTX
}

func NewSessionEventRepository(db *sqlx.DB) SessionEventRepository {
	return &sessionEventRepo{db: db}
}

func (r *sessionEventRepo) Record(ctx context.Context, event model.SessionEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_events (session_id, merchant_id, event_type, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, event.SessionID, event.MerchantID, event.Type, event.OccurredAt)
	return err
}

func (r *sessionEventRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.SessionEvent, error) {
	var events []model.SessionEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT id, session_id, merchant_id, event_type, occurred_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY occurred_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *sessionEventRepo) CountByMerchantSince(ctx context.Context, merchantID string, eventType model.SessionEventType, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM session_events
		WHERE merchant_id = $1 AND event_type = $2 AND occurred_at >= $3
	`, merchantID, eventType, since)
	return count, err
}

func (r *sessionEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM session_events WHERE occurred_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
