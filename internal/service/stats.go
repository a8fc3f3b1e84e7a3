package service

import (
	"context"
	"time"

	apperrors "github.com/openclaw/widget-session-server/internal/errors"
	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/repository"
	"github.com/openclaw/widget-session-server/internal/util"
)

// SessionEventReader is the read side of lifecycle telemetry.
type SessionEventReader interface {
	FindBySessionID(ctx context.Context, sessionID string) ([]model.SessionEvent, error)
	CountByMerchantSince(ctx context.Context, merchantID string, eventType model.SessionEventType, since time.Time) (int, error)
}

type MerchantStats struct {
	MerchantID   string                         `json:"merchantId"`
	LiveSessions int                            `json:"liveSessions"`
	Since        time.Time                      `json:"since"`
	Events       map[model.SessionEventType]int `json:"events,omitempty"`
}

var statsEventTypes = []model.SessionEventType{
	model.SessionEventCreated,
	model.SessionEventEnded,
	model.SessionEventExpired,
	model.SessionEventReaped,
	model.SessionEventRejected,
}

// StatsService answers per-merchant questions about sessions. Without an
// event reader only live counts are available.
type StatsService struct {
	store  repository.SessionStore
	events SessionEventReader
	window time.Duration
	now    func() time.Time
}

type StatsOption func(*StatsService)

func WithEventReader(reader SessionEventReader) StatsOption {
	return func(s *StatsService) {
		s.events = reader
	}
}

func WithStatsClock(now func() time.Time) StatsOption {
	return func(s *StatsService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStatsService(store repository.SessionStore, window time.Duration, opts ...StatsOption) *StatsService {
	s := &StatsService{
		store:  store,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsService) MerchantStats(ctx context.Context, merchantID string) (*MerchantStats, error) {
	if err := validateMerchantID(merchantID); err != nil {
		return nil, err
	}

	stats := &MerchantStats{
		MerchantID:   merchantID,
		LiveSessions: s.store.CountByMerchant(merchantID),
		Since:        s.now().UTC().Add(-s.window),
	}
	if s.events == nil {
		return stats, nil
	}

	stats.Events = make(map[model.SessionEventType]int, len(statsEventTypes))
	for _, eventType := range statsEventTypes {
		count, err := s.events.CountByMerchantSince(ctx, merchantID, eventType, stats.Since)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		stats.Events[eventType] = count
	}
	return stats, nil
}

// SessionHistory returns the recorded lifecycle of a session owned by
// merchantID, oldest first. Unknown and foreign sessions both yield
// SESSION_NOT_FOUND.
func (s *StatsService) SessionHistory(ctx context.Context, sessionID, merchantID string) ([]model.SessionEvent, error) {
	if err := validateMerchantID(merchantID); err != nil {
		return nil, err
	}
	if s.events == nil {
		return nil, apperrors.TelemetryDisabled()
	}
	if !util.IsValidSessionID(sessionID) {
		return nil, apperrors.SessionNotFound()
	}

	events, err := s.events.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if len(events) == 0 || !util.ConstantTimeEqual(events[0].MerchantID, merchantID) {
		return nil, apperrors.SessionNotFound()
	}
	return events, nil
}
