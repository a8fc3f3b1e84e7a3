package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/audit"
	apperrors "github.com/openclaw/widget-session-server/internal/errors"
	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/repository"
	"github.com/openclaw/widget-session-server/internal/util"
)

// ErrMerchantMismatch is the cause attached to SESSION_NOT_FOUND when the
// session exists but belongs to a different merchant.
var ErrMerchantMismatch = errors.New("session belongs to another merchant")

// SessionEventRecorder receives lifecycle telemetry. Implementations must not
// block the request path.
type SessionEventRecorder interface {
	Record(ctx context.Context, event model.SessionEvent) error
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, model.SessionEvent) error { return nil }

// SessionGateway is the only entry point handlers use to resolve sessions.
// Every lookup is scoped to a merchant; a session owned by another merchant
// is reported exactly like one that does not exist.
type SessionGateway struct {
	store    repository.SessionStore
	activity *ActivityTracker
	events   SessionEventRecorder
	now      func() time.Time
}

type SessionGatewayOption func(*SessionGateway)

func WithEventRecorder(events SessionEventRecorder) SessionGatewayOption {
	return func(g *SessionGateway) {
		if events != nil {
			g.events = events
		}
	}
}

func WithGatewayClock(now func() time.Time) SessionGatewayOption {
	return func(g *SessionGateway) {
		if now != nil {
			g.now = now
		}
	}
}

func NewSessionGateway(store repository.SessionStore, activity *ActivityTracker, opts ...SessionGatewayOption) *SessionGateway {
	g := &SessionGateway{
		store:    store,
		activity: activity,
		events:   noopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SessionGateway) CreateSession(ctx context.Context, merchantID string) (*model.Session, error) {
	if err := validateMerchantID(merchantID); err != nil {
		return nil, err
	}

	session, err := g.store.Create(merchantID)
	if err != nil {
		if errors.Is(err, repository.ErrStoreFull) {
			audit.Log(ctx, audit.Event{
				Type:       audit.EventCapacityExceeded,
				MerchantID: merchantID,
				Details:    map[string]interface{}{"live_sessions": g.store.Count()},
			})
			return nil, apperrors.SessionCapacityExceeded().WithCause(err)
		}

		log.Error().Err(err).Str("merchantId", merchantID).Msg("failed to create session")
		eventType := audit.EventEntropyFailure
		if errors.Is(err, repository.ErrIDCollision) {
			eventType = audit.EventIDCollision
		}
		audit.Log(ctx, audit.Event{Type: eventType, MerchantID: merchantID})
		return nil, apperrors.Internal("Failed to create session").WithCause(err)
	}

	g.record(ctx, *session, model.SessionEventCreated, session.CreatedAt)
	audit.Log(ctx, audit.Event{
		Type:       audit.EventSessionCreate,
		SessionID:  session.ID,
		MerchantID: merchantID,
	})

	return session, nil
}

// GetSession returns the session without counting the read as activity.
func (g *SessionGateway) GetSession(ctx context.Context, sessionID, merchantID string) (*model.Session, error) {
	return g.resolve(ctx, sessionID, merchantID)
}

// RefreshSession records activity and returns the renewed session.
func (g *SessionGateway) RefreshSession(ctx context.Context, sessionID, merchantID string) (*model.Session, error) {
	if _, err := g.resolve(ctx, sessionID, merchantID); err != nil {
		return nil, err
	}

	session, err := g.activity.RecordActivity(ctx, sessionID)
	if err != nil {
		return nil, g.storeError(ctx, session, err)
	}
	return session, nil
}

// Validate checks that sessionID is live and owned by merchantID, records the
// activity, and returns the renewed session.
func (g *SessionGateway) Validate(ctx context.Context, sessionID, merchantID string) (*model.Session, error) {
	return g.RefreshSession(ctx, sessionID, merchantID)
}

// EndSession deletes the session if it is live and owned by merchantID. It
// reports whether anything was deleted; absent, expired and foreign sessions
// are not errors.
func (g *SessionGateway) EndSession(ctx context.Context, sessionID, merchantID string) (bool, error) {
	if err := validateMerchantID(merchantID); err != nil {
		return false, err
	}

	session, err := g.resolve(ctx, sessionID, merchantID)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && isSessionLookupCode(appErr.Code) {
			return false, nil
		}
		return false, err
	}

	if !g.store.Delete(sessionID) {
		return false, nil
	}

	g.record(ctx, *session, model.SessionEventEnded, g.now())
	audit.Log(ctx, audit.Event{
		Type:       audit.EventSessionEnd,
		SessionID:  sessionID,
		MerchantID: merchantID,
	})
	return true, nil
}

// ActiveSessions returns the number of sessions held by the store.
func (g *SessionGateway) ActiveSessions() int {
	return g.store.Count()
}

func (g *SessionGateway) resolve(ctx context.Context, sessionID, merchantID string) (*model.Session, error) {
	if err := validateMerchantID(merchantID); err != nil {
		return nil, err
	}
	if !util.IsValidSessionID(sessionID) {
		return nil, apperrors.SessionNotFound()
	}

	session, err := g.store.Get(sessionID)
	if err != nil {
		if session != nil && !owns(session, merchantID) {
			g.storeError(ctx, session, err)
			return nil, g.mismatch(ctx, session, merchantID)
		}
		return nil, g.storeError(ctx, session, err)
	}

	if !owns(session, merchantID) {
		return nil, g.mismatch(ctx, session, merchantID)
	}
	return session, nil
}

// storeError translates store sentinels. stale is the evicted snapshot
// returned alongside ErrSessionExpired, if any.
func (g *SessionGateway) storeError(ctx context.Context, stale *model.Session, err error) error {
	switch {
	case errors.Is(err, repository.ErrSessionExpired):
		if stale != nil {
			g.record(ctx, *stale, model.SessionEventExpired, g.now())
			audit.Log(ctx, audit.Event{
				Type:       audit.EventSessionExpire,
				SessionID:  stale.ID,
				MerchantID: stale.MerchantID,
			})
		}
		return apperrors.SessionExpired().WithCause(err)
	case errors.Is(err, repository.ErrSessionNotFound):
		return apperrors.SessionNotFound().WithCause(err)
	default:
		return apperrors.Internal("Session lookup failed").WithCause(err)
	}
}

func (g *SessionGateway) mismatch(ctx context.Context, session *model.Session, merchantID string) error {
	g.record(ctx, *session, model.SessionEventRejected, g.now())
	audit.Log(ctx, audit.Event{
		Type:       audit.EventMerchantMismatch,
		SessionID:  session.ID,
		MerchantID: merchantID,
		Details:    map[string]interface{}{"owner_merchant_id": session.MerchantID},
	})
	return apperrors.SessionNotFound().WithCause(ErrMerchantMismatch)
}

func (g *SessionGateway) record(ctx context.Context, session model.Session, eventType model.SessionEventType, at time.Time) {
	if err := g.events.Record(ctx, model.NewSessionEvent(session, eventType, at)); err != nil {
		log.Warn().
			Err(err).
			Str("sessionId", session.ID).
			Str("eventType", string(eventType)).
			Msg("failed to record session event")
	}
}

func owns(session *model.Session, merchantID string) bool {
	return util.ConstantTimeEqual(session.MerchantID, merchantID)
}

func validateMerchantID(merchantID string) error {
	if merchantID == "" {
		return apperrors.MissingRequired("merchant_id")
	}
	if !util.IsValidMerchantID(merchantID) {
		return apperrors.InvalidInput("merchant_id", "must be 1-128 characters of letters, digits or ._:@-")
	}
	return nil
}

func isSessionLookupCode(code apperrors.ErrorCode) bool {
	return code == apperrors.ErrCodeSessionNotFound || code == apperrors.ErrCodeSessionExpired
}
