package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/widget-session-server/internal/errors"
	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/repository"
	"github.com/openclaw/widget-session-server/internal/util"
)

const testTTL = 30 * time.Minute

type gatewayFixture struct {
	clock   *fakeClock
	store   *repository.MemorySessionStore
	sink    *recordingSink
	gateway *SessionGateway
}

func newGatewayFixture(opts ...repository.MemorySessionStoreOption) *gatewayFixture {
	clock := newFakeClock()
	store := repository.NewMemorySessionStore(testTTL,
		append([]repository.MemorySessionStoreOption{repository.WithSessionClock(clock.Now)}, opts...)...)
	sink := &recordingSink{}
	gateway := NewSessionGateway(store, NewActivityTracker(store),
		WithEventRecorder(sink),
		WithGatewayClock(clock.Now))
	return &gatewayFixture{clock: clock, store: store, sink: sink, gateway: gateway}
}

func TestSessionGateway_CreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a session for the merchant", func(t *testing.T) {
		f := newGatewayFixture()

		session, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		assert.True(t, util.IsValidSessionID(session.ID))
		assert.Equal(t, "merchant-1", session.MerchantID)
		assert.Equal(t, testEpoch.Add(testTTL), session.ExpiresAt)
		assert.Equal(t, []model.SessionEventType{model.SessionEventCreated}, f.sink.Types())
		assert.Equal(t, 1, f.gateway.ActiveSessions())
	})

	t.Run("rejects missing and malformed merchant ids", func(t *testing.T) {
		f := newGatewayFixture()

		_, err := f.gateway.CreateSession(ctx, "")
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))

		_, err = f.gateway.CreateSession(ctx, "bad merchant")
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

		_, err = f.gateway.CreateSession(ctx, strings.Repeat("m", util.MaxMerchantIDLength+1))
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
		assert.Equal(t, 0, f.gateway.ActiveSessions())
	})

	t.Run("reports capacity exhaustion", func(t *testing.T) {
		f := newGatewayFixture(repository.WithMaxSessions(1))

		_, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		_, err = f.gateway.CreateSession(ctx, "merchant-1")
		assert.Equal(t, apperrors.ErrCodeSessionCapacityExceeded, apperrors.GetCode(err))
		assert.ErrorIs(t, err, repository.ErrStoreFull)
	})

	t.Run("entropy failure aborts creation", func(t *testing.T) {
		f := newGatewayFixture(repository.WithIDGenerator(func() (string, error) {
			return "", errors.New("entropy source unavailable")
		}))

		session, err := f.gateway.CreateSession(ctx, "merchant-1")
		assert.Nil(t, session)
		assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
		assert.Equal(t, 0, f.gateway.ActiveSessions())
		assert.Empty(t, f.sink.Types())
	})

	t.Run("audits entropy failure and id collision separately", func(t *testing.T) {
		buf := captureLog(t)
		f := newGatewayFixture(repository.WithIDGenerator(func() (string, error) {
			return "", errors.New("entropy source unavailable")
		}))

		_, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.Error(t, err)
		assert.Contains(t, buf.String(), `"event_type":"entropy_failure"`)
		assert.NotContains(t, buf.String(), `"event_type":"session_id_collision"`)

		buf.Reset()
		fixedID := "6f1c2b7e-8d4a-4c3b-9e2f-1a2b3c4d5e6f"
		f = newGatewayFixture(repository.WithIDGenerator(func() (string, error) {
			return fixedID, nil
		}))

		_, err = f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		buf.Reset()
		_, err = f.gateway.CreateSession(ctx, "merchant-1")
		assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
		assert.ErrorIs(t, err, repository.ErrIDCollision)
		assert.Contains(t, buf.String(), `"event_type":"session_id_collision"`)
		assert.NotContains(t, buf.String(), `"event_type":"entropy_failure"`)
		assert.Equal(t, 1, f.gateway.ActiveSessions())
	})
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestSessionGateway_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("renews the session from the latest activity", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		f.clock.Advance(10 * time.Minute)
		session, err := f.gateway.Validate(ctx, created.ID, "merchant-1")
		require.NoError(t, err)

		assert.Equal(t, f.clock.Now(), session.LastActivityAt)
		assert.Equal(t, f.clock.Now().Add(testTTL), session.ExpiresAt)
		assert.Equal(t, created.CreatedAt, session.CreatedAt)
	})

	t.Run("unknown and malformed ids are not found", func(t *testing.T) {
		f := newGatewayFixture()

		_, err := f.gateway.Validate(ctx, "7d0f5c3e-3b7a-4b8e-9c1d-2f6a8e4b1c0d", "merchant-1")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))

		_, err = f.gateway.Validate(ctx, "not-a-session", "merchant-1")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))
	})

	t.Run("expired session reports expired once then not found", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		f.clock.Advance(testTTL)
		_, err = f.gateway.Validate(ctx, created.ID, "merchant-1")
		assert.Equal(t, apperrors.ErrCodeSessionExpired, apperrors.GetCode(err))

		_, err = f.gateway.Validate(ctx, created.ID, "merchant-1")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))

		assert.Equal(t, []model.SessionEventType{
			model.SessionEventCreated,
			model.SessionEventExpired,
		}, f.sink.Types())
	})

	t.Run("another merchant cannot see or renew the session", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		f.clock.Advance(5 * time.Minute)
		_, err = f.gateway.Validate(ctx, created.ID, "merchant-2")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))
		assert.ErrorIs(t, err, ErrMerchantMismatch)

		_, err = f.gateway.GetSession(ctx, created.ID, "merchant-2")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))

		session, err := f.gateway.GetSession(ctx, created.ID, "merchant-1")
		require.NoError(t, err)
		assert.Equal(t, created.LastActivityAt, session.LastActivityAt)
		assert.Equal(t, created.ExpiresAt, session.ExpiresAt)
	})

	t.Run("expired session of another merchant is not found", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		f.clock.Advance(testTTL + time.Second)
		_, err = f.gateway.Validate(ctx, created.ID, "merchant-2")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))
		assert.ErrorIs(t, err, ErrMerchantMismatch)
	})
}

func TestSessionGateway_GetSession(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture()
	created, err := f.gateway.CreateSession(ctx, "merchant-1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	session, err := f.gateway.GetSession(ctx, created.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, created.ExpiresAt, session.ExpiresAt)

	refreshed, err := f.gateway.RefreshSession(ctx, created.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(testTTL), refreshed.ExpiresAt)
}

func TestSessionGateway_EndSession(t *testing.T) {
	ctx := context.Background()

	t.Run("ends the session once", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		ended, err := f.gateway.EndSession(ctx, created.ID, "merchant-1")
		require.NoError(t, err)
		assert.True(t, ended)

		ended, err = f.gateway.EndSession(ctx, created.ID, "merchant-1")
		require.NoError(t, err)
		assert.False(t, ended)

		_, err = f.gateway.Validate(ctx, created.ID, "merchant-1")
		assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))
		assert.Equal(t, []model.SessionEventType{
			model.SessionEventCreated,
			model.SessionEventEnded,
		}, f.sink.Types())
	})

	t.Run("another merchant cannot end the session", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		ended, err := f.gateway.EndSession(ctx, created.ID, "merchant-2")
		require.NoError(t, err)
		assert.False(t, ended)

		_, err = f.gateway.Validate(ctx, created.ID, "merchant-1")
		assert.NoError(t, err)
		assert.Contains(t, f.sink.Types(), model.SessionEventRejected)
	})

	t.Run("unknown and expired sessions are a no-op", func(t *testing.T) {
		f := newGatewayFixture()
		created, err := f.gateway.CreateSession(ctx, "merchant-1")
		require.NoError(t, err)

		ended, err := f.gateway.EndSession(ctx, "7d0f5c3e-3b7a-4b8e-9c1d-2f6a8e4b1c0d", "merchant-1")
		require.NoError(t, err)
		assert.False(t, ended)

		f.clock.Advance(testTTL)
		ended, err = f.gateway.EndSession(ctx, created.ID, "merchant-1")
		require.NoError(t, err)
		assert.False(t, ended)
	})

	t.Run("missing merchant is a validation error", func(t *testing.T) {
		f := newGatewayFixture()
		_, err := f.gateway.EndSession(ctx, "7d0f5c3e-3b7a-4b8e-9c1d-2f6a8e4b1c0d", "")
		assert.Equal(t, apperrors.ErrCodeMissingRequired, apperrors.GetCode(err))
	})
}

func TestSessionGateway_ConcurrentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture()

	const sessions = 5
	ids := make([]string, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := f.gateway.CreateSession(ctx, "merchant-1")
			if assert.NoError(t, err) {
				ids[i] = session.ID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate session id %s", id)
		seen[id] = true
	}

	for _, id := range ids {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.gateway.Validate(ctx, id, "merchant-1")
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids[:2] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ended, err := f.gateway.EndSession(ctx, id, "merchant-1")
			assert.NoError(t, err)
			assert.True(t, ended)
		}(id)
	}
	wg.Wait()

	for i, id := range ids {
		_, err := f.gateway.Validate(ctx, id, "merchant-1")
		if i < 2 {
			assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 3, f.gateway.ActiveSessions())
}

func TestActivityTracker_RecordActivity(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewMemorySessionStore(testTTL, repository.WithSessionClock(clock.Now))
	tracker := NewActivityTracker(store)

	created, err := store.Create("merchant-1")
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	session, err := tracker.RecordActivity(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), session.LastActivityAt)

	_, err = tracker.RecordActivity(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}
