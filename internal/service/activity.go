package service

import (
	"context"

	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/repository"
)

// ActivityTracker is the single place where visitor activity slides a
// session's expiry forward.
type ActivityTracker struct {
	store repository.SessionStore
}

func NewActivityTracker(store repository.SessionStore) *ActivityTracker {
	return &ActivityTracker{store: store}
}

func (a *ActivityTracker) RecordActivity(_ context.Context, sessionID string) (*model.Session, error) {
	return a.store.Refresh(sessionID)
}
