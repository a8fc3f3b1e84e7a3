package service

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openclaw/widget-session-server/internal/model"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testEpoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockWindowStore struct {
	mock.Mock
}

func (m *mockWindowStore) Take(ctx context.Context, now time.Time, rules []WindowRule) ([]RuleStatus, bool, error) {
	args := m.Called(ctx, now, rules)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]RuleStatus), args.Bool(1), args.Error(2)
}

// recordingSink collects session events in memory.
type recordingSink struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (s *recordingSink) Record(_ context.Context, event model.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []model.SessionEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]model.SessionEventType, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}
