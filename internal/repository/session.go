package repository

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/openclaw/widget-session-server/internal/config"
	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/util"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrStoreFull       = errors.New("session store at capacity")
	ErrIDCollision     = errors.New("session id collision")
)

// maxIDAttempts bounds retries when a freshly generated id is already taken.
const maxIDAttempts = 3

// SessionStore is the authoritative set of live widget sessions.
//
// Get and Refresh evict a session they find past its expiry and return
// ErrSessionExpired together with the stale snapshot, so callers can tell
// "never existed" apart from "existed but expired".
type SessionStore interface {
	Create(merchantID string) (*model.Session, error)
	Get(id string) (*model.Session, error)
	Refresh(id string) (*model.Session, error)
	Delete(id string) bool
	DeleteExpired() []model.Session
	Count() int
	CountByMerchant(merchantID string) int
}

type sessionEntry struct {
	mu      sync.Mutex
	session model.Session
	deleted bool
}

type sessionShard struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// MemorySessionStore shards sessions by id hash and gives each entry its own
// mutex. Lock order is shard before entry; single-key operations never hold
// both at once.
type MemorySessionStore struct {
	shards      []*sessionShard
	mask        uint64
	ttl         time.Duration
	maxSessions int64
	live        atomic.Int64
	newID       func() (string, error)
	now         func() time.Time
}

type MemorySessionStoreOption func(*MemorySessionStore)

// WithMaxSessions sets the hard capacity ceiling. Zero disables it.
func WithMaxSessions(n int) MemorySessionStoreOption {
	return func(s *MemorySessionStore) {
		if n >= 0 {
			s.maxSessions = int64(n)
		}
	}
}

func WithSessionClock(now func() time.Time) MemorySessionStoreOption {
	return func(s *MemorySessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(gen func() (string, error)) MemorySessionStoreOption {
	return func(s *MemorySessionStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

func NewMemorySessionStore(ttl time.Duration, opts ...MemorySessionStoreOption) *MemorySessionStore {
	s := &MemorySessionStore{
		shards: make([]*sessionShard, config.SessionStoreShards),
		mask:   config.SessionStoreShards - 1,
		ttl:    ttl,
		newID:  util.NewSessionID,
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &sessionShard{entries: make(map[string]*sessionEntry)}
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *MemorySessionStore) shardFor(id string) *sessionShard {
	return s.shards[xxhash.Sum64String(id)&s.mask]
}

func (s *MemorySessionStore) Create(merchantID string) (*model.Session, error) {
	if s.maxSessions > 0 {
		if s.live.Add(1) > s.maxSessions {
			s.live.Add(-1)
			return nil, ErrStoreFull
		}
	} else {
		s.live.Add(1)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			s.live.Add(-1)
			return nil, fmt.Errorf("generate session id: %w", err)
		}

		now := s.now().UTC()
		entry := &sessionEntry{
			session: model.Session{
				ID:             id,
				MerchantID:     merchantID,
				CreatedAt:      now,
				LastActivityAt: now,
				ExpiresAt:      now.Add(s.ttl),
			},
		}

		shard := s.shardFor(id)
		shard.mu.Lock()
		if _, taken := shard.entries[id]; taken {
			shard.mu.Unlock()
			continue
		}
		shard.entries[id] = entry
		shard.mu.Unlock()

		snapshot := entry.session
		return &snapshot, nil
	}

	s.live.Add(-1)
	return nil, ErrIDCollision
}

func (s *MemorySessionStore) lookup(id string) *sessionEntry {
	shard := s.shardFor(id)
	shard.mu.RLock()
	entry := shard.entries[id]
	shard.mu.RUnlock()
	return entry
}

// unlink drops entry from its shard. The caller must already have marked it
// deleted under the entry lock and released that lock.
func (s *MemorySessionStore) unlink(id string, entry *sessionEntry) {
	shard := s.shardFor(id)
	shard.mu.Lock()
	if shard.entries[id] == entry {
		delete(shard.entries, id)
	}
	shard.mu.Unlock()
	s.live.Add(-1)
}

func (s *MemorySessionStore) Get(id string) (*model.Session, error) {
	return s.access(id, false)
}

// Refresh re-stamps LastActivityAt and slides ExpiresAt forward by the TTL.
func (s *MemorySessionStore) Refresh(id string) (*model.Session, error) {
	return s.access(id, true)
}

func (s *MemorySessionStore) access(id string, touch bool) (*model.Session, error) {
	entry := s.lookup(id)
	if entry == nil {
		return nil, ErrSessionNotFound
	}

	entry.mu.Lock()
	if entry.deleted {
		entry.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	now := s.now().UTC()
	if entry.session.IsExpired(now) {
		entry.deleted = true
		stale := entry.session
		entry.mu.Unlock()
		s.unlink(id, entry)
		return &stale, ErrSessionExpired
	}

	if touch {
		if now.After(entry.session.LastActivityAt) {
			entry.session.LastActivityAt = now
		}
		entry.session.ExpiresAt = entry.session.LastActivityAt.Add(s.ttl)
	}
	snapshot := entry.session
	entry.mu.Unlock()

	return &snapshot, nil
}

// Delete removes the session and reports whether it was live. Deleting an
// absent session is a no-op.
func (s *MemorySessionStore) Delete(id string) bool {
	entry := s.lookup(id)
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	if entry.deleted {
		entry.mu.Unlock()
		return false
	}
	entry.deleted = true
	entry.mu.Unlock()

	s.unlink(id, entry)
	return true
}

// DeleteExpired evicts every session past its expiry, one shard at a time,
// and returns what it evicted.
func (s *MemorySessionStore) DeleteExpired() []model.Session {
	var evicted []model.Session

	for _, shard := range s.shards {
		shard.mu.Lock()
		now := s.now().UTC()
		for id, entry := range shard.entries {
			entry.mu.Lock()
			switch {
			case entry.deleted:
				delete(shard.entries, id)
			case entry.session.IsExpired(now):
				entry.deleted = true
				delete(shard.entries, id)
				s.live.Add(-1)
				evicted = append(evicted, entry.session)
			}
			entry.mu.Unlock()
		}
		shard.mu.Unlock()
	}

	return evicted
}

// Count returns the number of sessions not yet deleted, including expired
// ones that have not been evicted.
func (s *MemorySessionStore) Count() int {
	return int(s.live.Load())
}

// CountByMerchant counts live, unexpired sessions owned by merchantID.
func (s *MemorySessionStore) CountByMerchant(merchantID string) int {
	count := 0
	now := s.now().UTC()

	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, entry := range shard.entries {
			entry.mu.Lock()
			if !entry.deleted && entry.session.MerchantID == merchantID && !entry.session.IsExpired(now) {
				count++
			}
			entry.mu.Unlock()
		}
		shard.mu.RUnlock()
	}

	return count
}
