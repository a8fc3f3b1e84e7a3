package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/openclaw/widget-session-server/internal/config"
)

type windowBucket struct {
	mu          sync.Mutex
	windowStart time.Time
	window      time.Duration
	count       int
	evicted     bool
}

// expired reports whether the bucket's window has closed at now. A zero
// windowStart means the bucket has never been charged.
func (b *windowBucket) expired(now time.Time) bool {
	return b.windowStart.IsZero() || !now.Before(b.windowStart.Add(b.window))
}

type windowShard struct {
	mu      sync.Mutex
	buckets map[string]*windowBucket
}

// MemoryWindowStore keeps fixed-window counters in process. Buckets are
// locked in key order so that a request touching two keys never deadlocks
// with another touching the same pair.
type MemoryWindowStore struct {
	shards []*windowShard
	mask   uint64
}

func NewMemoryWindowStore() *MemoryWindowStore {
	s := &MemoryWindowStore{
		shards: make([]*windowShard, config.RateLimitShards),
		mask:   config.RateLimitShards - 1,
	}
	for i := range s.shards {
		s.shards[i] = &windowShard{buckets: make(map[string]*windowBucket)}
	}
	return s
}

func (s *MemoryWindowStore) shardFor(key string) *windowShard {
	return s.shards[xxhash.Sum64String(key)&s.mask]
}

func (s *MemoryWindowStore) bucket(key string) *windowBucket {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	b, ok := shard.buckets[key]
	if !ok {
		b = &windowBucket{}
		shard.buckets[key] = b
	}
	return b
}

func (s *MemoryWindowStore) Take(_ context.Context, now time.Time, rules []WindowRule) ([]RuleStatus, bool, error) {
	order := make([]int, len(rules))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return rules[order[a]].Key < rules[order[b]].Key })

	for {
		buckets := make([]*windowBucket, len(rules))
		for i, rule := range rules {
			buckets[i] = s.bucket(rule.Key)
		}

		locked := lockBuckets(buckets, order)
		if locked == nil {
			// A sweep evicted one of the buckets between lookup and lock.
			continue
		}

		statuses, allowed := chargeBuckets(now, rules, buckets)
		for _, b := range locked {
			b.mu.Unlock()
		}
		return statuses, allowed, nil
	}
}

// lockBuckets locks buckets in the given order, skipping repeats. It returns
// the locked buckets, or nil with nothing held if any bucket was evicted.
func lockBuckets(buckets []*windowBucket, order []int) []*windowBucket {
	locked := make([]*windowBucket, 0, len(order))
	for _, i := range order {
		b := buckets[i]
		if len(locked) > 0 && locked[len(locked)-1] == b {
			continue
		}
		b.mu.Lock()
		locked = append(locked, b)
		if b.evicted {
			for _, held := range locked {
				held.mu.Unlock()
			}
			return nil
		}
	}
	return locked
}

// chargeBuckets must be called with every bucket locked.
func chargeBuckets(now time.Time, rules []WindowRule, buckets []*windowBucket) ([]RuleStatus, bool) {
	statuses := make([]RuleStatus, len(rules))
	allowed := true

	for i, rule := range rules {
		b := buckets[i]
		b.window = rule.Window
		if b.expired(now) {
			b.windowStart = now
			b.count = 0
		}
		statuses[i] = RuleStatus{
			Count:    b.count,
			ResetAt:  b.windowStart.Add(rule.Window),
			Exceeded: b.count >= rule.Limit,
		}
		if statuses[i].Exceeded {
			allowed = false
		}
	}

	if !allowed {
		return statuses, false
	}

	for i := range rules {
		buckets[i].count++
		statuses[i].Count = buckets[i].count
	}
	return statuses, true
}

// Sweep drops buckets whose window has closed and returns how many it dropped.
func (s *MemoryWindowStore) Sweep(now time.Time) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key, b := range shard.buckets {
			b.mu.Lock()
			if b.expired(now) {
				b.evicted = true
				delete(shard.buckets, key)
				removed++
			}
			b.mu.Unlock()
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked buckets.
func (s *MemoryWindowStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		n += len(shard.buckets)
		shard.mu.Unlock()
	}
	return n
}
