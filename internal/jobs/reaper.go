package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/config"
	"github.com/openclaw/widget-session-server/internal/events"
	"github.com/openclaw/widget-session-server/internal/model"
	"github.com/openclaw/widget-session-server/internal/repository"
)

// Sweeper drops idle state that has aged out at now.
type Sweeper interface {
	Sweep(now time.Time) int
}

// EventPruner deletes telemetry older than a cutoff.
type EventPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type cleanupTask struct {
	name string
	fn   func(context.Context) (int64, error)
}

// ExpiryReaper evicts expired sessions on a fixed interval. Lazy eviction on
// lookup still applies; the reaper only bounds memory held by sessions that
// are never looked up again.
type ExpiryReaper struct {
	store    repository.SessionStore
	events   events.Sink
	interval time.Duration
	cleanups []cleanupTask
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type ReaperOption func(*ExpiryReaper)

func WithReaperEvents(sink events.Sink) ReaperOption {
	return func(r *ExpiryReaper) {
		r.events = sink
	}
}

func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *ExpiryReaper) {
		if now != nil {
			r.now = now
		}
	}
}

// WithBucketSweeper drops closed rate-limit windows on every pass.
func WithBucketSweeper(sweeper Sweeper) ReaperOption {
	return func(r *ExpiryReaper) {
		r.cleanups = append(r.cleanups, cleanupTask{
			name: "rate limit buckets",
			fn: func(context.Context) (int64, error) {
				return int64(sweeper.Sweep(r.now())), nil
			},
		})
	}
}

// WithEventRetention deletes session events older than retention on every pass.
func WithEventRetention(pruner EventPruner, retention time.Duration) ReaperOption {
	return func(r *ExpiryReaper) {
		r.cleanups = append(r.cleanups, cleanupTask{
			name: "session events",
			fn: func(ctx context.Context) (int64, error) {
				return pruner.DeleteOlderThan(ctx, r.now().Add(-retention))
			},
		})
	}
}

func NewExpiryReaper(store repository.SessionStore, interval time.Duration, opts ...ReaperOption) *ExpiryReaper {
	r := &ExpiryReaper{
		store:    store,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ExpiryReaper) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run()
		log.Info().Dur("interval", r.interval).Msg("expiry reaper started")
	})
}

// Stop halts the reaper and waits for an in-flight pass to finish.
func (r *ExpiryReaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		log.Info().Msg("expiry reaper stopped")
	})
}

func (r *ExpiryReaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.pass()
		}
	}
}

func (r *ExpiryReaper) pass() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("expiry reaper pass panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), config.ReaperPassTimeout)
	defer cancel()

	r.Sweep(ctx)
}

// Sweep runs one reaping pass and returns the number of sessions evicted.
func (r *ExpiryReaper) Sweep(ctx context.Context) int {
	evicted := r.store.DeleteExpired()
	if len(evicted) > 0 {
		log.Info().Int("count", len(evicted)).Msg("reaped expired sessions")
	}

	if r.events != nil {
		at := r.now()
		for _, session := range evicted {
			if err := r.events.Record(ctx, model.NewSessionEvent(session, model.SessionEventReaped, at)); err != nil {
				log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to record reaped session")
			}
		}
	}

	for _, task := range r.cleanups {
		r.runCleanup(ctx, task.name, task.fn)
	}

	return len(evicted)
}

func (r *ExpiryReaper) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
