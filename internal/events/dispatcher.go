package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/config"
	"github.com/openclaw/widget-session-server/internal/model"
)

// Dispatcher fans lifecycle events out to its sinks on a background
// goroutine. Record never blocks; events are dropped when the queue is full.
type Dispatcher struct {
	sinks   []Sink
	queue   chan model.SessionEvent
	timeout func() (context.Context, context.CancelFunc)

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.RWMutex
	stopped   bool
	done      chan struct{}
}

func NewDispatcher(queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = config.EventQueueSize
	}
	return &Dispatcher{
		sinks: sinks,
		queue: make(chan model.SessionEvent, queueSize),
		timeout: func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), config.EventWriteTimeout)
		},
		done: make(chan struct{}),
	}
}

// Record queues event for delivery. It satisfies the same Sink contract so
// callers can swap a dispatcher for a direct sink.
func (d *Dispatcher) Record(_ context.Context, event model.SessionEvent) error {
	if len(d.sinks) == 0 {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return nil
	}

	select {
	case d.queue <- event:
	default:
		log.Warn().
			Str("sessionId", event.SessionID).
			Str("eventType", string(event.Type)).
			Msg("session event queue full, dropping event")
	}
	return nil
}

func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
		log.Info().Int("sinks", len(d.sinks)).Msg("session event dispatcher started")
	})
}

// Stop closes the queue and waits until queued events have been delivered.
// It must only be called after Start.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()

		<-d.done
		log.Info().Msg("session event dispatcher stopped")
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event model.SessionEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := d.timeout()
		if err := sink.Record(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("sessionId", event.SessionID).
				Str("merchantId", event.MerchantID).
				Str("eventType", string(event.Type)).
				Msg("failed to deliver session event")
		}
		cancel()
	}
}
