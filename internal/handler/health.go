package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/openclaw/widget-session-server/internal/config"
)

// Pinger is a dependency whose reachability is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	sessions func() int
	deps     map[string]Pinger
}

func NewHealthHandler(sessions func() int, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{sessions: sessions, deps: deps}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.deps))

	for name, dep := range h.deps {
		ctx, cancel := context.WithTimeout(r.Context(), config.HealthCheckTimeout)
		err := dep.Ping(ctx)
		cancel()

		if err != nil {
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":         overall,
		"timestamp":      time.Now().UnixMilli(),
		"activeSessions": h.sessions(),
		"dependencies":   checks,
	})
}
