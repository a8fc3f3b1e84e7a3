package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 15 * time.Second
	ServerReadTimeout     = 10 * time.Second
	ServerWriteTimeout    = 20 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout at startup
const DBPingTimeout = 5 * time.Second

// Per-dependency timeout for /health
const HealthCheckTimeout = 2 * time.Second

// Redis connect timeout
const RedisConnectTimeout = 5 * time.Second

// In-memory sharding. Must be a power of two.
const (
	SessionStoreShards = 64
	RateLimitShards    = 64
)

// Lifecycle event dispatch
const (
	EventQueueSize    = 1024
	EventWriteTimeout = 3 * time.Second
)

// Lookback for per-merchant event counts on /v1/stats
const StatsWindow = 24 * time.Hour

// Each reaper pass gets this long for telemetry retention cleanup.
const ReaperPassTimeout = 30 * time.Second
