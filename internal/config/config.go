package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type Config struct {
	Port                      int      `env:"PORT" envDefault:"8080"`
	LogLevel                  string   `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL                  string   `env:"REDIS_URL"`
	DatabaseURL               string   `env:"DATABASE_URL"`
	SessionTTLSeconds         int      `env:"SESSION_TTL_SECONDS" envDefault:"1800"`
	ReaperIntervalSeconds     int      `env:"REAPER_INTERVAL_SECONDS" envDefault:"60"`
	MaxSessions               int      `env:"MAX_SESSIONS" envDefault:"100000"`
	IPRateLimit               int      `env:"IP_RATE_LIMIT" envDefault:"100"`
	IPRateWindowSeconds       int      `env:"IP_RATE_WINDOW_SECONDS" envDefault:"60"`
	MerchantRateLimit         int      `env:"MERCHANT_RATE_LIMIT" envDefault:"1000"`
	MerchantRateWindowSeconds int      `env:"MERCHANT_RATE_WINDOW_SECONDS" envDefault:"60"`
	RateLimitBackend          string   `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	EventRetentionHours       int      `env:"EVENT_RETENTION_HOURS" envDefault:"168"`
	CORSAllowedOrigins        []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	IsProduction              bool     `env:"PRODUCTION" envDefault:"false"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

func (c *Config) IPRateWindow() time.Duration {
	return time.Duration(c.IPRateWindowSeconds) * time.Second
}

func (c *Config) MerchantRateWindow() time.Duration {
	return time.Duration(c.MerchantRateWindowSeconds) * time.Second
}

func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.SessionTTLSeconds <= 0 {
		return errors.New("SESSION_TTL_SECONDS must be positive")
	}
	if c.ReaperIntervalSeconds <= 0 {
		return errors.New("REAPER_INTERVAL_SECONDS must be positive")
	}
	if c.MaxSessions < 0 {
		return errors.New("MAX_SESSIONS must not be negative (0 disables the ceiling)")
	}
	if c.IPRateLimit <= 0 || c.IPRateWindowSeconds <= 0 {
		return errors.New("IP_RATE_LIMIT and IP_RATE_WINDOW_SECONDS must be positive")
	}
	if c.MerchantRateLimit <= 0 || c.MerchantRateWindowSeconds <= 0 {
		return errors.New("MERCHANT_RATE_LIMIT and MERCHANT_RATE_WINDOW_SECONDS must be positive")
	}

	switch c.RateLimitBackend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q (expected memory or redis)", c.RateLimitBackend)
	}

	if c.IsProduction {
		if c.MaxSessions == 0 {
			log.Warn().Msg("MAX_SESSIONS is 0 in production: session store memory is unbounded")
		}
		if c.RateLimitBackend == RateLimitBackendMemory {
			log.Warn().Msg("RATE_LIMIT_BACKEND=memory in production: quotas are enforced per instance")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
