package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/widget-session-server/internal/config"
	"github.com/openclaw/widget-session-server/internal/database"
	"github.com/openclaw/widget-session-server/internal/events"
	"github.com/openclaw/widget-session-server/internal/handler"
	"github.com/openclaw/widget-session-server/internal/jobs"
	"github.com/openclaw/widget-session-server/internal/middleware"
	"github.com/openclaw/widget-session-server/internal/redis"
	"github.com/openclaw/widget-session-server/internal/repository"
	"github.com/openclaw/widget-session-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	deps := map[string]handler.Pinger{}
	var sinks []events.Sink
	var reaperOpts []jobs.ReaperOption
	var statsOpts []service.StatsOption

	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := database.EnsureSchema(ctx, db.DB); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare database schema")
		}
		cancel()
		log.Info().Msg("database connected")

		eventRepo := repository.NewSessionEventRepository(db.DB)
		sinks = append(sinks, eventRepo)
		reaperOpts = append(reaperOpts, jobs.WithEventRetention(eventRepo, cfg.EventRetention()))
		statsOpts = append(statsOpts, service.WithEventReader(eventRepo))
		deps["database"] = db
	} else {
		log.Info().Msg("DATABASE_URL not set, session telemetry disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		sinks = append(sinks, events.NewRedisPublisher(redisClient))
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	dispatcher := events.NewDispatcher(config.EventQueueSize, sinks...)
	dispatcher.Start()
	defer dispatcher.Stop()

	store := repository.NewMemorySessionStore(cfg.SessionTTL(), repository.WithMaxSessions(cfg.MaxSessions))

	var windowStore service.WindowStore
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendRedis:
		windowStore = service.NewRedisWindowStore(redisClient)
	default:
		memoryWindows := service.NewMemoryWindowStore()
		reaperOpts = append(reaperOpts, jobs.WithBucketSweeper(memoryWindows))
		windowStore = memoryWindows
	}
	limiter := service.NewRateLimiter(windowStore,
		service.Limit{Limit: cfg.IPRateLimit, Window: cfg.IPRateWindow()},
		service.Limit{Limit: cfg.MerchantRateLimit, Window: cfg.MerchantRateWindow()},
	)

	var relay service.Relay = service.LogRelay{}
	if redisClient != nil {
		relay = service.NewRedisRelay(redisClient)
	}

	gateway := service.NewSessionGateway(store, service.NewActivityTracker(store),
		service.WithEventRecorder(dispatcher))
	relayService := service.NewRelayService(relay)

	reaperOpts = append(reaperOpts, jobs.WithReaperEvents(dispatcher))
	reaper := jobs.NewExpiryReaper(store, cfg.ReaperInterval(), reaperOpts...)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter)

	sessionHandler := handler.NewSessionHandler(gateway)
	widgetHandler := handler.NewWidgetHandler(gateway, relayService)
	statsHandler := handler.NewStatsHandler(service.NewStatsService(store, config.StatsWindow, statsOpts...))
	healthHandler := handler.NewHealthHandler(gateway.ActiveSessions, deps)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
		r.Use(middleware.MerchantContext)
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/session", sessionHandler.Routes())
		r.Mount("/widget", widgetHandler.Routes())
		r.Mount("/stats", statsHandler.Routes())
	})

	reaper.Start()
	defer reaper.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
