package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/resizeflow/internal/api"
	"github.com/dunamismax/resizeflow/internal/config"
	"github.com/dunamismax/resizeflow/internal/pipeline"
	"github.com/dunamismax/resizeflow/internal/ratelimit"
	"github.com/dunamismax/resizeflow/internal/store"
	"github.com/dunamismax/resizeflow/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const janitorInterval = time.Minute

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg.Log)
	logger.Info().Str("addr", cfg.API.Addr).Msg("starting resizeflow api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed initializing tracing")
	}

	if err := pipeline.Startup(); err != nil {
		logger.Fatal().Err(err).Msg("failed starting image runtime")
	}
	defer pipeline.Shutdown()

	engine, err := pipeline.DefaultEngine()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed building render engine")
	}

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed building rate limiter")
	}
	defer closeLimiter()

	usage, err := newUsageStore(ctx, cfg.Usage, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed opening usage store")
	}

	if cfg.Auth.Required && cfg.Auth.Token == "" {
		logger.Warn().Msg("AUTH_REQUIRED is set without AUTH_TOKEN; resize requests will fail with 500")
	}

	app := api.NewServer(api.Options{
		Logger:             logger,
		Engine:             engine,
		Guard:              ratelimit.NewGuard(ratelimit.NewConcurrencyLimiter(cfg.Limits.ConcurrencyPerClient), limiter),
		Usage:              usage,
		KeyFn:              api.DefaultKeyFunc(cfg.API.TrustForwardedFor),
		MaxUploadBytes:     cfg.Limits.MaxUploadBytes,
		MaxOutputs:         cfg.Limits.MaxOutputs,
		DefaultJPEGQuality: cfg.Render.DefaultJPEGQuality,
		DefaultWebPQuality: cfg.Render.DefaultWebPQuality,
		StreamArchives:     cfg.API.StreamArchives,
		AuthRequired:       cfg.Auth.Required,
		AuthToken:          cfg.Auth.Token,
		AllowedOrigins:     cfg.CORS.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("usage store close failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.With().Timestamp().Str("service", "resizeflow-api").Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func newRateLimiter(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ratelimit.Limiter, func(), error) {
	limits := cfg.Limits
	if limits.RateLimitRequests == 0 {
		logger.Warn().Msg("rate limiting disabled")
		return nil, func() {}, nil
	}

	switch limits.RateLimitBackend {
	case config.RateLimitBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup; limiter fails open until it recovers")
		}
		limiter, err := ratelimit.NewRedisSlidingWindow(client, limits.RateLimitRequests, limits.RateLimitWindow, "")
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		logger.Info().Str("backend", "redis").Str("addr", cfg.Redis.Addr).Msg("rate limiter ready")
		return limiter, func() { _ = client.Close() }, nil

	case config.RateLimitBackendToken:
		limiter, err := ratelimit.NewTokenBucket(limits.RateLimitRequests, limits.RateLimitWindow)
		if err != nil {
			return nil, nil, err
		}
		limiter.StartJanitor(ctx, janitorInterval)
		logger.Info().Str("backend", "token").Msg("rate limiter ready")
		return limiter, func() {}, nil

	default:
		limiter, err := ratelimit.NewSlidingWindow(limits.RateLimitRequests, limits.RateLimitWindow)
		if err != nil {
			return nil, nil, err
		}
		limiter.StartJanitor(ctx, janitorInterval)
		logger.Info().Str("backend", "memory").Msg("rate limiter ready")
		return limiter, func() {}, nil
	}
}

func newUsageStore(ctx context.Context, cfg config.UsageConfig, logger zerolog.Logger) (store.UsageStore, error) {
	if cfg.PostgresDSN == "" {
		logger.Info().Int("capacity", cfg.MemoryCapacity).Msg("usage log kept in memory")
		return store.NewMemoryUsageStore(cfg.MemoryCapacity)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	usage, err := store.NewPostgresUsageStore(connectCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("usage log stored in postgres")
	return usage, nil
}
