// Command goguardd serves the goGuard session and token endpoints over HTTP.
//
// Configuration is read from the environment, optionally seeded from a .env
// file. Redis is required; DATABASE_URL moves device records to Postgres.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/api"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/identity"
	promexport "github.com/MrEthical07/goGuard/metrics/export/prometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "goguardd").Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found, using process environment")
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment variables")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("goguardd stopped")
	}
}

func run(ctx context.Context, cfg serverConfig, logger zerolog.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return err
	}

	engineCfg := cfg.engineConfig()
	for _, w := range engineCfg.Lint() {
		logger.Warn().Str("code", w.Code).Msg(w.Message)
	}

	builder := goGuard.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAuditSink(goGuard.NewZerologSink(logger.With().Str("component", "audit").Logger())).
		WithWarnFunc(func(msg string, kv ...any) {
			logger.Warn().Fields(kv).Msg(msg)
		})

	// -------- DEVICE STORE --------
	if cfg.DatabaseURL != "" {
		if err := device.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		builder = builder.WithDeviceStore(device.NewPostgresStore(pool))
		logger.Info().Msg("device records stored in postgres")
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	// -------- IDENTITY --------
	var verifier *identity.Verifier
	if cfg.IdentityIssuer != "" {
		verifier, err = identity.NewVerifier(identity.Config{
			Issuer:   cfg.IdentityIssuer,
			Audience: cfg.IdentityAudience,
			Secret:   []byte(cfg.IdentitySecret),
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("IDENTITY_ISSUER not set, /auth/login is disabled")
	}

	routerCfg := api.Config{
		Engine:         engine,
		Identity:       verifier,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		TrustProxy:     cfg.TrustProxy,
	}
	if cfg.MetricsEnabled {
		routerCfg.Metrics = promexport.Handler(engine)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sweep(ctx, engine, cfg.SweepInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweep(ctx context.Context, engine *goGuard.Engine, every time.Duration, logger zerolog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := engine.SweepRateLimits(); n > 0 {
				logger.Debug().Int("buckets", n).Msg("swept idle rate limit buckets")
			}
		}
	}
}
