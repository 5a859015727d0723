package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("lock", cfg.LockBackend).
		Str("notify", cfg.NotifyBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection error")
	}
	defer st.close()

	checks := st.checks

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

		checks = append(checks, api.DependencyCheck{
			Name: "redis",
			// bookings need the lock; notifications alone can wait
			Critical: cfg.LockBackend == config.LockRedis,
			Ping: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}

	svc := appointment.NewService(st.repo, newLocker(cfg, rdb), newNotifier(cfg, rdb, logger), cfg, logger)

	handler := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Logger:   logger,
		Checks:   checks,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}

	// let in-flight notifications finish before the clients close
	svc.Wait()

	logger.Info().Msg("api-server stopped")
}

func newLocker(cfg config.Config, rdb *redis.Client) redisclient.Locker {
	if cfg.LockBackend == config.LockRedis {
		return redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	}
	return redisclient.NewLocalLocker(cfg.LockWait)
}

func newNotifier(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) notify.Notifier {
	switch cfg.NotifyBackend {
	case config.NotifyQueue:
		return notify.NewQueueNotifier(redisclient.NewQueue(rdb, cfg.NotifyQueue))
	case config.NotifyInline:
		return notify.NewInlineNotifier(notify.NewSMTPSender(cfg.SMTP))
	default:
		return notify.NewLogNotifier(logger)
	}
}
