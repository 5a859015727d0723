package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
	"github.com/hackgods/clinic-appointment-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "notify-worker").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("queue", cfg.NotifyQueue).
		Dur("poll", cfg.WorkerInterval).
		Msg("notify-worker starting up")

	if cfg.SMTP.Host == "" {
		logger.Fatal().Msg("SMTP_HOST is required for the notify worker")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	queue := redisclient.NewQueue(rdb, cfg.NotifyQueue)
	if n, err := queue.Len(rootCtx); err == nil && n > 0 {
		logger.Info().Int64("backlog", n).Msg("draining queued notifications")
	}

	sender := notify.NewSMTPSender(cfg.SMTP)
	worker := notify.NewWorker(queue, sender, logger, cfg.WorkerInterval)

	if err := worker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("notify worker stopped")
	}

	logger.Info().Msg("shutdown signal received, notify worker stopped")
}
