package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

const (
	slowQuery   = 250 * time.Millisecond
	durationKey = "duration"
)

// ConnectPostgres opens a pool sized for the API and logs slow or failed
// statements through logger.
func ConnectPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger(logger.With().Str("component", "postgres").Logger()),
		LogLevel: tracelog.LogLevelInfo,
		Config:   &tracelog.TraceLogConfig{TimeKey: durationKey},
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// queryLogger adapts tracelog to zerolog. Fast successful statements are
// dropped and slow ones become warnings. Statement failures log at debug.
// Bind args are never logged.
func queryLogger(logger zerolog.Logger) tracelog.LoggerFunc {
	return func(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		lvl := queryLevel(level, data)
		if lvl == zerolog.Disabled {
			return
		}
		fields := make(map[string]any, len(data))
		for k, v := range data {
			if k != "args" {
				fields[k] = v
			}
		}
		logger.WithLevel(lvl).Fields(fields).Msg(strings.ToLower(msg))
	}
}

func queryLevel(level tracelog.LogLevel, data map[string]any) zerolog.Level {
	if err, ok := data["err"].(error); ok && errors.Is(err, pgx.ErrNoRows) {
		return zerolog.Disabled
	}
	switch level {
	case tracelog.LogLevelError:
		if _, ok := data["sql"]; ok {
			return zerolog.DebugLevel
		}
		return zerolog.ErrorLevel
	case tracelog.LogLevelWarn:
		return zerolog.WarnLevel
	case tracelog.LogLevelInfo:
		if d, ok := data[durationKey].(time.Duration); ok && d >= slowQuery {
			return zerolog.WarnLevel
		}
		return zerolog.Disabled
	case tracelog.LogLevelDebug:
		return zerolog.DebugLevel
	case tracelog.LogLevelTrace:
		return zerolog.TraceLevel
	}
	return zerolog.Disabled
}
