package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "seed",
		Short:        "Prepare and populate the clinic booking store",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dataCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// seedStore is the write surface shared by the postgres and mongo repositories.
type seedStore interface {
	CreateUser(ctx context.Context, u appointment.User) error
	CreateDoctor(ctx context.Context, d *appointment.Doctor) error
	CreatePatient(ctx context.Context, p *appointment.Patient) error
}

type target struct {
	store   seedStore
	migrate func(ctx context.Context) error
	close   func()
}

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), fmt.Errorf("config load error: %w", err)
	}
	return cfg, logging.New(cfg.Env, cfg.LogLevel), nil
}

func openTarget(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*target, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return &target{
			store:   appointment.NewPgRepository(pool),
			migrate: func(ctx context.Context) error { return db.Migrate(ctx, pool) },
			close:   pool.Close,
		}, nil

	case config.StoreMongo:
		client, database, err := db.ConnectMongo(connCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		repo := appointment.NewMongoRepository(database)
		return &target{
			store:   repo,
			migrate: repo.EnsureIndexes,
			close:   func() { _ = client.Disconnect(context.Background()) },
		}, nil
	}

	return nil, fmt.Errorf("store driver %q cannot be seeded", cfg.StoreDriver)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema or ensure the mongo indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			t, err := openTarget(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer t.close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := t.migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Str("store", cfg.StoreDriver).Msg("migration complete")
			return nil
		},
	}
}
