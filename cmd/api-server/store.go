package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

type store struct {
	repo   appointment.Repository
	checks []api.DependencyCheck
	close  func()
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*store, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(connCtx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("connected to Postgres")

		return &store{
			repo: appointment.NewPgRepository(pool),
			checks: []api.DependencyCheck{{
				Name:     "postgres",
				Critical: true,
				Ping:     pool.Ping,
			}},
			close: pool.Close,
		}, nil

	case config.StoreMongo:
		client, database, err := db.ConnectMongo(connCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		repo := appointment.NewMongoRepository(database)
		if err := repo.EnsureIndexes(connCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

		return &store{
			repo: repo,
			checks: []api.DependencyCheck{{
				Name:     "mongo",
				Critical: true,
				Ping: func(ctx context.Context) error {
					return client.Ping(ctx, nil)
				},
			}},
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Error().Err(err).Msg("error closing mongo")
				}
			},
		}, nil

	case config.StoreMemory:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		repo := appointment.NewMemRepository()
		if err := bootstrapAccounts(repo, cfg, logger); err != nil {
			return nil, err
		}
		return &store{repo: repo, close: func() {}}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// bootstrapAccounts gives an empty memory store one account per role and logs
// a bearer token for each, since sign-up happens outside this service.
func bootstrapAccounts(repo *appointment.MemRepository, cfg config.Config, logger zerolog.Logger) error {
	for _, role := range []appointment.Role{appointment.RoleAdmin, appointment.RoleDoctor, appointment.RolePatient} {
		u := appointment.User{
			ID:        uuid.New(),
			Name:      gofakeit.Name(),
			Email:     gofakeit.Email(),
			Role:      role,
			CreatedAt: time.Now().UTC(),
		}
		repo.AddUser(u)

		token, err := auth.NewToken(cfg.JWTSecret, cfg.JWTIssuer, u.ID, role, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("sign %s token: %w", role, err)
		}
		logger.Info().Str("role", string(role)).Str("user_id", u.ID.String()).Str("token", token).Msg("bootstrap account")
	}
	return nil
}
