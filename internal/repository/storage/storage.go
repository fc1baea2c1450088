// Package storage opens the repository backend selected by configuration
package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/loschorros/backend/internal/config"
	"github.com/loschorros/backend/internal/domain"
	"github.com/loschorros/backend/internal/repository/memory"
	"github.com/loschorros/backend/internal/repository/postgres"
	"github.com/loschorros/backend/internal/repository/sqlite"
	"github.com/loschorros/backend/pkg/logx"
)

// Options controls how Open degrades
type Options struct {
	// FallbackToMemory serves from process memory when Postgres cannot be reached
	FallbackToMemory bool
}

// Open connects the configured driver and applies its schema
func Open(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger, opts Options) (domain.DataRepository, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.GetDSN())
		if err != nil {
			if opts.FallbackToMemory {
				log.WithError(err).Warn("Could not connect to database, running with in-memory storage")
				return memory.NewRepository(), nil
			}
			return nil, err
		}
		repo := postgres.NewPostgresRepository(pool, logx.Component(log, "postgres"))
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("Connected to PostgreSQL")
		return repo, nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath, logx.Component(log, "sqlite"))
	case config.DriverMemory, "":
		log.Info("Using in-memory storage")
		return memory.NewRepository(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
