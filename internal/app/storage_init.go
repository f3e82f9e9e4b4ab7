package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/digidine/internal/storage"
	"github.com/vladislavdragonenkov/digidine/internal/storage/memory"
	"github.com/vladislavdragonenkov/digidine/internal/storage/postgres"
	"github.com/vladislavdragonenkov/digidine/internal/storage/sqlite"
)

// openStore открывает хранилище выбранного драйвера. Close возвращённого
// хранилища освобождает все его ресурсы.
func openStore(ctx context.Context, cfg Config, logger *log.Entry) (storage.Store, error) {
	logger = logger.WithField("storage_driver", cfg.StorageDriver)

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage")
		return memory.NewStore(cfg.Origin), nil

	case StorageDriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, cfg.Origin)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		logger.WithField("path", cfg.SQLitePath).Info("using sqlite storage")
		return store, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%sPOSTGRES_DSN is required for postgres storage", EnvPrefix)
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxOpenConns(cfg.PostgresMaxConns))
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate postgres storage: %w", err)
			}
		}
		logger.WithFields(log.Fields{
			"auto_migrate": cfg.PostgresAutoMigrate,
			"max_conns":    cfg.PostgresMaxConns,
		}).Info("using postgres storage")
		return postgres.NewKVStore(pg, cfg.Origin), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
