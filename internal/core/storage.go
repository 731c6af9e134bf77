package core

import (
	"context"
	"fmt"

	"obscore/internal/datastore"
	"obscore/internal/infra/persistence/fixture"
	"obscore/internal/infra/persistence/memory"
	"obscore/internal/infra/persistence/postgres"
	"obscore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete observation store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // fixture served from memory (tests / demos)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and tunes the backend opened by OpenBackend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// FixturePath seeds the memory driver; empty serves an empty dataset.
	FixturePath string
	PoolSize    int
	ApplySchema bool
}

// OpenBackend opens the backend named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg StorageConfig) (datastore.Backend, error) {
	switch cfg.Driver {
	case StorageMemory:
		ds := fixture.Dataset{}
		if cfg.FixturePath != "" {
			var err error
			if ds, err = fixture.LoadFile(cfg.FixturePath); err != nil {
				return nil, err
			}
		}
		return memory.New(ds), nil
	case StorageSQLite, "":
		return sqlite.Open(ctx, cfg.SQLitePath, sqlite.Options{PoolSize: cfg.PoolSize, ApplySchema: cfg.ApplySchema})
	case StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, postgres.Options{PoolSize: cfg.PoolSize, ApplySchema: cfg.ApplySchema})
	default:
		return nil, &ConfigurationError{Field: "datastore.driver", Reason: fmt.Sprintf("unknown storage driver %q", cfg.Driver)}
	}
}
