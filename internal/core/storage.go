package core

import (
	"context"
	"fmt"
	"io"

	"cylindercore/internal/infra/persistence/memory"
	"cylindercore/internal/infra/persistence/mysql"
	"cylindercore/internal/infra/persistence/postgres"
	"cylindercore/internal/infra/persistence/sqlite"
	"cylindercore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageMySQL    StorageDriver = "mysql"    // MySQL server
)

// StorageConfig selects and parameterizes a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	MySQLDSN    string
}

// OpenPersistentStore opens the configured backend. An empty driver selects
// sqlite. The returned closer releases the backend's connections.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, io.Closer, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nopCloser{}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StorageMySQL:
		store, err := mysql.NewStore(ctx, cfg.MySQLDSN, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
