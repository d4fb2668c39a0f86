package localstore

import (
	"context"
	"fmt"

	"wardroster/internal/infra/persistence/memory"
	"wardroster/internal/infra/persistence/postgres"
	"wardroster/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete Backend implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// BackendConfig selects and parameterises a Backend.
type BackendConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// NewMemoryBackend returns an empty in-memory Backend.
func NewMemoryBackend() Backend { return memory.NewStore() }

// OpenBackend opens the configured backend. An empty driver defaults to
// sqlite.
func OpenBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
