// Package mysql provides a MySQL-backed persistent store that snapshots the
// in-memory state into a bucket table after each commit.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	driver "github.com/go-sql-driver/mysql"

	"cylindercore/internal/infra/persistence/memory"
	"cylindercore/internal/infra/persistence/snapshotsql"
	"cylindercore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "mysql"
	// DefaultDSN targets a local development database.
	DefaultDSN = "root@tcp(127.0.0.1:3306)/cylindercore"

	createStateTable = `CREATE TABLE IF NOT EXISTS state (
		bucket VARCHAR(64) NOT NULL PRIMARY KEY,
		payload LONGBLOB NOT NULL
	)`
	upsertState = `INSERT INTO state(bucket,payload) VALUES(?,?) ON DUPLICATE KEY UPDATE payload=VALUES(payload)`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to MySQL while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NormalizeDSN parses dsn and enables the options the store relies on.
func NormalizeDSN(dsn string) (string, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}
	return cfg.FormatDSN(), nil
}

// NewStore opens a MySQL-backed store, ensures the snapshot table exists and
// hydrates the in-memory store from any existing snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, normalized)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, createStateTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	snapshot, found, err := snapshotsql.Load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine)
	if found {
		mem.ImportState(snapshot)
	}
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies the provided function within a transaction, then snapshots to MySQL if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := snapshotsql.Persist(ctx, s.db, upsertState, s.ExportState()); err != nil {
		return res, fmt.Errorf("persist snapshot: %w", err)
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
