// Package snapshotsql holds the bucket snapshot codec shared by the SQL-backed
// stores. Each dialect supplies its own DDL and upsert statement.
package snapshotsql

import (
	"context"
	"database/sql"
	"fmt"

	"cylindercore/internal/infra/persistence/memory"
)

// SelectState reads every bucket of the state table.
const SelectState = `SELECT bucket, payload FROM state`

// Load reads the state table into a snapshot. The boolean reports whether any
// bucket was present.
func Load(ctx context.Context, db *sql.DB) (memory.Snapshot, bool, error) {
	var snapshot memory.Snapshot
	rows, err := db.QueryContext(ctx, SelectState)
	if err != nil {
		return snapshot, false, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return snapshot, false, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return snapshot, false, err
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return snapshot, false, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, found, nil
}

// Persist upserts every bucket of snapshot inside one database transaction.
// upsert must take the bucket name and payload as its two parameters.
func Persist(ctx context.Context, db *sql.DB, upsert string, snapshot memory.Snapshot) error {
	payloads, err := snapshot.EncodeBuckets()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for i, bucket := range memory.Buckets {
		if _, err := tx.ExecContext(ctx, upsert, bucket, payloads[i]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
