package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS kv_cache (
		store_name TEXT        NOT NULL,
		key        TEXT        NOT NULL,
		value      BYTEA       NOT NULL,
		stored_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (store_name, key)
	)
`

const upsertSQL = `
	INSERT INTO kv_cache (store_name, key, value, stored_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (store_name, key)
	DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at
`

const selectSQL = `SELECT value FROM kv_cache WHERE store_name = $1 AND key = $2`

// PostgresStore keeps entries in the kv_cache table, scoped by store name
type PostgresStore struct {
	db   *sql.DB
	name string
}

var _ contracts.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB, name string) *PostgresStore {
	return &PostgresStore{db: db, name: name}
}

// EnsureSchema creates the kv_cache table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create kv_cache table: %w", err)
	}
	return nil
}

// Put stores a single value
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertSQL, s.name, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// PutBatch upserts all entries in one transaction
func (s *PostgresStore) PutBatch(ctx context.Context, entries []contracts.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, upsertSQL, s.name, e.Key, e.Value); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get reads a value; a missing row is not an error
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, selectSQL, s.name, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", key, err)
	}
	return value, true, nil
}

// Ping checks the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
