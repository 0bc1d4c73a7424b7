// Package sqlitekv persists the engine's key-value state in a single
// SQLite table, giving the playground durable settings without an external
// service. An optional byte budget makes the store report quota pressure
// the same way a constrained browser storage backend would.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/crim50n/falai-paw/pkg/kv"
)

// Option customises a Store.
type Option func(*Store)

// WithByteBudget caps the total stored value bytes. Zero means unlimited.
// A Set that would cross the budget fails with kv.ErrQuotaExceeded.
func WithByteBudget(budget int64) Option {
	return func(s *Store) {
		s.budget = budget
	}
}

// Store implements kv.Store on SQLite.
type Store struct {
	db     *sql.DB
	budget int64
}

var _ kv.Store = (*Store)(nil)

// Open creates or opens the database at path. An empty path opens an
// in-memory database.
func Open(path string, options ...Option) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: open %s: %w", path, err)
	}

	// A single connection keeps :memory: databases coherent; SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA busy_timeout = 30000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitekv: set pragma: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitekv: init schema: %w", err)
	}

	store := &Store{db: db}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(store)
	}
	return store, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlitekv: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key, replacing any previous value. The budget
// check counts stored bytes excluding the row being replaced, so rewriting
// a key with a smaller value always succeeds.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitekv: set %s: %w", key, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.budget > 0 {
		var usage int64
		row := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv WHERE key != ?`, key)
		if err := row.Scan(&usage); err != nil {
			return fmt.Errorf("sqlitekv: set %s: %w", key, err)
		}
		if usage+int64(len(value)) > s.budget {
			return fmt.Errorf("sqlitekv: set %s: %w", key, kv.ErrQuotaExceeded)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlitekv: set %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitekv: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlitekv: delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored key in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: keys: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlitekv: keys: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitekv: keys: %w", err)
	}
	return keys, nil
}
