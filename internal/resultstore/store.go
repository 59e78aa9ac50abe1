// Package resultstore persists extraction results in SQLite, keyed by
// document hash and the settings that produced them.
package resultstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("result not found")

// Store is a SQLite-backed key/value table of encoded results.
type Store struct {
	db     *sql.DB
	maxAge time.Duration
}

// Open creates or opens the database at path. Entries older than maxAge are
// treated as missing (0 = never expire). Use ":memory:" for a private
// in-memory store.
func Open(path string, maxAge time.Duration) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, maxAge: maxAge}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	queries := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS results (
			key        TEXT PRIMARY KEY,
			document   TEXT NOT NULL,
			value      BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_created ON results(created_at);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init store schema: %w", err)
		}
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value   []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at FROM results WHERE key = ?`, key,
	).Scan(&value, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if s.maxAge > 0 && time.Since(time.Unix(created, 0)) > s.maxAge {
		return nil, ErrNotFound
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key, document string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO results (key, document, value, created_at) VALUES (?, ?, ?, ?)`,
		key, document, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.maxAge).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return res.RowsAffected()
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
