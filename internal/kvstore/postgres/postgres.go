// Copyright 2025 Certen Protocol
//
// KV store backed by Postgres, giving the validator registry and admin
// roster a durable relational home — the "another store can be
// substituted" persistence abstraction. A direct adaptation of the
// teacher's connection-pool-and-migrate database client shape, narrowed to
// a single key/value table instead of the teacher's proof-artifact schema.

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/certen/validator-node/internal/kvstore"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kv_store (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
)`

// Store wraps a Postgres connection pool as a kvstore.Store.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Store at construction time.
type Option func(*Store)

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects to databaseURL, configures the pool, and ensures the
// backing table exists.
func Open(ctx context.Context, databaseURL string, maxOpenConns, maxIdleConns int, opts ...Option) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}

	store := &Store{logger: log.New(os.Stderr, "[kvstore/postgres] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(store)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure kv_store table: %w", err)
	}

	store.db = db
	store.logger.Printf("connected to postgres kv store (max_open=%d, max_idle=%d)", maxOpenConns, maxIdleConns)
	return store, nil
}

var _ kvstore.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = $1`, string(key)).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		string(key), value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1`, string(key))
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) IteratePrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	escaped := strings.ReplaceAll(string(prefix), "%", `\%`)
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv_store WHERE key LIKE $1 ESCAPE '\'`, escaped+"%")
	if err != nil {
		return fmt.Errorf("iterate prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn([]byte(key), value); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
