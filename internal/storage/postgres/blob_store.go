// Package postgres provides a Postgres-backed cache store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/favicon-resolver/internal/cache"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "icon_cache"

// Config controls the Postgres connection pool used for cache rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// BlobStore keeps cache objects as rows keyed by object name.
type BlobStore struct {
	pool  pool
	table string
}

// New connects to Postgres and ensures the cache table exists.
func New(ctx context.Context, cfg Config) (*BlobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("cache.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*BlobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &BlobStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *BlobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the cache table when missing.
func (s *BlobStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name       TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Get reads the row for name.
func (s *BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE name = $1`, s.table)
	var data []byte
	err := s.pool.QueryRow(ctx, query, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select cache row %s: %w", name, err)
	}
	return data, nil
}

// Put upserts the row for name.
func (s *BlobStore) Put(ctx context.Context, name string, data []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, data, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, name, data); err != nil {
		return fmt.Errorf("upsert cache row %s: %w", name, err)
	}
	return nil
}

// Delete removes the row for name.
func (s *BlobStore) Delete(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, name)
	if err != nil {
		return fmt.Errorf("delete cache row %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return cache.ErrNotFound
	}
	return nil
}
