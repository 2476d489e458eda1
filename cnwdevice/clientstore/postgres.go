package clientstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultPostgresTable = "cnw_device_storage"
	defaultNamespace     = "default"
)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTableName sets the PostgreSQL table name. Default: "cnw_device_storage".
func WithTableName(name string) PostgresOption {
	return func(s *PostgresStore) {
		s.tableName = name
	}
}

// WithPostgresNamespace scopes all keys to namespace, so several profiles can
// share one table. Default: "default".
func WithPostgresNamespace(ns string) PostgresOption {
	return func(s *PostgresStore) {
		s.namespace = ns
	}
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	tableName string
	namespace string
}

// NewPostgresStore creates a PostgreSQL-backed store.
// It auto-creates the table on initialization.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:      pool,
		tableName: defaultPostgresTable,
		namespace: defaultNamespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validName.MatchString(s.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.tableName)
	}
	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, key)
		);
	`, s.tableName)
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE namespace = $1 AND key = $2`, s.tableName)
	var value string
	err := s.pool.QueryRow(ctx, query, s.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, s.tableName)
	if _, err := s.pool.Exec(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND key = $2`, s.tableName)
	if _, err := s.pool.Exec(ctx, query, s.namespace, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Close(_ context.Context) error {
	return nil // user manages the pgxpool.Pool lifecycle
}
