package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore persists values in a PostgreSQL table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgresStore connects using dsn, or $DATABASE_URL when dsn is empty.
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	if table == "" {
		table = "kv"
	}
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("kv postgres: invalid table name %q", table)
	}
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, fmt.Errorf("kv postgres: database connection required (set storage.dsn or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("kv postgres: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv postgres: failed to connect: %w", err)
	}

	s := &PostgresStore{db: db, table: table}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, table)
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()
		return nil, newStoreError("postgres", "create table", table, err)
	}
	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE name = $1", s.table)
	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStoreError("postgres", "get", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return newStoreError("postgres", "set", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = $1", s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return newStoreError("postgres", "delete", key, err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s WHERE name LIKE $1 ESCAPE '\' ORDER BY name`, s.table)
	rows, err := s.db.QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, newStoreError("postgres", "keys", prefix, err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
