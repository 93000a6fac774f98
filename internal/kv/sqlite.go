package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// likePrefix escapes LIKE wildcards so "element_backup_" matches literally.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// SQLiteStore persists values in a SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
	path  string
}

// NewSQLiteStore opens (or creates) the database at path and ensures the table.
// A relative path is resolved against baseDir.
func NewSQLiteStore(ctx context.Context, path, table, baseDir string) (*SQLiteStore, error) {
	if table == "" {
		table = "kv"
	}
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("kv sqlite: invalid table name %q", table)
	}
	if path == "" {
		path = "pagecraft.db"
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kv sqlite: failed to open database: %w", err)
	}
	// One writer avoids SQLITE_BUSY under concurrent backups.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kv sqlite: failed to connect: %w", err)
	}

	s := &SQLiteStore{db: db, table: table, path: path}
	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return newStoreError("sqlite", "create table", s.table, err)
	}
	return nil
}

// Path returns the resolved database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE name = ?", s.table)
	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStoreError("sqlite", "get", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return newStoreError("sqlite", "set", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = ?", s.table)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return newStoreError("sqlite", "delete", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s WHERE name LIKE ? ESCAPE '\' ORDER BY name`, s.table)
	rows, err := s.db.QueryContext(ctx, query, likePrefix(prefix))
	if err != nil {
		return nil, newStoreError("sqlite", "keys", prefix, err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanKeys(rows *sql.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
