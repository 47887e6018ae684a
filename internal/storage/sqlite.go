package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sliceSchema = `CREATE TABLE IF NOT EXISTS slices (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at_ms INTEGER NOT NULL
)`

// SQLite persists slices in a single-file database, one row per slice key.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the slice database and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sliceSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply slice schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func (s *SQLite) Load(ctx context.Context, keys []string) (map[string][]byte, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		var value []byte
		err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM slices WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load slice %q: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

func (s *SQLite) Persist(ctx context.Context, values map[string][]byte) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(values) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	now := time.Now().UTC().UnixMilli()
	for key, value := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO slices (key, value, updated_at_ms) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`,
			key, value, now)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("persist slice %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}
	return nil
}

func (s *SQLite) Reset(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM slices`); err != nil {
		return fmt.Errorf("reset slices: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
