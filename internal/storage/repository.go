package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"valuta/internal/kv"

	_ "modernc.org/sqlite"
)

// SQLiteRepository persists preferences in a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

var _ kv.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer keeps SQLite away from SQLITE_BUSY under concurrent Sets.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetString implements kv.Store
func (r *SQLiteRepository) GetString(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_strings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get string %q: %w", key, err)
	}
	return value, true, nil
}

// SetString implements kv.Store
func (r *SQLiteRepository) SetString(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_strings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set string %q: %w", key, err)
	}
	slog.DebugContext(ctx, "Preference saved to SQLite", "key", key)
	return nil
}

// GetStrings implements kv.Store
func (r *SQLiteRepository) GetStrings(ctx context.Context, key string) ([]string, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_lists WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get list %q: %w", key, err)
	}
	values := []string{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, false, fmt.Errorf("decode list %q: %w", key, err)
	}
	return values, true, nil
}

// SetStrings implements kv.Store
func (r *SQLiteRepository) SetStrings(ctx context.Context, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode list %q: %w", key, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO kv_lists (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("set list %q: %w", key, err)
	}
	slog.DebugContext(ctx, "Preference list saved to SQLite", "key", key, "count", len(values))
	return nil
}
