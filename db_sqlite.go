package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDB creates its own schema on Init; postgres relies on migrations.
type SQLiteDB struct {
	sqlStore
	path string
}

var _ Store = (*SQLiteDB)(nil)

func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection serializes writers
	d.SetMaxOpenConns(1)
	s := &SQLiteDB{
		sqlStore: sqlStore{db: d, uniqueViolation: isSQLiteUniqueViolation},
		path:     path,
	}
	if err := s.Init(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLiteDB) Init(ctx context.Context) error {
	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, email TEXT NOT NULL UNIQUE, name TEXT NOT NULL, password TEXT NOT NULL DEFAULT '', household_id TEXT, preferences TEXT NOT NULL DEFAULT '{}', created_at DATETIME NOT NULL, updated_at DATETIME NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (token TEXT PRIMARY KEY, user_id TEXT NOT NULL, expires_at INTEGER NOT NULL, revoked INTEGER NOT NULL DEFAULT 0, created_at DATETIME NOT NULL);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);`,
		`CREATE TABLE IF NOT EXISTS households (id TEXT PRIMARY KEY, name TEXT NOT NULL, owner_id TEXT NOT NULL, members TEXT NOT NULL DEFAULT '[]', created_at DATETIME NOT NULL, updated_at DATETIME NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS food_items (id TEXT PRIMARY KEY, user_id TEXT NOT NULL, household_id TEXT, name TEXT NOT NULL, category TEXT NOT NULL, purchase_date DATETIME NOT NULL, expiration_date DATETIME NOT NULL, quantity REAL NOT NULL, unit TEXT NOT NULL, location TEXT NOT NULL, notes TEXT, barcode TEXT, image_url TEXT, created_at DATETIME NOT NULL, updated_at DATETIME NOT NULL);`,
		`CREATE INDEX IF NOT EXISTS idx_food_items_user_expiration ON food_items(user_id, expiration_date);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
