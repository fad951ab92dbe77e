package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the on-device SQLite database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	// Autosave and the expiry sweep may interleave; serialize writers.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS draft_fields (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS recording_artifacts (
			id               TEXT PRIMARY KEY,
			local_path       TEXT NOT NULL DEFAULT '',
			remote_path      TEXT NOT NULL DEFAULT '',
			file_name        TEXT NOT NULL,
			duration_seconds REAL NOT NULL DEFAULT 0,
			size_bytes       INTEGER NOT NULL DEFAULT 0,
			saved_at         TIMESTAMP NOT NULL,
			uploaded_at      TIMESTAMP,
			is_local         INTEGER NOT NULL DEFAULT 0,
			expires_at       TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
