package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) Migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			instrument    TEXT NOT NULL,
			is_admin      INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create accounts: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token      TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create refresh_tokens: %w", err)
	}

	// created_by is not a foreign key: songs outlive the account that added them.
	_, err = d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS songs (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			artist     TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create songs: %w", err)
	}

	_, err = d.sql.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS songs_fts USING fts5(
			song_id UNINDEXED,
			title,
			artist,
			tokenize = 'unicode61 remove_diacritics 2'
		)
	`)
	if err != nil {
		return fmt.Errorf("create songs_fts: %w", err)
	}

	if _, err := d.sql.Exec(`CREATE INDEX IF NOT EXISTS idx_songs_created_at ON songs(created_at DESC)`); err != nil {
		return fmt.Errorf("index songs: %w", err)
	}
	return nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
