package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
)

// Dialect for SQLite. AUTOINCREMENT keeps ids monotonic even after deletes.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	input_filename TEXT NOT NULL,
	input_key TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	output_filename TEXT,
	output_key TEXT,
	status TEXT NOT NULL DEFAULT 'processing',
	error_message TEXT,
	created_date DATETIME NOT NULL,
	processed_at DATETIME
)`,
		`CREATE TABLE IF NOT EXISTS scrape_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL,
	item_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_date DATETIME NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_records_file_id ON scrape_records(file_id)`,
	},
}

// Connect opens (or creates) the database file at path.
// Pass ":memory:" for an in-memory database (used by tests).
func Connect(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// single connection avoids "database is locked" and keeps :memory: a single database
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx2, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx2, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting journal mode: %w", err)
		}
	}
	return db, nil
}
