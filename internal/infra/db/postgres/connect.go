package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Name:               "postgres",
	DollarPlaceholders: true,
	ReturningID:        true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS files (
	id BIGSERIAL PRIMARY KEY,
	input_filename TEXT NOT NULL,
	input_key TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	output_filename TEXT,
	output_key TEXT,
	status TEXT NOT NULL DEFAULT 'processing',
	error_message TEXT,
	created_date TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
)`,
		`CREATE INDEX IF NOT EXISTS idx_files_status ON files(status)`,
		`CREATE TABLE IF NOT EXISTS scrape_records (
	id BIGSERIAL PRIMARY KEY,
	file_id BIGINT NOT NULL,
	item_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_date TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_records_file_id ON scrape_records(file_id)`,
	},
}

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
