package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
)

var Dialect = sqlstore.Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS files (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	input_filename VARCHAR(512) NOT NULL,
	input_key VARCHAR(255) NOT NULL,
	checksum VARCHAR(32) NOT NULL DEFAULT '',
	output_filename VARCHAR(600) NULL,
	output_key VARCHAR(255) NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'processing',
	error_message TEXT NULL,
	created_date DATETIME(6) NOT NULL,
	processed_at DATETIME(6) NULL,
	INDEX idx_files_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS scrape_records (
	id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	file_id BIGINT NOT NULL,
	item_id VARCHAR(512) NOT NULL,
	status VARCHAR(16) NOT NULL DEFAULT 'pending',
	created_date DATETIME(6) NOT NULL,
	INDEX idx_scrape_records_file_id (file_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
