package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/sheet-scraper/internal/config"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/mysql"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/postgres"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlite"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
)

// Open connects to the configured engine and creates missing tables.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, sqlstore.Dialect, error) {
	var (
		conn    *sql.DB
		dialect sqlstore.Dialect
		err     error
	)
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		conn, err = mysql.Connect(ctx, cfg.DSN())
		dialect = mysql.Dialect
	case config.DriverPostgres:
		conn, err = postgres.Connect(ctx, cfg.DSN())
		dialect = postgres.Dialect
	case config.DriverSQLite:
		conn, err = sqlite.Connect(ctx, cfg.DSN())
		dialect = sqlite.Dialect
	default:
		return nil, sqlstore.Dialect{}, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, sqlstore.Dialect{}, fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
	}
	if err := sqlstore.EnsureSchema(ctx, conn, dialect); err != nil {
		conn.Close()
		return nil, sqlstore.Dialect{}, err
	}
	return conn, dialect, nil
}
