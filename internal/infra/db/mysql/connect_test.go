package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/sheet-scraper/internal/infra/db/sqlstore/sqlstoretest"
)

// startMySQL skips the test when Docker is unavailable.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("container test skipped in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("testdb"),
		tcmysql.WithUsername("test"),
		tcmysql.WithPassword("test"),
	)
	if err != nil {
		t.Skipf("Failed to start MySQL container: %v", err)
		return nil
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	require.NoError(t, err)

	deadline := time.Now().Add(60 * time.Second)
	for {
		db, err := Connect(ctx, dsn)
		if err == nil {
			t.Cleanup(func() { db.Close() })
			return db
		}
		if time.Now().After(deadline) {
			t.Fatalf("mysql not ready in time: %v", err)
		}
		time.Sleep(time.Second)
	}
}

func TestFileRepositoryMySQL(t *testing.T) {
	db := startMySQL(t)
	require.NoError(t, sqlstore.EnsureSchema(context.Background(), db, Dialect))
	require.NoError(t, sqlstore.EnsureSchema(context.Background(), db, Dialect))

	sqlstoretest.Run(t, db, Dialect)
}
