package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	Name string
	// DollarPlaceholders rewrites ? into $1, $2, ...
	DollarPlaceholders bool
	// ReturningID uses INSERT ... RETURNING id instead of LastInsertId.
	ReturningID bool
	// Schema holds idempotent CREATE statements.
	Schema []string
}

// Rebind converts a query written with ? placeholders to the dialect's form.
func (d Dialect) Rebind(q string) string {
	if !d.DollarPlaceholders {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", d.Name, err)
		}
	}
	return nil
}
