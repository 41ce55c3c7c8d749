package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens an in-memory sqlite store with the schema created. Used by tests
// across packages and by local runs without postgres.
func OpenSQLite(ctx context.Context) (*DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a second connection would see a different in-memory database
	sqldb.SetMaxOpenConns(1)

	d := &DB{Bun: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := d.CreateSchema(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
