package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDB opens a migrated in-memory SQLite database
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := DefaultDBConfig()
	cfg.Driver = DriverSQLite
	cfg.URL = ":memory:"

	db, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}
