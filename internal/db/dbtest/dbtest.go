// Package dbtest opens throwaway SQLite databases with the schema applied.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/papertrade/apiserver/config"
	"github.com/papertrade/apiserver/internal/db"
	"github.com/stretchr/testify/require"
)

// Open returns a migrated SQLite database that is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	conn, err := db.OpenSQLite(context.Background(), path)
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() {
		_ = conn.Close()
	})

	require.NoError(t, db.MigrateUp(conn, config.DriverSQLite), "migrate sqlite")
	return conn
}
