package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/papertrade/apiserver/config"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator builds a migrator over an open connection using the embedded
// migrations for driver. Closing the migrator closes conn.
func NewMigrator(conn *sql.DB, driver string) (*migrate.Migrate, error) {
	if driver == "" {
		driver = config.DriverPostgres
	}

	source, err := iofs.New(migrationsFS, path.Join("migrations", driver))
	if err != nil {
		return nil, fmt.Errorf("load migrations for %s: %w", driver, err)
	}

	var target database.Driver
	switch driver {
	case config.DriverPostgres:
		target, err = migratepg.WithInstance(conn, &migratepg.Config{})
	case config.DriverSQLite:
		target, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init migration driver: %w", err)
	}

	return migrate.NewWithInstance("iofs", source, driver, target)
}

// MigrateUp applies all pending up migrations. It leaves conn open.
func MigrateUp(conn *sql.DB, driver string) error {
	migrator, err := NewMigrator(conn, driver)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			zap.L().Debug("Schema already up to date")
			return nil
		}
		return fmt.Errorf("migrate up failed: %w", err)
	}
	zap.L().Info("Applied schema migrations", zap.String("driver", driver))
	return nil
}
