package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

func (db *DB) migrator() (*migrate.Migrate, error) {
	var (
		driver migratedb.Driver
		err    error
	)
	switch db.dialect {
	case DialectPostgres:
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", db.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", db.dialect, err)
	}

	source, err := iofs.New(migrations, "migrations/"+string(db.dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(db.dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// release returns the migrator's dedicated postgres connection to the pool. The
// sqlite driver's Close would close the shared *sql.DB, so it is left open.
func (db *DB) release(m *migrate.Migrate) {
	if db.dialect == DialectPostgres {
		_, _ = m.Close()
	}
}

// Migrate applies all pending migrations and returns the resulting version.
func (db *DB) Migrate() (uint, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, err
	}
	defer db.release(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration state is dirty at version %d", version)
	}
	return version, nil
}

// MigrationVersion returns the applied version and whether it is dirty.
func (db *DB) MigrationVersion() (uint, bool, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	defer db.release(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateDown rolls back every migration. All session data is lost.
func (db *DB) MigrateDown() error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	defer db.release(m)

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}
