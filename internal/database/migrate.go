package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrator applies the embedded schema for one dialect.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrator builds a Migrator over an open connection. The migrator must not be
// closed independently of db since the driver shares the handle.
func NewMigrator(db *sql.DB, dialect Dialect, logger *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+dialect.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	var driver database.Driver
	switch dialect.Name {
	case DriverSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s driver: %w", dialect.Name, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect.Name, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{migrate: m, logger: logger}, nil
}

// Up runs all pending migrations
func (m *Migrator) Up() error {
	m.logger.Info("Running migrations up")

	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.migrate.Version()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	m.logger.Info("Migrations completed",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Down rolls back all migrations
func (m *Migrator) Down() error {
	m.logger.Info("Running migrations down")

	err := m.migrate.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	m.logger.Info("All migrations rolled back")
	return nil
}

// Version returns the applied schema version, zero when nothing has run yet.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Migrate applies every pending migration for dialect.
func Migrate(db *sql.DB, dialect Dialect, logger *zap.Logger) error {
	m, err := NewMigrator(db, dialect, logger)
	if err != nil {
		return err
	}
	return m.Up()
}
