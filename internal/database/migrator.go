package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/helixir/document-review-service/migrations"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// Migrator applies the tracking store schema.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB // sql.DB wrapper around pgx pool, must be closed
	logger  zerolog.Logger
}

// NewMigrator creates a migrator bound to db. When migrationsPath is empty
// the migrations compiled into the binary are used; otherwise files are read
// from that directory.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if db.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	if migrationsPath != "" {
		if _, err := os.Stat(migrationsPath); err != nil {
			return nil, fmt.Errorf("migrations path validation failed: %w", err)
		}
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	var m *migrate.Migrate
	if migrationsPath != "" {
		m, err = migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	} else {
		src, srcErr := iofs.New(migrations.FS, ".")
		if srcErr != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to open embedded migrations: %w", srcErr)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{
		migrate: m,
		sqlDB:   sqlDB,
		logger:  logger.With().Str("component", "migrator").Logger(),
	}, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up() error {
	m.logger.Info().Msg("running database migrations")

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("schema already up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.logVersion("migrations applied")
	return nil
}

// Down rolls back all migrations.
func (m *Migrator) Down() error {
	m.logger.Warn().Msg("rolling back all migrations")

	if err := m.migrate.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Msg("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	m.logger.Info().Msg("migrations rolled back")
	return nil
}

// Steps runs n migrations (positive = up, negative = down).
func (m *Migrator) Steps(n int) error {
	m.logger.Info().Int("steps", n).Msg("running migration steps")

	if err := m.migrate.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, os.ErrNotExist) {
			m.logger.Info().Msg("no migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to run migration steps: %w", err)
	}

	m.logVersion("migration steps applied")
	return nil
}

// Version returns the current migration version and whether the last
// migration left the schema dirty.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force sets the migration version without running migrations.
// It is used to recover from a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing migration version")
	return m.migrate.Force(version)
}

// Close closes the migrator and releases resources.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()

	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}

	return errors.Join(wrapIf("close source", sourceErr), wrapIf("close database", dbErr))
}

func (m *Migrator) logVersion(msg string) {
	v, dirty, err := m.Version()
	if err != nil {
		m.logger.Warn().Err(err).Msg(msg)
		return
	}
	m.logger.Info().Uint("version", v).Bool("dirty", dirty).Msg(msg)
}

func wrapIf(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
