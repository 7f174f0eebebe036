package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// MigrationsPath returns the embedded directory holding the migrations
// for dialect.
func MigrationsPath(dialect Dialect) string {
	if dialect == DialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

// Migrate applies every pending up migration. An up-to-date schema is not
// an error.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrationFiles, MigrationsPath(db.Dialect))
	if err != nil {
		return fmt.Errorf("migration error reading sources: %w", err)
	}

	var driver database.Driver
	switch db.Dialect {
	case DialectPostgres:
		driver, err = pgxmigrate.WithInstance(db.DB, &pgxmigrate.Config{})
	default:
		driver, err = sqlitemigrate.WithInstance(db.DB, &sqlitemigrate.Config{})
	}
	if err != nil {
		return fmt.Errorf("migration error creating driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(db.Dialect), driver)
	if err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration error: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration error reading version: %w", err)
	}
	db.logger.Info().Str("func", "DB.Migrate").Uint("version", version).Bool("dirty", dirty).Msg("schema migrated")
	return nil
}
