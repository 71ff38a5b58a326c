package repository

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edumetrics/kestrel/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migration files are plain SQL that SQLite and PostgreSQL both accept.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrate brings the schema to the newest embedded version.
func (r *SQLRepository) migrate(cfg domain.RepositoryConfig) error {
	m, err := r.migrator(cfg)
	if err != nil {
		return fmt.Errorf("prepare migrations: %w", err)
	}
	if r.driver == "postgres" {
		// The postgres migrator owns a separate connection.
		defer m.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty", version)
	}
	slog.Info("schema ready", "driver", r.driver, "version", version)
	return nil
}

// migrator runs SQLite migrations on the repository's own handle, since a
// second handle to ":memory:" would see another database. Closing it
// would close r.db, so callers leave it open.
func (r *SQLRepository) migrator(cfg domain.RepositoryConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}

	switch r.driver {
	case "postgres":
		return migrate.NewWithSourceInstance("iofs", src, postgresURL(cfg))
	default:
		target, err := sqlite.WithInstance(r.db, &sqlite.Config{})
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "sqlite", target)
	}
}
