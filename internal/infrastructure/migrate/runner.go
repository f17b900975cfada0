// Package migrate runs schema migrations for the document store.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file source for migrations
)

type Config struct {
	DatabaseURL    string
	MigrationsPath string
}

type Runner struct {
	config *Config
}

func NewRunner(config *Config) *Runner {
	return &Runner{
		config: config,
	}
}

// open builds a migrate instance over a fresh connection. The caller owns
// the returned cleanup func.
func (r *Runner) open() (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", r.config.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	cleanup := func() {
		if closeErr := db.Close(); closeErr != nil {
			fmt.Printf("Failed to close database connection: %v\n", closeErr)
		}
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", r.config.MigrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, cleanup, nil
}

// Run executes pending migrations
func (r *Runner) Run() error {
	m, cleanup, err := r.open()
	if err != nil {
		return err
	}
	defer cleanup()

	if upErr := m.Up(); upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	return nil
}

// Rollback rolls back the last migration
func (r *Runner) Rollback() error {
	m, cleanup, err := r.open()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	return nil
}

// Version returns the current migration version
func (r *Runner) Version() (uint, bool, error) {
	m, cleanup, err := r.open()
	if err != nil {
		return 0, false, err
	}
	defer cleanup()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}

	return version, dirty, nil
}
