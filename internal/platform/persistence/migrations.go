package persistence

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the schema at databaseURL up to the newest migration in
// dir and returns the schema version it ended on. Zero means no migrations ran.
func RunMigrations(databaseURL, dir string) (uint, error) {
	switch {
	case dir == "":
		return 0, errors.New("migrations path cannot be empty")
	case databaseURL == "":
		return 0, errors.New("database URL cannot be empty")
	}

	m, err := migrate.New("file://"+filepath.ToSlash(dir), databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	version, dirty, versionErr := m.Version()
	sourceErr, dbErr := m.Close()

	switch {
	case upErr != nil && !errors.Is(upErr, migrate.ErrNoChange):
		return 0, fmt.Errorf("failed to apply migrations: %w", upErr)
	case versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion):
		return 0, fmt.Errorf("failed to read schema version: %w", versionErr)
	case dirty:
		return version, fmt.Errorf("schema version %d is dirty, fix it by hand before restarting", version)
	}
	if err := errors.Join(sourceErr, dbErr); err != nil {
		return version, fmt.Errorf("failed to close migrate instance: %w", err)
	}
	return version, nil
}
