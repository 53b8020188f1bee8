// Package migrations applies the checkpoint-store schema via
// golang-migrate, keeping schema evolution out of application startup
// code paths.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var fs embed.FS

// Apply runs every pending up migration against dsn.
func Apply(dsn string) error {
	src, err := iofs.New(fs, ".")
	if err != nil {
		return fmt.Errorf("migrations: loading embedded source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrations: opening migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations: applying: %w", err)
	}
	return nil
}
