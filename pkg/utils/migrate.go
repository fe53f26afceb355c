package utils

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending embedded migration.
// It is safe to run on each boot; applied versions are skipped.
func Migrate(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	sub, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if l != nil {
		for _, r := range results {
			l.Info("migration applied", "version", r.Source.Version, "duration_ms", r.Duration.Milliseconds())
		}
	}
	return nil
}

// MigrationFiles lists embedded migration names in apply order.
func MigrationFiles() ([]string, error) {
	return fs.Glob(migrationFS, "migrations/*.sql")
}
