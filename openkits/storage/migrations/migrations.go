// Package migrations holds the database schema of every supported store.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Up applies every pending migration of the dialect to the database. The database is not closed.
func Up(ctx context.Context, log *slog.Logger, db *sql.DB, dialect goose.Dialect) error {
	dir, err := directory(dialect)
	if err != nil {
		return err
	}
	fsys, err := fs.Sub(files, dir)
	if err != nil {
		return fmt.Errorf("opening %s migrations: %w", dir, err)
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		log.Info("Applied migration", "dialect", dialect, "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// directory returns the directory holding the migrations of a dialect.
func directory(dialect goose.Dialect) (string, error) {
	switch dialect {
	case goose.DialectPostgres:
		return "postgres", nil
	case goose.DialectSQLite3:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}
