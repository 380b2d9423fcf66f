// Package db applies the pipeline's schema migrations with goose
// (github.com/pressly/goose/v3). Migration files live in
// internal/db/migrations/ and are embedded via //go:embed.
//
// EnsureSchema is idempotent: it adds migration-tracking columns to the
// file entity table if absent and creates the batch/record tables. goose
// keeps its own version table (goose_db_version), so re-running against
// an up-to-date database is a no-op.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/list-cutter/cutover/internal/dbpool"
	"github.com/list-cutter/cutover/internal/models"
)

// EnsureSchema applies all pending migrations from the provided filesystem.
// Failures mean the store is unreachable or under-privileged; both are
// fatal to the whole run and wrapped in SchemaError.
func EnsureSchema(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS) error {
	// goose requires a *sql.DB; wrap the pool's connection string via the
	// pgx stdlib driver.
	sqlDB, err := sql.Open("pgx", pool.ConnString())
	if err != nil {
		return &models.SchemaError{Err: fmt.Errorf("opening sql.DB for migrations: %w", err)}
	}
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return &models.SchemaError{Err: fmt.Errorf("creating goose provider: %w", err)}
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return &models.SchemaError{Err: fmt.Errorf("applying migrations: %w", err)}
	}

	for _, r := range results {
		if r.Error != nil {
			return &models.SchemaError{Err: fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)}
		}

		log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.Debug("schema already up to date")
	}

	return nil
}
