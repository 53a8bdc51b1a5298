package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/migrations"
)

// RunMigrations applies all pending SQL migrations and verifies the schema.
// It delegates to the migrations package, which tracks applied versions in the
// schema_migrations table to guarantee idempotence across multiple startups.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger) error {
	if err := migrations.Run(ctx, pool, log); err != nil {
		return err
	}

	return migrations.CheckSchema(ctx, pool)
}
