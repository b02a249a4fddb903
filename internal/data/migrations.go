package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/private-judge/judge-api/internal/migrate"
)

// RunMigrations applies the embedded schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrate.RunWithLogger(ctx, db, logger)
}
