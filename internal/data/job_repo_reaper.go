package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/data/pgxutil"
	"github.com/private-judge/judge-api/internal/domain/model"
)

// Advisory lock namespace for reaper operations, used with the two-argument
// pg_try_advisory_xact_lock(major, minor).
const (
	advisoryLockReaperMajor      = 2000
	advisoryLockReaperDeleteJobs = 1
)

// DeleteTerminalBefore deletes up to BatchSize jobs in one of the given terminal statuses
// that completed before params.Before. Concurrent reapers skip the batch instead of
// contending for the same rows. Returns the number of jobs deleted.
func (r *JobRepo) DeleteTerminalBefore(ctx context.Context, params core.DeleteJobsParams) (int64, error) {
	statuses := make([]string, 0, len(params.Statuses))
	for _, s := range params.Statuses {
		if !s.Terminal() {
			return 0, fmt.Errorf("refusing to delete jobs in non-terminal status %q", s)
		}
		statuses = append(statuses, string(s))
	}
	if len(statuses) == 0 {
		statuses = []string{
			string(model.JobStatusSucceeded), string(model.JobStatusFailed), string(model.JobStatusCancelled),
		}
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 1000
	}

	var deleted int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)",
				advisoryLockReaperMajor, advisoryLockReaperDeleteJobs).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = ANY($1::text[])
					  AND completed_at IS NOT NULL
					  AND completed_at < $2
					ORDER BY completed_at
					LIMIT $3
				)
			`, statuses, params.Before.UTC(), batch)
			if err != nil {
				return fmt.Errorf("delete terminal jobs: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			deleted = n
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
