package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// WaitForNotification blocks until a job of jobType is announced on its LISTEN channel or
// ctx is done.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	if !jobType.Valid() {
		return fmt.Errorf("invalid job type: %s", jobType)
	}
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && r.logger != nil {
			r.logger.DebugContext(ctx, "close listen conn", "error", cerr)
		}
	}()

	channel := "job_added_" + string(jobType)
	quoted := pgx.Identifier{channel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil && r.logger != nil {
			r.logger.DebugContext(ctx, "unlisten failed", "channel", channel, "error", execErr)
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
