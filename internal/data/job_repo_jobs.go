package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/data/pgxutil"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

const insertJobSQL = `
  INSERT INTO jobs (id, type, status, priority, room_id, payload, max_retries, scheduled_at, created_at, updated_at)
  VALUES ($1, $2, 'queued', $3, $4, $5, $6, $7, $8, $8)
  RETURNING ` + jobColumns

// beginExecutionSQL claims a runnable, due job in a single conditional write so two workers
// can never both observe success.
const beginExecutionSQL = `
  UPDATE jobs
  SET status = 'running',
      started_at = $2,
      completed_at = NULL,
      worker_id = NULLIF($3, ''),
      updated_at = $2
  WHERE id = $1
    AND status IN ('queued', 'retrying')
    AND scheduled_at <= $2
  RETURNING ` + jobColumns

const transitionJobSQL = `
  UPDATE jobs
  SET status = $3,
      result = $4,
      error_message = $5,
      retry_count = $6,
      progress = $7,
      worker_id = $8,
      scheduled_at = $9,
      started_at = $10,
      completed_at = $11,
      updated_at = $12
  WHERE id = $1 AND status = $2`

// Create validates req and inserts a queued job, notifying listeners of its type.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	jobs, err := r.CreateBatch(ctx, []*model.CreateJobRequest{req})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// CreateBatch inserts every request in one transaction; either all jobs are created or none.
func (r *JobRepo) CreateBatch(ctx context.Context, reqs []*model.CreateJobRequest) ([]*model.Job, error) {
	if len(reqs) == 0 {
		return nil, apperrors.Validation("at least one job is required")
	}
	for _, req := range reqs {
		if req == nil {
			return nil, apperrors.Validation("create job request is required")
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}

	now := r.timeProvider.Now().UTC()
	jobs := make([]*model.Job, 0, len(reqs))
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			for _, req := range reqs {
				job, err := r.insertJobInTx(ctx, tx, req, now)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
			}
			return nil
		},
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return jobs, nil
}

func (r *JobRepo) insertJobInTx(
	ctx context.Context,
	tx pgx.Tx,
	req *model.CreateJobRequest,
	now time.Time,
) (*model.Job, error) {
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	rows, err := tx.Query(ctx, insertJobSQL,
		uuid.NewString(),
		req.Type,
		req.Type.Priority(),
		req.RoomID,
		[]byte(req.Payload),
		req.EffectiveMaxRetries(),
		scheduledAt,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	job, err := collectJobFromRows(rows)
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("collect job: %w", err)
	}

	if err := notifyJobAdded(ctx, tx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func notifyJobAdded(ctx context.Context, tx pgx.Tx, job *model.Job) error {
	channel := "job_added_" + string(job.Type)
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); err != nil {
		return fmt.Errorf("send job notification: %w", err)
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

// ListByRoom returns the room's jobs, oldest first.
func (r *JobRepo) ListByRoom(ctx context.Context, roomID string) ([]*model.Job, error) {
	if uuid.Validate(roomID) != nil {
		return nil, nil
	}
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE room_id = $1
		ORDER BY created_at ASC, id ASC
	`, roomID)
}

// ListRunnable returns queued or retrying jobs whose scheduled_at has passed, ordered by
// priority then scheduled_at. Rows are not locked; BeginExecution arbitrates.
func (r *JobRepo) ListRunnable(ctx context.Context, params core.ListRunnableParams) ([]*model.Job, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 1
	}
	var types []string
	for _, t := range params.Types {
		types = append(types, string(t))
	}
	now := params.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}

	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status IN ('queued', 'retrying')
		  AND scheduled_at <= $1
		  AND ($2::text[] IS NULL OR type = ANY($2::text[]))
		ORDER BY priority ASC, scheduled_at ASC, created_at ASC
		LIMIT $3
	`, now.UTC(), types, limit)
}

func (r *JobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*model.Job, error) {
	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return scanErr
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list jobs: %w", err))
	}
	return jobs, nil
}

// BeginExecution moves a runnable job to running. When the conditional update matches no
// row the job is re-read to distinguish a missing job, one that is not yet due, and one
// another worker already took.
func (r *JobRepo) BeginExecution(ctx context.Context, params core.BeginExecutionParams) (*model.Job, error) {
	if uuid.Validate(params.JobID) != nil {
		return nil, apperrors.NotFoundf("job %s not found", params.JobID)
	}
	now := params.Now
	if now.IsZero() {
		now = r.timeProvider.Now()
	}

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, beginExecutionSQL, params.JobID, now.UTC(), params.WorkerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapDBError(fmt.Errorf("begin job execution: %w", err))
	}

	current, getErr := r.GetByID(ctx, params.JobID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, beginRejection(current, now)
}

// beginRejection explains why a job could not be started.
func beginRejection(current *model.Job, now time.Time) error {
	if current.Status.Runnable() && current.ScheduledAt.After(now) {
		return apperrors.Conflictf("job %s is not due until %s",
			current.ID, current.ScheduledAt.UTC().Format(time.RFC3339))
	}
	return apperrors.Newf(apperrors.ErrCodeJobAlreadyTaken,
		"job %s is already %s", current.ID, current.Status)
}

// Transition writes the mutable fields of job when its stored status still equals from.
// Jobs moved back to a runnable status notify listeners of their type.
func (r *JobRepo) Transition(ctx context.Context, job *model.Job, from model.JobStatus) (bool, error) {
	if job == nil {
		return false, apperrors.Validation("job is required")
	}
	progress, err := encodeProgress(job.Progress)
	if err != nil {
		return false, err
	}

	var applied bool
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			tag, execErr := tx.Exec(ctx, transitionJobSQL,
				job.ID,
				from,
				job.Status,
				nullableJSON(job.Result),
				job.ErrorMessage,
				job.RetryCount,
				nullableJSON(progress),
				job.WorkerID,
				job.ScheduledAt.UTC(),
				utcPtr(job.StartedAt),
				utcPtr(job.CompletedAt),
				job.UpdatedAt.UTC(),
			)
			if execErr != nil {
				return fmt.Errorf("transition job: %w", execErr)
			}
			applied = tag.RowsAffected() == 1
			if applied && job.Status.Runnable() {
				return notifyJobAdded(ctx, tx, job)
			}
			return nil
		},
	})
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return applied, nil
}

// Stats returns job counts per status.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'queued')    AS queued,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'succeeded') AS succeeded,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*) FILTER (WHERE status = 'retrying')  AS retrying,
    count(*) FILTER (WHERE status = 'cancelled') AS cancelled
  FROM jobs
  `).Scan(&s.Queued, &s.Running, &s.Succeeded, &s.Failed, &s.Retrying, &s.Cancelled)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get job stats: %w", err))
	}
	return &s, nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	roomID, errorMessage, workerID sql.NullString
	payload, result, progress      []byte
	startedAt, completedAt         sql.NullTime
}

func (d *jobRowData) scanInto(scanner rowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&job.Priority,
		&d.roomID,
		&d.payload,
		&d.result,
		&d.errorMessage,
		&job.RetryCount,
		&job.MaxRetries,
		&d.progress,
		&d.workerID,
		&job.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) error {
	job.RoomID = cloneNullableString(d.roomID)
	job.Payload = cloneJSON(d.payload)
	if len(d.result) > 0 {
		job.Result = cloneJSON(d.result)
	}
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.WorkerID = cloneNullableString(d.workerID)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.ScheduledAt = job.ScheduledAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if len(d.progress) > 0 {
		var p model.JobProgress
		if err := json.Unmarshal(d.progress, &p); err != nil {
			return fmt.Errorf("decode job progress: %w", err)
		}
		job.Progress = &p
	}
	return nil
}

func scanJobFromRow(scanner rowScanner) (*model.Job, error) {
	job := &model.Job{}
	var d jobRowData
	if err := d.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := d.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func encodeProgress(p *model.JobProgress) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode job progress: %w", err)
	}
	return raw, nil
}

// nullableJSON maps an empty document to SQL NULL.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
