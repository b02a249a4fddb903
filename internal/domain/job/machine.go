// Package job holds the job state machine, its retry policy and the availability notifier.
package job

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// Start moves a runnable job to running on behalf of workerID.
func Start(j *model.Job, workerID string, now time.Time) error {
	if !j.Status.Runnable() {
		return apperrors.InvalidTransitionf("job %s cannot start from %s", j.ID, j.Status)
	}
	j.Status = model.JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	if workerID != "" {
		j.WorkerID = &workerID
	}
	j.UpdatedAt = now
	return nil
}

// Succeed records the result of a running job.
func Succeed(j *model.Job, result json.RawMessage, now time.Time) error {
	if j.Status != model.JobStatusRunning {
		return apperrors.InvalidTransitionf("job %s cannot succeed from %s", j.ID, j.Status)
	}
	j.Status = model.JobStatusSucceeded
	j.Result = result
	j.ErrorMessage = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail records the error of a running job. The job is left failed; callers decide
// whether to Retry it.
func Fail(j *model.Job, message string, now time.Time) error {
	if j.Status != model.JobStatusRunning {
		return apperrors.InvalidTransitionf("job %s cannot fail from %s", j.ID, j.Status)
	}
	if strings.TrimSpace(message) == "" {
		message = "unknown error"
	}
	j.Status = model.JobStatusFailed
	j.Result = nil
	j.ErrorMessage = &message
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Retry schedules a failed job for another attempt and returns the back-off applied.
func Retry(j *model.Job, policy BackoffPolicy, now time.Time) (time.Duration, error) {
	if j.Status != model.JobStatusFailed || j.RetryCount >= j.MaxRetries {
		return 0, apperrors.Newf(apperrors.ErrCodeRetryLimitExceeded,
			"job %s cannot be retried (status %s, %d/%d retries)", j.ID, j.Status, j.RetryCount, j.MaxRetries)
	}
	delay := policy.Delay(j.RetryCount)
	j.RetryCount++
	j.Status = model.JobStatusRetrying
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = nil
	j.WorkerID = nil
	j.Progress = nil
	j.ScheduledAt = now.Add(delay)
	j.UpdatedAt = now
	return delay, nil
}

// Cancel cancels a queued or running job. Running jobs are not preempted; their
// eventual result is discarded because Succeed and Fail reject a cancelled job.
func Cancel(j *model.Job, now time.Time) error {
	if j.Status != model.JobStatusQueued && j.Status != model.JobStatusRunning {
		return apperrors.InvalidTransitionf("job %s cannot be cancelled from %s", j.ID, j.Status)
	}
	j.Status = model.JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Abandon cancels any job that has not finished, including one waiting to retry. It is
// used when the owning room is cancelled.
func Abandon(j *model.Job, now time.Time) error {
	if j.Status.Terminal() {
		return apperrors.InvalidTransitionf("job %s is already %s", j.ID, j.Status)
	}
	j.Status = model.JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Requeue resets a terminally failed job for manual intervention.
func Requeue(j *model.Job, now time.Time) error {
	if j.Status != model.JobStatusFailed {
		return apperrors.InvalidTransitionf("job %s cannot be requeued from %s", j.ID, j.Status)
	}
	j.Status = model.JobStatusQueued
	j.RetryCount = 0
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = nil
	j.WorkerID = nil
	j.Progress = nil
	j.ScheduledAt = now
	j.UpdatedAt = now
	return nil
}

// UpdateProgress sets progress on a running job.
func UpdateProgress(j *model.Job, step, total int, now time.Time) error {
	if j.Status != model.JobStatusRunning {
		return apperrors.InvalidTransitionf("job %s is not running", j.ID)
	}
	if total <= 0 || step < 0 || step > total {
		return apperrors.ValidationField("progress", "progress must satisfy 0 <= step <= total and total > 0")
	}
	j.Progress = &model.JobProgress{Step: step, Total: total, Remaining: total - step}
	j.UpdatedAt = now
	return nil
}

// Less orders jobs by type priority, then by scheduled_at.
func Less(a, b *model.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ScheduledAt.Before(b.ScheduledAt)
}
