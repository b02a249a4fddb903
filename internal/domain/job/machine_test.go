package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newQueued(maxRetries int) *model.Job {
	return &model.Job{
		ID:          "job-1",
		Type:        model.JobTypeJudge,
		Status:      model.JobStatusQueued,
		Priority:    model.JobTypeJudge.Priority(),
		MaxRetries:  maxRetries,
		ScheduledAt: t0,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

func TestStart(t *testing.T) {
	j := newQueued(3)
	require.NoError(t, Start(j, "worker-a", t0))
	assert.Equal(t, model.JobStatusRunning, j.Status)
	require.NotNil(t, j.StartedAt)
	require.NotNil(t, j.WorkerID)
	assert.Equal(t, "worker-a", *j.WorkerID)
	assert.Nil(t, j.CompletedAt)

	err := Start(j, "worker-b", t0)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestSucceedAndFailRequireRunning(t *testing.T) {
	for _, status := range []model.JobStatus{
		model.JobStatusQueued, model.JobStatusRetrying, model.JobStatusSucceeded,
		model.JobStatusFailed, model.JobStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			j := newQueued(3)
			j.Status = status
			assert.True(t, apperrors.IsInvalidTransition(Succeed(j, nil, t0)))
			assert.True(t, apperrors.IsInvalidTransition(Fail(j, "boom", t0)))
			assert.Equal(t, status, j.Status)
		})
	}
}

func TestSucceedClearsError(t *testing.T) {
	j := newQueued(3)
	require.NoError(t, Start(j, "w", t0))
	msg := "stale"
	j.ErrorMessage = &msg
	require.NoError(t, Succeed(j, json.RawMessage(`{"ok":true}`), t0.Add(time.Second)))
	assert.Equal(t, model.JobStatusSucceeded, j.Status)
	assert.Nil(t, j.ErrorMessage)
	assert.JSONEq(t, `{"ok":true}`, string(j.Result))
	require.NotNil(t, j.CompletedAt)
}

func TestFailClearsResult(t *testing.T) {
	j := newQueued(3)
	require.NoError(t, Start(j, "w", t0))
	j.Result = json.RawMessage(`{}`)
	require.NoError(t, Fail(j, "", t0))
	assert.Nil(t, j.Result)
	require.NotNil(t, j.ErrorMessage)
	assert.Equal(t, "unknown error", *j.ErrorMessage)
}

func TestRetryCycleUntilLimit(t *testing.T) {
	policy := BackoffPolicy{Base: time.Second}
	j := newQueued(3)
	now := t0
	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

	for i := range 3 {
		require.NoError(t, Start(j, "w", now))
		require.NoError(t, Fail(j, "gateway timeout", now))
		delay, err := Retry(j, policy, now)
		require.NoError(t, err)
		assert.Equal(t, wantDelays[i], delay)
		assert.Equal(t, model.JobStatusRetrying, j.Status)
		assert.Equal(t, i+1, j.RetryCount)
		assert.Equal(t, now.Add(delay), j.ScheduledAt)
		assert.Nil(t, j.StartedAt)
		assert.Nil(t, j.CompletedAt)
		assert.Nil(t, j.ErrorMessage)
		assert.LessOrEqual(t, j.RetryCount, j.MaxRetries)
		now = j.ScheduledAt
	}

	require.NoError(t, Start(j, "w", now))
	require.NoError(t, Fail(j, "gateway timeout", now))
	assert.Equal(t, model.JobStatusFailed, j.Status)

	_, err := Retry(j, policy, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryLimitExceeded(err))
	assert.Equal(t, 3, j.RetryCount)
	assert.Equal(t, model.JobStatusFailed, j.Status)
}

func TestRetryRequiresFailed(t *testing.T) {
	j := newQueued(3)
	_, err := Retry(j, BackoffPolicy{}, t0)
	assert.True(t, apperrors.IsRetryLimitExceeded(err))
}

func TestCancel(t *testing.T) {
	j := newQueued(3)
	require.NoError(t, Cancel(j, t0))
	assert.Equal(t, model.JobStatusCancelled, j.Status)
	require.NotNil(t, j.CompletedAt)

	running := newQueued(3)
	require.NoError(t, Start(running, "w", t0))
	require.NoError(t, Cancel(running, t0))
	assert.True(t, apperrors.IsInvalidTransition(Succeed(running, nil, t0)))

	retrying := newQueued(3)
	retrying.Status = model.JobStatusRetrying
	assert.True(t, apperrors.IsInvalidTransition(Cancel(retrying, t0)))
}

func TestAbandon(t *testing.T) {
	for _, status := range []model.JobStatus{model.JobStatusQueued, model.JobStatusRunning, model.JobStatusRetrying} {
		j := newQueued(3)
		j.Status = status
		require.NoError(t, Abandon(j, t0), status)
		assert.Equal(t, model.JobStatusCancelled, j.Status)
	}

	done := newQueued(3)
	done.Status = model.JobStatusSucceeded
	assert.True(t, apperrors.IsInvalidTransition(Abandon(done, t0)))
}

func TestRequeue(t *testing.T) {
	j := newQueued(1)
	require.NoError(t, Start(j, "w", t0))
	require.NoError(t, Fail(j, "bad input", t0))
	j.RetryCount = 1

	require.NoError(t, Requeue(j, t0.Add(time.Hour)))
	assert.Equal(t, model.JobStatusQueued, j.Status)
	assert.Zero(t, j.RetryCount)
	assert.Nil(t, j.ErrorMessage)
	assert.Equal(t, t0.Add(time.Hour), j.ScheduledAt)

	assert.True(t, apperrors.IsInvalidTransition(Requeue(j, t0)))
}

func TestUpdateProgress(t *testing.T) {
	j := newQueued(3)
	assert.True(t, apperrors.IsInvalidTransition(UpdateProgress(j, 1, 8, t0)))

	require.NoError(t, Start(j, "w", t0))
	require.NoError(t, UpdateProgress(j, 3, 8, t0))
	assert.Equal(t, &model.JobProgress{Step: 3, Total: 8, Remaining: 5}, j.Progress)
	assert.True(t, apperrors.IsValidation(UpdateProgress(j, 9, 8, t0)))
}

func TestLess(t *testing.T) {
	notify := &model.Job{Priority: model.JobTypeNotification.Priority(), ScheduledAt: t0.Add(time.Hour)}
	debate := &model.Job{Priority: model.JobTypeDebate.Priority(), ScheduledAt: t0}
	judgeEarly := &model.Job{Priority: model.JobTypeJudge.Priority(), ScheduledAt: t0}
	juryLate := &model.Job{Priority: model.JobTypeJury.Priority(), ScheduledAt: t0.Add(time.Minute)}

	assert.True(t, Less(notify, debate))
	assert.True(t, Less(judgeEarly, juryLate))
	assert.False(t, Less(juryLate, judgeEarly))
	assert.True(t, Less(juryLate, debate))
}
