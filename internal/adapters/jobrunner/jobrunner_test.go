package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/data/memstore"
	domainjob "github.com/private-judge/judge-api/internal/domain/job"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service"
	"github.com/private-judge/judge-api/internal/testutil"
)

func newJobService(t *testing.T) *service.JobService {
	t.Helper()
	store := memstore.New(memstore.Options{})
	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         store.Jobs(),
		Backoff:      domainjob.BackoffPolicy{Base: time.Millisecond},
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(jobs.StopAllListeners)
	return jobs
}

func enqueueNotification(t *testing.T, jobs *service.JobService, maxRetries *int) *model.Job {
	t.Helper()
	job, err := jobs.Enqueue(context.Background(), &model.NotificationJobPayload{
		Event:      model.NotificationDebateStarted,
		Recipients: []string{testutil.CreatorID},
		Message:    "The debate has started.",
	}, service.EnqueueOptions{MaxRetries: maxRetries})
	require.NoError(t, err)
	return job
}

// startRunner runs r until the test ends.
func startRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("runner did not stop")
		}
	})
}

func waitForStatus(t *testing.T, jobs *service.JobService, id string, want model.JobStatus) *model.Job {
	t.Helper()
	var job *model.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = jobs.Get(context.Background(), id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func delivered(context.Context, *model.Job) (json.RawMessage, error) {
	return json.RawMessage(`{"delivered":true}`), nil
}

func TestNewRunner_Validation(t *testing.T) {
	jobs := newJobService(t)

	_, err := NewRunner(RunnerOptions{Handlers: Handlers{model.JobTypeNotification: delivered}})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: jobs})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: jobs, Handlers: Handlers{"browser": delivered}})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Jobs: jobs, Handlers: Handlers{
		model.JobTypeDebate:       delivered,
		model.JobTypeNotification: delivered,
	}})
	require.NoError(t, err)
	assert.Equal(t, []model.JobType{model.JobTypeNotification, model.JobTypeDebate}, r.types)
}

func TestRunner_CompletesJob(t *testing.T) {
	jobs := newJobService(t)
	rec := &statsd.Recorder{}
	r, err := NewRunner(RunnerOptions{
		Jobs:     jobs,
		Handlers: Handlers{model.JobTypeNotification: delivered},
		Metrics:  rec,
		WorkerID: "test-runner",
		PollWait: 20 * time.Millisecond,
		Name:     "notification_runner",
	})
	require.NoError(t, err)
	startRunner(t, r)

	job := enqueueNotification(t, jobs, nil)
	done := waitForStatus(t, jobs, job.ID, model.JobStatusSucceeded)

	assert.JSONEq(t, `{"delivered":true}`, string(done.Result))
	require.NotNil(t, done.WorkerID)
	assert.True(t, strings.HasPrefix(*done.WorkerID, "test-runner-"))

	require.Eventually(t, func() bool { return len(rec.Named("runner.job_duration")) == 1 }, time.Second, 5*time.Millisecond)
	m := rec.Named("runner.job_duration")[0]
	assert.Equal(t, "success", m.Tags["result"])
	assert.Equal(t, "notification_runner", m.Tags["runner"])
}

func TestRunner_RetriesTransientFailure(t *testing.T) {
	jobs := newJobService(t)
	var calls atomic.Int32
	r, err := NewRunner(RunnerOptions{
		Jobs: jobs,
		Handlers: Handlers{model.JobTypeNotification: func(ctx context.Context, job *model.Job) (json.RawMessage, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("webhook: 503 service unavailable")
			}
			return delivered(ctx, job)
		}},
		PollWait: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	startRunner(t, r)

	job := enqueueNotification(t, jobs, nil)
	done := waitForStatus(t, jobs, job.ID, model.JobStatusSucceeded)
	assert.Equal(t, 1, done.RetryCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_RetriesInvalidModelOutput(t *testing.T) {
	jobs := newJobService(t)
	var calls atomic.Int32
	r, err := NewRunner(RunnerOptions{
		Jobs: jobs,
		Handlers: Handlers{model.JobTypeNotification: func(ctx context.Context, job *model.Job) (json.RawMessage, error) {
			if calls.Add(1) == 1 {
				return nil, apperrors.ValidationField("statement", "statement must be 50-2000 characters")
			}
			return delivered(ctx, job)
		}},
		PollWait: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	startRunner(t, r)

	job := enqueueNotification(t, jobs, nil)
	done := waitForStatus(t, jobs, job.ID, model.JobStatusSucceeded)
	assert.Equal(t, 1, done.RetryCount)
}

func TestRunner_RejectedResultFailsJob(t *testing.T) {
	jobs := newJobService(t)
	r, err := NewRunner(RunnerOptions{
		Jobs: jobs,
		Handlers: Handlers{model.JobTypeNotification: func(context.Context, *model.Job) (json.RawMessage, error) {
			return json.RawMessage(`{"sent":1}`), nil
		}},
		PollWait: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	startRunner(t, r)

	job := enqueueNotification(t, jobs, testutil.IntPtr(0))
	failed := waitForStatus(t, jobs, job.ID, model.JobStatusFailed)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "invalid job result")
}

// vetoOnce rejects the first completion it sees.
type vetoOnce struct {
	vetoed atomic.Bool
}

func (v *vetoOnce) ValidateCompletion(context.Context, *model.Job, json.RawMessage) error {
	if v.vetoed.CompareAndSwap(false, true) {
		return errors.New("save result: connection reset")
	}
	return nil
}

func (*vetoOnce) JobSucceeded(context.Context, *model.Job) error                  { return nil }
func (*vetoOnce) JobFailed(context.Context, *model.Job) error                     { return nil }
func (*vetoOnce) JobCancelled(context.Context, *model.Job, model.JobStatus) error { return nil }
func (*vetoOnce) JobRequeued(context.Context, *model.Job) error                   { return nil }

func TestRunner_FailedCompletionIsRetried(t *testing.T) {
	jobs := newJobService(t)
	jobs.SetObserver(&vetoOnce{})
	var calls atomic.Int32
	r, err := NewRunner(RunnerOptions{
		Jobs: jobs,
		Handlers: Handlers{model.JobTypeNotification: func(ctx context.Context, job *model.Job) (json.RawMessage, error) {
			calls.Add(1)
			return delivered(ctx, job)
		}},
		PollWait: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	startRunner(t, r)

	job := enqueueNotification(t, jobs, nil)
	done := waitForStatus(t, jobs, job.ID, model.JobStatusSucceeded)
	assert.Equal(t, 1, done.RetryCount, "a job whose completion failed is retried, not left running")
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunner_EachJobRunsOnce(t *testing.T) {
	jobs := newJobService(t)
	var mu sync.Mutex
	seen := map[string]int{}
	r, err := NewRunner(RunnerOptions{
		Jobs: jobs,
		Handlers: Handlers{model.JobTypeNotification: func(ctx context.Context, job *model.Job) (json.RawMessage, error) {
			mu.Lock()
			seen[job.ID]++
			mu.Unlock()
			return delivered(ctx, job)
		}},
		Concurrency: 3,
		PollWait:    20 * time.Millisecond,
	})
	require.NoError(t, err)

	var ids []string
	for range 6 {
		ids = append(ids, enqueueNotification(t, jobs, nil).ID)
	}
	startRunner(t, r)

	for _, id := range ids {
		waitForStatus(t, jobs, id, model.JobStatusSucceeded)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, len(ids))
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s ran more than once", id)
	}
}
