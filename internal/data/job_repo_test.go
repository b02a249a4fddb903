package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/job"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	"github.com/private-judge/judge-api/internal/testutil"
)

func TestJobRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		room := seedRoom(t, db)
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()

		tests := []struct {
			name    string
			req     *model.CreateJobRequest
			wantErr string
		}{
			{
				name: "judge job",
				req:  jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}),
			},
			{
				name: "invalid job type",
				req: &model.CreateJobRequest{
					Type:    "invalid",
					Payload: json.RawMessage(`{}`),
				},
				wantErr: "invalid job type",
			},
			{
				name:    "empty payload",
				req:     &model.CreateJobRequest{Type: model.JobTypeJudge},
				wantErr: "payload is required",
			},
			{
				name: "max retries above cap",
				req: &model.CreateJobRequest{
					Type:       model.JobTypeJudge,
					Payload:    rawJSON(model.JudgeJobPayload{RoomID: room.ID}),
					MaxRetries: testutil.IntPtr(11),
				},
				wantErr: "max retries must be between 0 and 10",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				created, err := repo.Create(ctx, tt.req)
				if tt.wantErr != "" {
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.wantErr)
					assert.Nil(t, created)
					return
				}
				require.NoError(t, err)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, model.JobStatusQueued, created.Status)
				assert.Equal(t, model.JobTypeJudge.Priority(), created.Priority)
				assert.Equal(t, model.DefaultMaxRetries, created.MaxRetries)
				assert.Equal(t, room.ID, created.RoomIDValue())
				assert.Zero(t, created.RetryCount)
				assert.Nil(t, created.StartedAt)
			})
		}
	})
}

func TestJobRepo_CreateBatchIsAtomic(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		room := seedRoom(t, db)
		repo := NewJobRepo(db, RepoConfig{})
		ctx := context.Background()

		orphan := uuid.NewString()
		_, err := repo.CreateBatch(ctx, []*model.CreateJobRequest{
			jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}),
			jobRequest(t, &model.JuryJobPayload{RoomID: orphan, JurorCount: 7}),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsForeignKey(err))

		jobs, err := repo.ListByRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Empty(t, jobs)

		created, err := repo.CreateBatch(ctx, []*model.CreateJobRequest{
			jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}),
			jobRequest(t, &model.JuryJobPayload{RoomID: room.ID, JurorCount: 7}),
		})
		require.NoError(t, err)
		assert.Len(t, created, 2)
	})
}

func TestJobRepo_ListRunnableOrdering(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		repo := NewJobRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
		room := seedRoom(t, db)
		ctx := context.Background()

		debate, err := repo.Create(ctx, jobRequest(t, &model.DebateJobPayload{
			RoomID: room.ID, MotionTitle: "t", MotionDescription: "d", ArgumentA: "a", ArgumentB: "b",
		}))
		require.NoError(t, err)
		judge, err := repo.Create(ctx, jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
		require.NoError(t, err)

		future := jobRequest(t, &model.JuryJobPayload{RoomID: room.ID, JurorCount: 7})
		future.ScheduledAt = testutil.TimePtr(now.Add(time.Hour))
		_, err = repo.Create(ctx, future)
		require.NoError(t, err)

		runnable, err := repo.ListRunnable(ctx, core.ListRunnableParams{Limit: 10, Now: now})
		require.NoError(t, err)
		require.Len(t, runnable, 2)
		assert.Equal(t, judge.ID, runnable[0].ID)
		assert.Equal(t, debate.ID, runnable[1].ID)

		onlyDebate, err := repo.ListRunnable(ctx, core.ListRunnableParams{
			Types: []model.JobType{model.JobTypeDebate}, Limit: 10, Now: now,
		})
		require.NoError(t, err)
		require.Len(t, onlyDebate, 1)
		assert.Equal(t, debate.ID, onlyDebate[0].ID)
	})
}

func TestJobRepo_BeginExecutionSingleWinner(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		room := seedRoom(t, db)
		ctx := context.Background()

		created, err := repo.Create(ctx, jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
		require.NoError(t, err)

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
			taken   int
		)
		for i := range workers {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, beginErr := repo.BeginExecution(ctx, core.BeginExecutionParams{
					JobID: created.ID, WorkerID: "worker-" + string(rune('a'+n)), Now: time.Now(),
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case beginErr == nil:
					winners++
				case apperrors.IsJobAlreadyTaken(beginErr):
					taken++
				default:
					t.Errorf("unexpected error: %v", beginErr)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
		assert.Equal(t, workers-1, taken)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, got.Status)
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.WorkerID)
	})
}

func TestJobRepo_BeginExecutionErrors(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		repo := NewJobRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
		room := seedRoom(t, db)
		ctx := context.Background()

		_, err := repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: uuid.NewString(), Now: now})
		assert.True(t, apperrors.IsNotFound(err))

		_, err = repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: "not-a-uuid", Now: now})
		assert.True(t, apperrors.IsNotFound(err))

		req := jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID})
		req.ScheduledAt = testutil.TimePtr(now.Add(time.Minute))
		later, err := repo.Create(ctx, req)
		require.NoError(t, err)

		_, err = repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: later.ID, Now: now})
		assert.True(t, apperrors.IsConflict(err))

		started, err := repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: later.ID, Now: now.Add(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, started.Status)
	})
}

func TestJobRepo_TransitionRetryCycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		repo := NewJobRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
		room := seedRoom(t, db)
		ctx := context.Background()
		policy := job.BackoffPolicy{Base: time.Second}

		created, err := repo.Create(ctx, jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
		require.NoError(t, err)

		running, err := repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: created.ID, WorkerID: "w1", Now: now})
		require.NoError(t, err)

		require.NoError(t, job.Fail(running, "upstream timeout", now))
		_, err = job.Retry(running, policy, now)
		require.NoError(t, err)

		ok, err := repo.Transition(ctx, running, model.JobStatusRunning)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Transition(ctx, running, model.JobStatusRunning)
		require.NoError(t, err)
		assert.False(t, ok, "stale status must not apply")

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRetrying, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.ErrorMessage)
		assert.True(t, got.ScheduledAt.Equal(now.Add(time.Second)))
	})
}

func TestJobRepo_TransitionPersistsResultAndProgress(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		repo := NewJobRepo(db, RepoConfig{TimeProvider: NewFixedTimeProvider(now)})
		room := seedRoom(t, db)
		ctx := context.Background()

		created, err := repo.Create(ctx, jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
		require.NoError(t, err)
		running, err := repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: created.ID, Now: now})
		require.NoError(t, err)

		require.NoError(t, job.UpdateProgress(running, 1, 2, now))
		ok, err := repo.Transition(ctx, running, model.JobStatusRunning)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Progress)
		assert.Equal(t, 1, got.Progress.Remaining)

		require.NoError(t, job.Succeed(got, json.RawMessage(`{"ok":true}`), now))
		ok, err = repo.Transition(ctx, got, model.JobStatusRunning)
		require.NoError(t, err)
		require.True(t, ok)

		done, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusSucceeded, done.Status)
		assert.JSONEq(t, `{"ok":true}`, string(done.Result))
		assert.NotNil(t, done.CompletedAt)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Succeeded)
	})
}

func TestJobRepo_WaitForNotification(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})
		room := seedRoom(t, db)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- repo.WaitForNotification(ctx, model.JobTypeJudge) }()

		// Give LISTEN a moment to register before the insert.
		time.Sleep(200 * time.Millisecond)
		_, err := repo.Create(context.Background(), jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
		require.NoError(t, err)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("notification not received")
		}
	})
}
