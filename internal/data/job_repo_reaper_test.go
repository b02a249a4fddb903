package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/job"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/testutil"
)

func TestJobRepo_DeleteTerminalBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		clock := NewFixedTimeProvider(now)
		repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})
		room := seedRoom(t, db)
		ctx := context.Background()

		finish := func(at time.Time) *model.Job {
			created, err := repo.Create(ctx, jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
			require.NoError(t, err)
			running, err := repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: created.ID, Now: at})
			require.NoError(t, err)
			require.NoError(t, job.Succeed(running, []byte(`{}`), at))
			ok, err := repo.Transition(ctx, running, model.JobStatusRunning)
			require.NoError(t, err)
			require.True(t, ok)
			return running
		}

		old := finish(now.Add(-48 * time.Hour))
		recent := finish(now.Add(-time.Hour))
		queued, err := repo.Create(ctx, jobRequest(t, &model.JudgeJobPayload{RoomID: room.ID}))
		require.NoError(t, err)

		n, err := repo.DeleteTerminalBefore(ctx, core.DeleteJobsParams{Before: now.Add(-24 * time.Hour), BatchSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.GetByID(ctx, old.ID)
		assert.Error(t, err)
		_, err = repo.GetByID(ctx, recent.ID)
		assert.NoError(t, err)
		_, err = repo.GetByID(ctx, queued.ID)
		assert.NoError(t, err)
	})
}

func TestJobRepo_DeleteTerminalBeforeRejectsLiveStatuses(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})
	_, err := repo.DeleteTerminalBefore(context.Background(), core.DeleteJobsParams{
		Statuses: []model.JobStatus{model.JobStatusQueued},
	})
	assert.ErrorContains(t, err, "non-terminal")
}
