package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	"github.com/private-judge/judge-api/internal/testutil"
)

func newTestReaper(t *testing.T, h *harness) *ReaperService {
	t.Helper()
	r, err := NewReaperService(ReaperServiceOptions{
		Jobs:    h.jobs,
		Motions: h.motions,
		Rooms:   h.store.Rooms(),
		Config: config.ReaperConfig{
			Interval:         10 * time.Millisecond,
			JobRetention:     24 * time.Hour,
			MotionStaleAfter: 72 * time.Hour,
			BatchSize:        1,
		},
		Metrics: h.metrics,
	})
	require.NoError(t, err)
	return r
}

func TestNewReaperService_RequiresDependencies(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	require.Error(t, err)
}

func TestReaperService_RunOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reaper := newTestReaper(t, h)

	var done []string
	for range 3 {
		job, err := h.jobs.Enqueue(ctx, notification(""), EnqueueOptions{})
		require.NoError(t, err)
		h.begin(t, job.ID)
		_, err = h.jobs.CompleteExecution(ctx, job.ID, nil)
		require.NoError(t, err)
		done = append(done, job.ID)
	}
	failed, err := h.jobs.Enqueue(ctx, notification(""), EnqueueOptions{MaxRetries: testutil.IntPtr(0)})
	require.NoError(t, err)
	h.begin(t, failed.ID)
	_, err = h.jobs.FailExecution(ctx, failed.ID, FailParams{Message: "bad address"})
	require.NoError(t, err)

	room := h.joinedRoom(t)
	h.propose(t, room.ID, testutil.CreatorID)

	h.clock.AddTime(80 * time.Hour)
	require.NoError(t, reaper.RunOnce(ctx))

	for _, id := range done {
		_, err := h.jobs.Get(ctx, id)
		assert.True(t, apperrors.IsNotFound(err), "job %s should be reaped", id)
	}
	_, err = h.jobs.Get(ctx, failed.ID)
	require.NoError(t, err, "failed jobs are kept for requeue")

	assert.Equal(t, []model.NotificationEvent{model.NotificationMotionStale}, h.notificationEvents(t, room.ID))

	// The reminder goes out once per idle period.
	require.NoError(t, reaper.RunOnce(ctx))
	assert.Len(t, h.notificationEvents(t, room.ID), 1)

	runs := h.metrics.Named("reaper.cleanup")
	require.Len(t, runs, 2)
	assert.Equal(t, "success", runs[0].Tags["result"])

	var processed float64
	for _, m := range h.metrics.Named("reaper.items_processed") {
		processed += m.Value
	}
	assert.Equal(t, float64(4), processed)
}

func TestReaperService_SkipsTerminalRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	reaper := newTestReaper(t, h)

	room := h.joinedRoom(t)
	h.propose(t, room.ID, testutil.CreatorID)
	_, err := h.rooms.Cancel(ctx, room.ID, testutil.CreatorID)
	require.NoError(t, err)

	h.clock.AddTime(80 * time.Hour)
	require.NoError(t, reaper.RunOnce(ctx))
	assert.NotContains(t, h.notificationEvents(t, room.ID), model.NotificationMotionStale)
}

func TestReaperService_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	reaper := newTestReaper(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- reaper.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.NotEmpty(t, h.metrics.Named("reaper.cleanup"))
}
