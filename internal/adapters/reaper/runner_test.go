package reaper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/data"
	"github.com/private-judge/judge-api/internal/data/memstore"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service"
	"github.com/private-judge/judge-api/internal/testutil"
)

type fixture struct {
	clock   *data.FixedTimeProvider
	store   *memstore.Store
	jobs    *service.JobService
	motions *service.MotionService
	rooms   *service.RoomService
	metrics *statsd.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: data.NewFixedTimeProvider(testutil.TestTime()), metrics: &statsd.Recorder{}}
	f.store = memstore.New(memstore.Options{Clock: f.clock})

	var err error
	f.jobs, err = service.NewJobService(service.JobServiceOptions{
		Repo:         f.store.Jobs(),
		Rooms:        f.store.Rooms(),
		PollInterval: 5 * time.Millisecond,
		Clock:        f.clock,
	})
	require.NoError(t, err)
	t.Cleanup(f.jobs.StopAllListeners)

	f.motions = service.MustNewMotionService(service.MotionServiceOptions{
		Repo: f.store.Motions(), Rooms: f.store.Rooms(), Clock: f.clock,
	})
	debates := service.MustNewDebateService(service.DebateServiceOptions{
		Repo: f.store.Debates(), Rooms: f.store.Rooms(), Clock: f.clock,
	})
	f.rooms = service.MustNewRoomService(service.RoomServiceOptions{
		Rooms:     f.store.Rooms(),
		Motions:   f.store.Motions(),
		Jobs:      f.jobs,
		Debates:   debates,
		Verdicts:  service.MustNewVerdictService(service.VerdictServiceOptions{Repo: f.store.Verdicts(), Clock: f.clock}),
		MotionSvc: f.motions,
		Clock:     f.clock,
	})
	return f
}

func (f *fixture) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Jobs:    f.jobs,
		Motions: f.motions,
		Rooms:   f.store.Rooms(),
		Config: config.ReaperConfig{
			Interval:         time.Hour,
			JobRetention:     24 * time.Hour,
			MotionStaleAfter: 72 * time.Hour,
			BatchSize:        10,
		},
		Metrics: f.metrics,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) staleReminders(t *testing.T, roomID string) int {
	t.Helper()
	jobs, err := f.jobs.ListByRoom(context.Background(), roomID)
	require.NoError(t, err)
	n := 0
	for _, j := range jobs {
		if j.Type != model.JobTypeNotification {
			continue
		}
		var p model.NotificationJobPayload
		require.NoError(t, json.Unmarshal(j.Payload, &p))
		if p.Event == model.NotificationMotionStale {
			n++
		}
	}
	return n
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = NewRunner(RunnerOptions{Jobs: f.jobs, Motions: f.motions})
	require.Error(t, err)
}

func TestRunner_RunOnceRemindsStaleMotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.runner(t)

	room, err := f.rooms.Create(ctx, &model.CreateRoomRequest{Title: "Remote work", CreatorID: testutil.CreatorID})
	require.NoError(t, err)
	_, err = f.rooms.Join(ctx, room.ID, testutil.ParticipantID)
	require.NoError(t, err)
	_, err = f.motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID:      room.ID,
		ProposerID:  testutil.CreatorID,
		Title:       testutil.MotionTitle,
		Description: testutil.MotionDescription,
	})
	require.NoError(t, err)

	require.NoError(t, r.RunOnce(ctx))
	assert.Zero(t, f.staleReminders(t, room.ID), "fresh motion is left alone")

	f.clock.AddTime(73 * time.Hour)
	require.NoError(t, r.RunOnce(ctx))
	assert.Equal(t, 1, f.staleReminders(t, room.ID))

	require.NoError(t, r.RunOnce(ctx))
	assert.Equal(t, 1, f.staleReminders(t, room.ID), "one reminder per idle period")

	assert.NotEmpty(t, f.metrics.Named("reaper.cleanup"))
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
