package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/data"
	"github.com/private-judge/judge-api/internal/data/memstore"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/observability/notify"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service/failurenotifier"
	"github.com/private-judge/judge-api/internal/testutil"
)

// harness wires every service over one in-memory store and a fixed clock.
type harness struct {
	store    *memstore.Store
	clock    *data.FixedTimeProvider
	metrics  *statsd.Recorder
	jobs     *JobService
	motions  *MotionService
	debates  *DebateService
	verdicts *VerdictService
	rooms    *RoomService

	mu       sync.Mutex
	failures []notify.JobFailurePayload
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   data.NewFixedTimeProvider(testutil.TestTime()),
		metrics: &statsd.Recorder{},
	}
	h.store = memstore.New(memstore.Options{Clock: h.clock})

	alerts := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
				h.mu.Lock()
				defer h.mu.Unlock()
				h.failures = append(h.failures, p)
				return nil
			}),
		}},
	})

	var err error
	h.jobs, err = NewJobService(JobServiceOptions{
		Repo:            h.store.Jobs(),
		Rooms:           h.store.Rooms(),
		Metrics:         h.metrics,
		FailureNotifier: alerts,
		PollInterval:    10 * time.Millisecond,
		Clock:           h.clock,
	})
	require.NoError(t, err)
	t.Cleanup(h.jobs.StopAllListeners)

	h.motions = MustNewMotionService(MotionServiceOptions{Repo: h.store.Motions(), Rooms: h.store.Rooms(), Clock: h.clock})
	h.debates = MustNewDebateService(DebateServiceOptions{Repo: h.store.Debates(), Rooms: h.store.Rooms(), Clock: h.clock})
	h.verdicts = MustNewVerdictService(VerdictServiceOptions{Repo: h.store.Verdicts(), Clock: h.clock})
	h.rooms = MustNewRoomService(RoomServiceOptions{
		Rooms:     h.store.Rooms(),
		Motions:   h.store.Motions(),
		Jobs:      h.jobs,
		Debates:   h.debates,
		Verdicts:  h.verdicts,
		MotionSvc: h.motions,
		Clock:     h.clock,
	})
	return h
}

func (h *harness) failureAlerts() []notify.JobFailurePayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]notify.JobFailurePayload(nil), h.failures...)
}

// negotiatedRoom returns a room whose motion has been agreed, awaiting arguments.
func (h *harness) negotiatedRoom(t *testing.T) *model.Room {
	t.Helper()
	ctx := context.Background()
	room, err := h.rooms.Create(ctx, &model.CreateRoomRequest{Title: "Remote work", CreatorID: testutil.CreatorID})
	require.NoError(t, err)
	_, err = h.rooms.Join(ctx, room.ID, testutil.ParticipantID)
	require.NoError(t, err)

	m, err := h.motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID:      room.ID,
		ProposerID:  testutil.CreatorID,
		Title:       testutil.MotionTitle,
		Description: testutil.MotionDescription,
	})
	require.NoError(t, err)
	_, err = h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.ParticipantID, Action: model.RespondAccept,
	})
	require.NoError(t, err)

	room, err = h.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, model.RoomStatusArgumentsSubmission, room.Status)
	return room
}

// debatingRoom returns a room in ai_processing and its queued debate job.
func (h *harness) debatingRoom(t *testing.T) (*model.Room, *model.Job) {
	t.Helper()
	ctx := context.Background()
	room := h.negotiatedRoom(t)
	_, err := h.rooms.SubmitArgument(ctx, room.ID, testutil.CreatorID, testutil.Argument(model.SideA))
	require.NoError(t, err)
	room, err = h.rooms.SubmitArgument(ctx, room.ID, testutil.ParticipantID, testutil.Argument(model.SideB))
	require.NoError(t, err)
	require.Equal(t, model.RoomStatusAIProcessing, room.Status)

	job := h.jobOfType(t, room.ID, model.JobTypeDebate)
	require.Equal(t, model.JobStatusQueued, job.Status)
	return room, job
}

// runRounds records every planned turn of the three rounds and completes them.
func (h *harness) runRounds(t *testing.T, roomID string) {
	t.Helper()
	ctx := context.Background()
	for n := 1; n <= model.TotalRounds; n++ {
		round, err := h.debates.StartRound(ctx, roomID, n)
		require.NoError(t, err)
		for _, side := range []model.Side{model.SideA, model.SideB} {
			_, err := h.debates.RecordTurn(ctx, &model.RecordTurnRequest{
				RoundID: round.ID, Side: side, Content: testutil.TurnContent(side),
			})
			require.NoError(t, err)
		}
		_, err = h.debates.CompleteRound(ctx, round.ID)
		require.NoError(t, err)
	}
}

// jobOfType returns the most recent job of type t in the room.
func (h *harness) jobOfType(t *testing.T, roomID string, jt model.JobType) *model.Job {
	t.Helper()
	jobs, err := h.jobs.ListByRoom(context.Background(), roomID)
	require.NoError(t, err)
	var found *model.Job
	for _, j := range jobs {
		if j.Type == jt {
			found = j
		}
	}
	require.NotNil(t, found, "no %s job in room %s", jt, roomID)
	return found
}

func (h *harness) begin(t *testing.T, jobID string) *model.Job {
	t.Helper()
	job, err := h.jobs.BeginExecution(context.Background(), jobID, "worker-1")
	require.NoError(t, err)
	return job
}

func judgeResult(t *testing.T, scoreA, scoreB int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(model.JudgeJobResult{Decision: *testutil.JudgeDecision("", scoreA, scoreB)})
	require.NoError(t, err)
	return raw
}

func juryResult(t *testing.T, sides ...model.Side) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(model.JuryJobResult{Votes: testutil.JuryVotes("", 8, sides...)})
	require.NoError(t, err)
	return raw
}
