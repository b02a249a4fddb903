package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	"github.com/private-judge/judge-api/internal/testutil"
)

// joinedRoom returns a room in agenda negotiation with both members present.
func (h *harness) joinedRoom(t *testing.T) *model.Room {
	t.Helper()
	ctx := context.Background()
	room, err := h.rooms.Create(ctx, &model.CreateRoomRequest{Title: "Remote work", CreatorID: testutil.CreatorID})
	require.NoError(t, err)
	room, err = h.rooms.Join(ctx, room.ID, testutil.ParticipantID)
	require.NoError(t, err)
	require.Equal(t, model.RoomStatusAgendaNegotiation, room.Status)
	return room
}

func (h *harness) propose(t *testing.T, roomID, userID string) *model.Motion {
	t.Helper()
	m, err := h.motions.Propose(context.Background(), &model.ProposeMotionRequest{
		RoomID:      roomID,
		ProposerID:  userID,
		Title:       testutil.Text(12),
		Description: testutil.Text(60),
	})
	require.NoError(t, err)
	return m
}

func TestMotionService_ModifyThenProposerCannotAccept(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.joinedRoom(t)
	m := h.propose(t, room.ID, testutil.CreatorID)
	assert.Equal(t, model.MotionProposed, m.Status)
	require.Len(t, m.NegotiationHistory, 1)

	title := testutil.Text(15)
	m, err := h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID:      m.ID,
		UserID:        testutil.ParticipantID,
		Action:        model.RespondModify,
		Modifications: &model.MotionChanges{Title: &title},
		Reason:        testutil.StringPtr("Narrow the scope to one year."),
	})
	require.NoError(t, err)
	assert.Equal(t, model.MotionUnderNegotiation, m.Status)
	assert.Len(t, m.NegotiationHistory, 2)
	assert.Equal(t, title, m.Title)
	assert.Equal(t, testutil.CreatorID, m.ProposerID, "proposer never changes")

	_, err = h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.CreatorID, Action: model.RespondAccept,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	stored, err := h.motions.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, stored.NegotiationHistory, 2, "a refused response appends nothing")
}

func TestMotionService_AcceptAdvancesRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.joinedRoom(t)
	m := h.propose(t, room.ID, testutil.CreatorID)

	m, err := h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.ParticipantID, Action: model.RespondAccept,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MotionAgreed, m.Status)
	require.NotNil(t, m.AgreedAt)

	room, err = h.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusArgumentsSubmission, room.Status)

	_, err = h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.ParticipantID, Action: model.RespondAccept,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err), "agreed motion is terminal")

	note := h.jobOfType(t, room.ID, model.JobTypeNotification)
	payload, err := model.DecodePayload(note.Type, note.Payload)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationMotionAgreed, payload.(*model.NotificationJobPayload).Event)
}

func TestMotionService_ProposeRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	waiting, err := h.rooms.Create(ctx, &model.CreateRoomRequest{Title: "Lonely room", CreatorID: testutil.CreatorID})
	require.NoError(t, err)
	_, err = h.motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID: waiting.ID, ProposerID: testutil.CreatorID, Title: testutil.MotionTitle, Description: testutil.MotionDescription,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))

	room := h.joinedRoom(t)
	_, err = h.motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID: room.ID, ProposerID: "stranger", Title: testutil.MotionTitle, Description: testutil.MotionDescription,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	_, err = h.motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID: room.ID, ProposerID: testutil.CreatorID, Title: "short", Description: testutil.MotionDescription,
	})
	require.Error(t, err)
	assert.Equal(t, "title", apperrors.GetField(err))

	h.propose(t, room.ID, testutil.CreatorID)
	_, err = h.motions.Propose(ctx, &model.ProposeMotionRequest{
		RoomID: room.ID, ProposerID: testutil.ParticipantID, Title: testutil.MotionTitle, Description: testutil.MotionDescription,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "room_id", apperrors.GetField(err))
}

func TestMotionService_RejectDeleteRepropose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.joinedRoom(t)
	m := h.propose(t, room.ID, testutil.CreatorID)

	err := h.motions.Delete(ctx, m.ID, testutil.CreatorID)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err), "only rejected motions can be deleted")

	m, err = h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID,
		UserID:   testutil.ParticipantID,
		Action:   model.RespondReject,
		Reason:   testutil.StringPtr("The topic is too broad to debate."),
	})
	require.NoError(t, err)
	assert.Equal(t, model.MotionRejected, m.Status)

	err = h.motions.Delete(ctx, m.ID, "stranger")
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	require.NoError(t, h.motions.Delete(ctx, m.ID, testutil.ParticipantID))
	_, err = h.motions.GetByRoom(ctx, room.ID)
	assert.True(t, apperrors.IsNotFound(err))

	next := h.propose(t, room.ID, testutil.ParticipantID)
	assert.NotEqual(t, m.ID, next.ID)
	assert.Equal(t, testutil.ParticipantID, next.ProposerID)
}

func TestMotionService_StaleReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.joinedRoom(t)
	m := h.propose(t, room.ID, testutil.CreatorID)

	stale, err := h.motions.ListStale(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	h.clock.AddTime(73 * time.Hour)
	stale, err = h.motions.ListStale(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, m.ID, stale[0].ID)

	ok, err := h.motions.MarkReminded(ctx, stale[0])
	require.NoError(t, err)
	assert.True(t, ok)

	stale, err = h.motions.ListStale(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "a reminded motion is not listed again")

	view, err := h.rooms.Status(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Motion)
	assert.True(t, view.Motion.IsStale)
	assert.Equal(t, testutil.ParticipantID, view.Motion.AwaitingResponseFrom)
}

func TestMotionService_RespondRequiresNegotiatingRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.joinedRoom(t)
	m := h.propose(t, room.ID, testutil.CreatorID)

	_, err := h.rooms.Cancel(ctx, room.ID, testutil.CreatorID)
	require.NoError(t, err)

	_, err = h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.ParticipantID, Action: model.RespondAccept,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))

	stored, err := h.motions.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MotionProposed, stored.Status)
	assert.Nil(t, stored.AgreedAt)
	assert.Len(t, stored.NegotiationHistory, 1)
}

type motionObserverFunc func(ctx context.Context, m *model.Motion) error

func (f motionObserverFunc) MotionAgreed(ctx context.Context, m *model.Motion) error { return f(ctx, m) }

func TestMotionService_AgreementRevertedWhenRoomCannotAdvance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.joinedRoom(t)
	m := h.propose(t, room.ID, testutil.CreatorID)

	h.motions.SetObserver(motionObserverFunc(func(context.Context, *model.Motion) error {
		return errors.New("room changed concurrently")
	}))
	_, err := h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.ParticipantID, Action: model.RespondAccept,
	})
	require.ErrorContains(t, err, "advance room after agreement")

	stored, err := h.motions.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MotionProposed, stored.Status)
	assert.Nil(t, stored.AgreedAt)
	assert.Len(t, stored.NegotiationHistory, 1)

	// Once the room can advance, the same response goes through.
	h.motions.SetObserver(h.rooms)
	m, err = h.motions.Respond(ctx, &model.RespondMotionRequest{
		MotionID: m.ID, UserID: testutil.ParticipantID, Action: model.RespondAccept,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MotionAgreed, m.Status)

	room, err = h.rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomStatusArgumentsSubmission, room.Status)
}
