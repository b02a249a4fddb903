package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	"github.com/private-judge/judge-api/internal/testutil"
)

func turn(roundID string, side model.Side, statementLen, points int) *model.RecordTurnRequest {
	keyPoints := make([]string, points)
	for i := range keyPoints {
		keyPoints[i] = "point"
	}
	return &model.RecordTurnRequest{
		RoundID: roundID,
		Side:    side,
		Content: model.TurnContent{
			Statement:        testutil.Text(statementLen),
			KeyPoints:        keyPoints,
			CounterArguments: []string{"the other side overlooks the cost"},
		},
	}
}

func TestDebateService_RoundQualityFavoursRicherTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.seedRoom(t, model.RoomStatusAIProcessing)

	round, err := h.debates.StartRound(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.RoundTypeFirst, round.RoundType)
	assert.Equal(t, model.RoundStatusInProgress, round.Status)

	first, err := h.debates.RecordTurn(ctx, turn(round.ID, model.SideA, 120, 3))
	require.NoError(t, err)
	second, err := h.debates.RecordTurn(ctx, turn(round.ID, model.SideB, 80, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, first.TurnNumber)
	assert.Equal(t, 2, second.TurnNumber)
	assert.Equal(t, model.LawyerTypeAdvocate, first.LawyerType)

	done, err := h.debates.CompleteRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusCompleted, done.Status)
	require.NotNil(t, done.Quality)
	assert.Greater(t, done.Quality.ScoreA, done.Quality.ScoreB)
	require.NotNil(t, done.Quality.Advantage)
	assert.Equal(t, model.SideA, *done.Quality.Advantage)
	assert.False(t, done.Overtime)

	_, err = h.debates.RecordTurn(ctx, turn(round.ID, model.SideA, 120, 3))
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err), "completed round takes no more turns")
}

func TestDebateService_CompleteNeedsBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.seedRoom(t, model.RoomStatusAIProcessing)

	round, err := h.debates.StartRound(ctx, room.ID, 1)
	require.NoError(t, err)
	_, err = h.debates.RecordTurn(ctx, turn(round.ID, model.SideA, 120, 3))
	require.NoError(t, err)

	_, err = h.debates.CompleteRound(ctx, round.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeIncompleteRound, apperrors.GetCode(err))

	stored, err := h.debates.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusInProgress, stored.Status)
	assert.Len(t, stored.Turns, 1)
}

func TestDebateService_RoundOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	idle := h.seedRoom(t, model.RoomStatusArgumentsSubmission)
	_, err := h.debates.StartRound(ctx, idle.ID, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidTransition(err))

	room := h.seedRoom(t, model.RoomStatusAIProcessing)
	_, err = h.debates.StartRound(ctx, room.ID, 2)
	require.Error(t, err, "round 2 needs round 1 completed")

	_, err = h.debates.StartRound(ctx, room.ID, 4)
	require.Error(t, err)

	round, err := h.debates.StartRound(ctx, room.ID, 1)
	require.NoError(t, err)
	_, err = h.debates.StartRound(ctx, room.ID, 1)
	require.Error(t, err, "a round starts once")
	_, err = h.debates.StartRound(ctx, room.ID, 2)
	require.Error(t, err, "round 1 still in progress")

	_, err = h.debates.RecordTurn(ctx, turn(round.ID, model.SideA, 60, 2))
	require.NoError(t, err)
	_, err = h.debates.RecordTurn(ctx, turn(round.ID, model.SideB, 60, 2))
	require.NoError(t, err)
	_, err = h.debates.CompleteRound(ctx, round.ID)
	require.NoError(t, err)

	second, err := h.debates.StartRound(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.RoundTypeSecond, second.RoundType)

	done, err := h.debates.Completed(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, done)

	rounds, err := h.debates.ListRounds(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].RoundNumber)
	assert.Equal(t, 2, rounds[1].RoundNumber)
}

func TestDebateService_OvertimeAndFailOpenRounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.seedRoom(t, model.RoomStatusAIProcessing)

	round, err := h.debates.StartRound(ctx, room.ID, 1)
	require.NoError(t, err)
	h.clock.AddTime(time.Hour)

	rounds, err := h.debates.ListRounds(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.True(t, rounds[0].Overtime)

	n, err := h.debates.FailOpenRounds(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := h.debates.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusFailed, stored.Status)

	n, err = h.debates.FailOpenRounds(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDebateService_RecordTurnValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.debates.RecordTurn(ctx, &model.RecordTurnRequest{RoundID: "r", Side: "C"})
	require.Error(t, err)
	assert.Equal(t, "side", apperrors.GetField(err))

	_, err = h.debates.RecordTurn(ctx, turn("r", model.SideA, 10, 3))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.debates.RecordTurn(ctx, turn("missing", model.SideA, 60, 3))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
