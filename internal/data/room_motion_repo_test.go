package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/domain/motion"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	"github.com/private-judge/judge-api/internal/testutil"
)

const (
	motionTitle = "Pineapple belongs on pizza"
	motionDesc  = "Whether adding pineapple to pizza improves the dish overall, judged on taste and tradition."
)

func TestRoomRepo_UpdateIsConditional(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewRoomRepo(db, RepoConfig{})
		ctx := context.Background()
		room := seedRoom(t, db)
		assert.Equal(t, model.RoomStatusWaitingParticipant, room.Status)

		joined := room.Clone()
		joined.ParticipantID = stringPtr("user-b")
		joined.Status = model.RoomStatusAgendaNegotiation
		joined.UpdatedAt = time.Now()

		ok, err := repo.Update(ctx, joined, model.RoomStatusWaitingParticipant)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Update(ctx, joined, model.RoomStatusWaitingParticipant)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-b", *got.ParticipantID)
		assert.Equal(t, model.RoomStatusAgendaNegotiation, got.Status)

		_, err = repo.GetByID(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestRoomRepo_ListStalled(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewRoomRepo(db, RepoConfig{})
		ctx := context.Background()
		room := seedRoom(t, db)
		_ = seedRoom(t, db)

		now := time.Now().UTC()
		stalled := room.Clone()
		stalled.Stalled = true
		stalled.StalledReason = stringPtr("retries exhausted")
		stalled.StalledAt = &now
		stalled.UpdatedAt = now
		ok, err := repo.Update(ctx, stalled, room.Status)
		require.NoError(t, err)
		require.True(t, ok)

		rooms, err := repo.ListStalled(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, room.ID, rooms[0].ID)
		assert.Equal(t, "retries exhausted", *rooms[0].StalledReason)
	})
}

func TestMotionRepo_SingleLiveMotionPerRoom(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewMotionRepo(db, RepoConfig{})
		ctx := context.Background()
		room := seedRoom(t, db)
		now := time.Now().UTC()

		m, err := motion.Propose(&model.ProposeMotionRequest{
			RoomID: room.ID, ProposerID: "user-a", Title: motionTitle, Description: motionDesc,
		}, now)
		require.NoError(t, err)

		created, err := repo.Create(ctx, m)
		require.NoError(t, err)
		require.Len(t, created.NegotiationHistory, 1)
		assert.Equal(t, model.MotionActionProposed, created.NegotiationHistory[0].Action)

		_, err = repo.Create(ctx, m.Clone())
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		active, err := repo.GetActiveByRoom(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, active.ID)
	})
}

func TestMotionRepo_UpdateChecksHistoryLength(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewMotionRepo(db, RepoConfig{})
		ctx := context.Background()
		room := seedRoom(t, db)
		now := time.Now().UTC()

		m, err := motion.Propose(&model.ProposeMotionRequest{
			RoomID: room.ID, ProposerID: "user-a", Title: motionTitle, Description: motionDesc,
		}, now)
		require.NoError(t, err)
		created, err := repo.Create(ctx, m)
		require.NoError(t, err)

		reject := created.Clone()
		require.NoError(t, motion.Respond(reject, &model.RespondMotionRequest{
			MotionID: created.ID, UserID: "user-b", Action: model.RespondReject,
			Reason: stringPtr("The motion is too vague to argue."),
		}, now.Add(time.Minute)))

		ok, err := repo.Update(ctx, reject, len(created.NegotiationHistory))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Update(ctx, reject, len(created.NegotiationHistory))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.MotionRejected, got.Status)
		assert.Len(t, got.NegotiationHistory, 2)
	})
}

func TestMotionRepo_ListStale(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewMotionRepo(db, RepoConfig{})
		ctx := context.Background()
		room := seedRoom(t, db)
		old := time.Now().UTC().Add(-100 * time.Hour)

		m, err := motion.Propose(&model.ProposeMotionRequest{
			RoomID: room.ID, ProposerID: "user-a", Title: motionTitle, Description: motionDesc,
		}, old)
		require.NoError(t, err)
		_, err = repo.Create(ctx, m)
		require.NoError(t, err)

		stale, err := repo.ListStale(ctx, core.ListStaleMotionsParams{IdleSince: time.Now().Add(-motion.StaleAfter)})
		require.NoError(t, err)
		require.Len(t, stale, 1)

		fresh, err := repo.ListStale(ctx, core.ListStaleMotionsParams{IdleSince: old.Add(-time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, fresh)
	})
}
