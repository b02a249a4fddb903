package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// RoomRepo provides database operations for rooms.
type RoomRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewRoomRepo creates a new RoomRepo.
func NewRoomRepo(db *sql.DB, cfg RepoConfig) *RoomRepo {
	return &RoomRepo{DB: db, timeProvider: cfg.timeProvider(), logger: cfg.logger("room_repo")}
}

const roomColumns = `
  id, title, creator_id, participant_id, status, argument_a, argument_b,
  stalled, stalled_reason, stalled_job_id, stalled_at, completed_at, created_at, updated_at`

// Create inserts a room. ID and timestamps are filled in when empty.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	if room == nil {
		return nil, apperrors.Validation("room is required")
	}
	now := r.timeProvider.Now().UTC()
	in := room.Clone()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = model.RoomStatusWaitingParticipant
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = in.CreatedAt

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO rooms (id, title, creator_id, participant_id, status, argument_a, argument_b, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+roomColumns,
		in.ID, in.Title, in.CreatorID, in.ParticipantID, in.Status, in.ArgumentA, in.ArgumentB,
		in.CreatedAt, in.UpdatedAt,
	)
	out, err := scanRoom(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create room: %w", err))
	}
	return out, nil
}

// GetByID returns a room or a not-found error.
func (r *RoomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFoundf("room %s not found", id)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	out, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("room %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get room: %w", err))
	}
	return out, nil
}

// Update writes the mutable fields of room when its stored status still equals from.
func (r *RoomRepo) Update(ctx context.Context, room *model.Room, from model.RoomStatus) (bool, error) {
	if room == nil {
		return false, apperrors.Validation("room is required")
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE rooms
		SET participant_id = $3,
		    status = $4,
		    argument_a = COALESCE(argument_a, $5),
		    argument_b = COALESCE(argument_b, $6),
		    stalled = $7,
		    stalled_reason = $8,
		    stalled_job_id = $9,
		    stalled_at = $10,
		    completed_at = $11,
		    updated_at = $12
		WHERE id = $1 AND status = $2`,
		room.ID, from,
		room.ParticipantID, room.Status, room.ArgumentA, room.ArgumentB,
		room.Stalled, room.StalledReason, room.StalledJobID, utcPtr(room.StalledAt), utcPtr(room.CompletedAt),
		room.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("update room: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListStalled returns rooms whose pipeline is flagged stalled, oldest first.
func (r *RoomRepo) ListStalled(ctx context.Context, limit int) ([]*model.Room, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE stalled
		ORDER BY stalled_at ASC NULLS LAST, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list stalled rooms: %w", err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "close rows failed", "error", cerr)
		}
	}()

	var out []*model.Room
	for rows.Next() {
		room, scanErr := scanRoom(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan room: %w", scanErr)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func scanRoom(scanner rowScanner) (*model.Room, error) {
	var (
		room                                               model.Room
		participant, argA, argB, stalledReason, stalledJob sql.NullString
		stalledAt, completedAt                             sql.NullTime
	)
	if err := scanner.Scan(
		&room.ID, &room.Title, &room.CreatorID, &participant, &room.Status, &argA, &argB,
		&room.Stalled, &stalledReason, &stalledJob, &stalledAt, &completedAt, &room.CreatedAt, &room.UpdatedAt,
	); err != nil {
		return nil, err
	}
	room.ParticipantID = cloneNullableString(participant)
	room.ArgumentA = cloneNullableString(argA)
	room.ArgumentB = cloneNullableString(argB)
	room.StalledReason = cloneNullableString(stalledReason)
	room.StalledJobID = cloneNullableString(stalledJob)
	room.StalledAt = cloneNullableTime(stalledAt)
	room.CompletedAt = cloneNullableTime(completedAt)
	room.CreatedAt = room.CreatedAt.UTC()
	room.UpdatedAt = room.UpdatedAt.UTC()
	return &room, nil
}
