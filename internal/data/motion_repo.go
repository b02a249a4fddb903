package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// MotionRepo provides database operations for motions.
type MotionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewMotionRepo creates a new MotionRepo.
func NewMotionRepo(db *sql.DB, cfg RepoConfig) *MotionRepo {
	return &MotionRepo{DB: db, timeProvider: cfg.timeProvider(), logger: cfg.logger("motion_repo")}
}

const motionColumns = `
  id, room_id, title, description, proposer_id, status, negotiation_history,
  agreed_at, stale_notified_at, deleted_at, created_at, updated_at`

// Create inserts a motion. The partial unique index on room_id rejects a second live motion.
func (r *MotionRepo) Create(ctx context.Context, m *model.Motion) (*model.Motion, error) {
	if m == nil {
		return nil, apperrors.Validation("motion is required")
	}
	in := m.Clone()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.timeProvider.Now().UTC()
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = in.CreatedAt
	}
	history, err := encodeHistory(in.NegotiationHistory)
	if err != nil {
		return nil, err
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO motions (id, room_id, title, description, proposer_id, status, negotiation_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+motionColumns,
		in.ID, in.RoomID, in.Title, in.Description, in.ProposerID, in.Status, history,
		in.CreatedAt.UTC(), in.UpdatedAt.UTC(),
	)
	out, err := scanMotion(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create motion: %w", err))
	}
	return out, nil
}

// GetByID returns a motion, including soft-deleted ones.
func (r *MotionRepo) GetByID(ctx context.Context, id string) (*model.Motion, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFoundf("motion %s not found", id)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+motionColumns+` FROM motions WHERE id = $1`, id)
	out, err := scanMotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("motion %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get motion: %w", err))
	}
	return out, nil
}

// GetActiveByRoom returns the room's non-deleted motion.
func (r *MotionRepo) GetActiveByRoom(ctx context.Context, roomID string) (*model.Motion, error) {
	if uuid.Validate(roomID) != nil {
		return nil, apperrors.NotFoundf("room %s has no motion", roomID)
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+motionColumns+`
		FROM motions
		WHERE room_id = $1 AND deleted_at IS NULL`, roomID)
	out, err := scanMotion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("room %s has no motion", roomID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get room motion: %w", err))
	}
	return out, nil
}

// Update persists m when the stored negotiation history still has historyLen entries, so
// two concurrent responses cannot both append.
func (r *MotionRepo) Update(ctx context.Context, m *model.Motion, historyLen int) (bool, error) {
	if m == nil {
		return false, apperrors.Validation("motion is required")
	}
	history, err := encodeHistory(m.NegotiationHistory)
	if err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE motions
		SET title = $3,
		    description = $4,
		    status = $5,
		    negotiation_history = $6,
		    agreed_at = $7,
		    stale_notified_at = $8,
		    deleted_at = $9,
		    updated_at = $10
		WHERE id = $1 AND jsonb_array_length(negotiation_history) = $2`,
		m.ID, historyLen,
		m.Title, m.Description, m.Status, history,
		utcPtr(m.AgreedAt), utcPtr(m.StaleNotifiedAt), utcPtr(m.DeletedAt), m.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("update motion: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ListStale returns open motions idle since params.IdleSince that were never reminded about.
func (r *MotionRepo) ListStale(ctx context.Context, params core.ListStaleMotionsParams) ([]*model.Motion, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+motionColumns+`
		FROM motions
		WHERE deleted_at IS NULL
		  AND status IN ('proposed', 'under_negotiation')
		  AND stale_notified_at IS NULL
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, params.IdleSince.UTC(), limit)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list stale motions: %w", err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "close rows failed", "error", cerr)
		}
	}()

	var out []*model.Motion
	for rows.Next() {
		m, scanErr := scanMotion(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan motion: %w", scanErr)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func encodeHistory(h []model.NegotiationEntry) ([]byte, error) {
	if h == nil {
		h = []model.NegotiationEntry{}
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode negotiation history: %w", err)
	}
	return raw, nil
}

func scanMotion(scanner rowScanner) (*model.Motion, error) {
	var (
		m                               model.Motion
		history                         []byte
		agreedAt, notifiedAt, deletedAt sql.NullTime
	)
	if err := scanner.Scan(
		&m.ID, &m.RoomID, &m.Title, &m.Description, &m.ProposerID, &m.Status, &history,
		&agreedAt, &notifiedAt, &deletedAt, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &m.NegotiationHistory); err != nil {
			return nil, fmt.Errorf("decode negotiation history: %w", err)
		}
	}
	m.AgreedAt = cloneNullableTime(agreedAt)
	m.StaleNotifiedAt = cloneNullableTime(notifiedAt)
	m.DeletedAt = cloneNullableTime(deletedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}
