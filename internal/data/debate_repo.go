package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// DebateRepo provides database operations for debate rounds and turns.
type DebateRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewDebateRepo creates a new DebateRepo.
func NewDebateRepo(db *sql.DB, cfg RepoConfig) *DebateRepo {
	return &DebateRepo{DB: db, timeProvider: cfg.timeProvider(), logger: cfg.logger("debate_repo")}
}

const roundColumns = `
  id, room_id, round_number, round_type, status, quality, overtime, started_at, completed_at, created_at`

const turnColumns = `
  id, round_id, turn_number, side, lawyer_type, content, status, created_at`

// CreateRound inserts a round; debate_rounds_room_num_key rejects a duplicate round number.
func (r *DebateRepo) CreateRound(ctx context.Context, round *model.Round) (*model.Round, error) {
	if round == nil {
		return nil, apperrors.Validation("round is required")
	}
	in := *round
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.timeProvider.Now().UTC()
	}
	quality, err := encodeQuality(in.Quality)
	if err != nil {
		return nil, err
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO debate_rounds (id, room_id, round_number, round_type, status, quality, overtime, started_at, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+roundColumns,
		in.ID, in.RoomID, in.RoundNumber, in.RoundType, in.Status, nullableJSON(quality), in.Overtime,
		utcPtr(in.StartedAt), utcPtr(in.CompletedAt), in.CreatedAt.UTC(),
	)
	out, err := scanRound(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("create round: %w", err))
	}
	return out, nil
}

// GetRound returns a round with its turns.
func (r *DebateRepo) GetRound(ctx context.Context, id string) (*model.Round, error) {
	if uuid.Validate(id) != nil {
		return nil, apperrors.NotFoundf("round %s not found", id)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM debate_rounds WHERE id = $1`, id)
	round, err := scanRound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("round %s not found", id)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get round: %w", err))
	}
	if round.Turns, err = r.ListTurns(ctx, round.ID); err != nil {
		return nil, err
	}
	return round, nil
}

// ListRounds returns the room's rounds in round order, each with its turns.
func (r *DebateRepo) ListRounds(ctx context.Context, roomID string) ([]*model.Round, error) {
	if uuid.Validate(roomID) != nil {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+roundColumns+`
		FROM debate_rounds
		WHERE room_id = $1
		ORDER BY round_number ASC`, roomID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list rounds: %w", err))
	}
	var rounds []*model.Round
	for rows.Next() {
		round, scanErr := scanRound(rows)
		if scanErr != nil {
			r.closeRows(ctx, rows)
			return nil, fmt.Errorf("scan round: %w", scanErr)
		}
		rounds = append(rounds, round)
	}
	iterErr := rows.Err()
	r.closeRows(ctx, rows)
	if iterErr != nil {
		return nil, iterErr
	}

	for _, round := range rounds {
		if round.Turns, err = r.ListTurns(ctx, round.ID); err != nil {
			return nil, err
		}
	}
	return rounds, nil
}

// UpdateRound persists status, quality, overtime and timestamps when the stored status
// still equals from.
func (r *DebateRepo) UpdateRound(ctx context.Context, round *model.Round, from model.RoundStatus) (bool, error) {
	if round == nil {
		return false, apperrors.Validation("round is required")
	}
	quality, err := encodeQuality(round.Quality)
	if err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE debate_rounds
		SET status = $3,
		    quality = $4,
		    overtime = $5,
		    started_at = $6,
		    completed_at = $7
		WHERE id = $1 AND status = $2`,
		round.ID, from, round.Status, nullableJSON(quality), round.Overtime, utcPtr(round.StartedAt), utcPtr(round.CompletedAt),
	)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("update round: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// AppendTurn inserts a turn; debate_turns_round_num_key rejects a reused turn number.
func (r *DebateRepo) AppendTurn(ctx context.Context, t *model.Turn) (*model.Turn, error) {
	if t == nil {
		return nil, apperrors.Validation("turn is required")
	}
	in := *t
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.timeProvider.Now().UTC()
	}
	if in.Status == "" {
		in.Status = model.TurnStatusRecorded
	}
	content, err := json.Marshal(in.Content)
	if err != nil {
		return nil, fmt.Errorf("encode turn content: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO debate_turns (id, round_id, turn_number, side, lawyer_type, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+turnColumns,
		in.ID, in.RoundID, in.TurnNumber, in.Side, in.LawyerType, content, in.Status, in.CreatedAt.UTC(),
	)
	out, err := scanTurn(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("append turn: %w", err))
	}
	return out, nil
}

// ListTurns returns a round's turns in turn order.
func (r *DebateRepo) ListTurns(ctx context.Context, roundID string) ([]model.Turn, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+turnColumns+`
		FROM debate_turns
		WHERE round_id = $1
		ORDER BY turn_number ASC`, roundID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list turns: %w", err))
	}
	defer r.closeRows(ctx, rows)

	var turns []model.Turn
	for rows.Next() {
		t, scanErr := scanTurn(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan turn: %w", scanErr)
		}
		turns = append(turns, *t)
	}
	return turns, rows.Err()
}

func (r *DebateRepo) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil && r.logger != nil {
		r.logger.WarnContext(ctx, "close rows failed", "error", err)
	}
}

func encodeQuality(q *model.RoundQuality) ([]byte, error) {
	if q == nil {
		return nil, nil
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode round quality: %w", err)
	}
	return raw, nil
}

func scanRound(scanner rowScanner) (*model.Round, error) {
	var (
		round                  model.Round
		quality                []byte
		startedAt, completedAt sql.NullTime
	)
	if err := scanner.Scan(
		&round.ID, &round.RoomID, &round.RoundNumber, &round.RoundType, &round.Status,
		&quality, &round.Overtime, &startedAt, &completedAt, &round.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(quality) > 0 {
		var q model.RoundQuality
		if err := json.Unmarshal(quality, &q); err != nil {
			return nil, fmt.Errorf("decode round quality: %w", err)
		}
		round.Quality = &q
	}
	round.StartedAt = cloneNullableTime(startedAt)
	round.CompletedAt = cloneNullableTime(completedAt)
	round.CreatedAt = round.CreatedAt.UTC()
	return &round, nil
}

func scanTurn(scanner rowScanner) (*model.Turn, error) {
	var (
		t       model.Turn
		content []byte
	)
	if err := scanner.Scan(
		&t.ID, &t.RoundID, &t.TurnNumber, &t.Side, &t.LawyerType, &content, &t.Status, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &t.Content); err != nil {
		return nil, fmt.Errorf("decode turn content: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}
