package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/private-judge/judge-api/internal/data/pgxutil"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// VerdictRepo provides database operations for judge decisions, jury ballots and verdicts.
type VerdictRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewVerdictRepo creates a new VerdictRepo.
func NewVerdictRepo(db *sql.DB, cfg RepoConfig) *VerdictRepo {
	return &VerdictRepo{DB: db, timeProvider: cfg.timeProvider(), logger: cfg.logger("verdict_repo")}
}

const verdictColumns = `
  id, room_id, winner, reasoning, strengths_a, strengths_b, weaknesses_a, weaknesses_b,
  overall_quality, jury_summary, credibility_score, is_close, is_unanimous, generated_at`

// SaveJudgeDecision stores the room's judge decision, replacing a previous one written by an
// earlier attempt of the same job.
func (r *VerdictRepo) SaveJudgeDecision(ctx context.Context, d *model.JudgeDecision) (*model.JudgeDecision, error) {
	if d == nil {
		return nil, apperrors.Validation("judge decision is required")
	}
	in := *d
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.timeProvider.Now().UTC()
	}
	sideA, err := json.Marshal(in.SideA)
	if err != nil {
		return nil, fmt.Errorf("encode side a analysis: %w", err)
	}
	sideB, err := json.Marshal(in.SideB)
	if err != nil {
		return nil, fmt.Errorf("encode side b analysis: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO judge_decisions (id, room_id, side_a, side_b, reasoning, score_a, score_b, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT judge_decisions_room_id_key DO UPDATE
		SET side_a = EXCLUDED.side_a,
		    side_b = EXCLUDED.side_b,
		    reasoning = EXCLUDED.reasoning,
		    score_a = EXCLUDED.score_a,
		    score_b = EXCLUDED.score_b,
		    created_at = EXCLUDED.created_at
		RETURNING id, room_id, side_a, side_b, reasoning, score_a, score_b, created_at`,
		in.ID, in.RoomID, sideA, sideB, in.Reasoning, in.ScoreA, in.ScoreB, in.CreatedAt.UTC(),
	)
	out, err := scanJudgeDecision(row)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("save judge decision: %w", err))
	}
	return out, nil
}

// GetJudgeDecision returns the room's judge decision.
func (r *VerdictRepo) GetJudgeDecision(ctx context.Context, roomID string) (*model.JudgeDecision, error) {
	if uuid.Validate(roomID) != nil {
		return nil, apperrors.NotFoundf("room %s has no judge decision", roomID)
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, room_id, side_a, side_b, reasoning, score_a, score_b, created_at
		FROM judge_decisions
		WHERE room_id = $1`, roomID)
	out, err := scanJudgeDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("room %s has no judge decision", roomID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get judge decision: %w", err))
	}
	return out, nil
}

// SaveJuryVotes replaces the room's ballots in one transaction.
func (r *VerdictRepo) SaveJuryVotes(ctx context.Context, roomID string, votes []model.JuryVote) error {
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM jury_votes WHERE room_id = $1`, roomID); err != nil {
				return fmt.Errorf("clear jury votes: %w", err)
			}
			batch := &pgx.Batch{}
			for i := range votes {
				v := votes[i]
				if v.ID == "" {
					v.ID = uuid.NewString()
				}
				if v.CreatedAt.IsZero() {
					v.CreatedAt = now
				}
				batch.Queue(`
					INSERT INTO jury_votes (id, room_id, juror_number, vote, reasoning, confidence, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					v.ID, roomID, v.JurorNumber, v.Vote, v.Reasoning, v.Confidence, v.CreatedAt.UTC(),
				)
			}
			if batch.Len() == 0 {
				return nil
			}
			return tx.SendBatch(ctx, batch).Close()
		},
	})
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("save jury votes: %w", err))
	}
	return nil
}

// ListJuryVotes returns the room's ballots ordered by juror number.
func (r *VerdictRepo) ListJuryVotes(ctx context.Context, roomID string) ([]model.JuryVote, error) {
	if uuid.Validate(roomID) != nil {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, room_id, juror_number, vote, reasoning, confidence, created_at
		FROM jury_votes
		WHERE room_id = $1
		ORDER BY juror_number ASC`, roomID)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list jury votes: %w", err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && r.logger != nil {
			r.logger.WarnContext(ctx, "close rows failed", "error", cerr)
		}
	}()

	var votes []model.JuryVote
	for rows.Next() {
		var v model.JuryVote
		if err := rows.Scan(&v.ID, &v.RoomID, &v.JurorNumber, &v.Vote, &v.Reasoning, &v.Confidence, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan jury vote: %w", err)
		}
		v.CreatedAt = v.CreatedAt.UTC()
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// CreateVerdict inserts v unless the room already has a verdict. It returns the stored
// verdict and whether this call created it.
func (r *VerdictRepo) CreateVerdict(ctx context.Context, v *model.Verdict) (*model.Verdict, bool, error) {
	if v == nil {
		return nil, false, apperrors.Validation("verdict is required")
	}
	in := *v
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = r.timeProvider.Now().UTC()
	}
	summary, err := json.Marshal(in.JurySummary)
	if err != nil {
		return nil, false, fmt.Errorf("encode jury summary: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO verdicts (id, room_id, winner, reasoning, strengths_a, strengths_b, weaknesses_a, weaknesses_b,
		                      overall_quality, jury_summary, credibility_score, is_close, is_unanimous, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT ON CONSTRAINT verdicts_room_id_key DO NOTHING
		RETURNING `+verdictColumns,
		in.ID, in.RoomID, in.Winner, in.Reasoning, in.StrengthsA, in.StrengthsB, in.WeaknessesA, in.WeaknessesB,
		in.OverallQuality, summary, in.CredibilityScore, in.IsClose, in.IsUnanimous, in.GeneratedAt.UTC(),
	)
	out, err := scanVerdict(row)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, apperrors.MapDBError(fmt.Errorf("create verdict: %w", err))
	}

	existing, err := r.GetVerdict(ctx, in.RoomID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetVerdict returns the room's verdict.
func (r *VerdictRepo) GetVerdict(ctx context.Context, roomID string) (*model.Verdict, error) {
	if uuid.Validate(roomID) != nil {
		return nil, apperrors.NotFoundf("room %s has no verdict", roomID)
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+verdictColumns+` FROM verdicts WHERE room_id = $1`, roomID)
	out, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("room %s has no verdict", roomID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get verdict: %w", err))
	}
	return out, nil
}

func scanJudgeDecision(scanner rowScanner) (*model.JudgeDecision, error) {
	var (
		d            model.JudgeDecision
		sideA, sideB []byte
	)
	if err := scanner.Scan(&d.ID, &d.RoomID, &sideA, &sideB, &d.Reasoning, &d.ScoreA, &d.ScoreB, &d.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sideA, &d.SideA); err != nil {
		return nil, fmt.Errorf("decode side a analysis: %w", err)
	}
	if err := json.Unmarshal(sideB, &d.SideB); err != nil {
		return nil, fmt.Errorf("decode side b analysis: %w", err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func scanVerdict(scanner rowScanner) (*model.Verdict, error) {
	var (
		v       model.Verdict
		summary []byte
	)
	if err := scanner.Scan(
		&v.ID, &v.RoomID, &v.Winner, &v.Reasoning, &v.StrengthsA, &v.StrengthsB, &v.WeaknessesA, &v.WeaknessesB,
		&v.OverallQuality, &summary, &v.CredibilityScore, &v.IsClose, &v.IsUnanimous, &v.GeneratedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summary, &v.JurySummary); err != nil {
		return nil, fmt.Errorf("decode jury summary: %w", err)
	}
	v.GeneratedAt = v.GeneratedAt.UTC()
	return &v, nil
}
