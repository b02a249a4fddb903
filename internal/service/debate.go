package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-judge/judge-api/internal/core"
	domaindebate "github.com/private-judge/judge-api/internal/domain/debate"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// DebateServiceOptions groups dependencies for DebateService.
type DebateServiceOptions struct {
	Repo   core.DebateRepository // Required: rounds and turns
	Rooms  core.RoomRepository   // Required: room status checks
	Logger *slog.Logger          // Optional: structured logger
	Clock  Clock                 // Optional: defaults to the system clock
}

// DebateService sequences the three debate rounds of a room. It never enqueues work;
// the room lifecycle reacts to the debate job's completion.
type DebateService struct {
	repo   core.DebateRepository
	rooms  core.RoomRepository
	logger *slog.Logger
	clock  Clock
}

// NewDebateService constructs a new DebateService.
func NewDebateService(opts DebateServiceOptions) (*DebateService, error) {
	if opts.Repo == nil {
		return nil, errors.New("DebateRepository is required")
	}
	if opts.Rooms == nil {
		return nil, errors.New("RoomRepository is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "debate_service")
	}
	return &DebateService{repo: opts.Repo, rooms: opts.Rooms, logger: logger, clock: clock}, nil
}

// MustNewDebateService constructs a new DebateService and panics on error.
func MustNewDebateService(opts DebateServiceOptions) *DebateService {
	svc, err := NewDebateService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create DebateService: %v", err))
	}
	return svc
}

func (s *DebateService) now() time.Time { return s.clock.Now().UTC() }

// StartRound opens round roundNumber of a room in ai_processing. The previous round
// must be completed.
func (s *DebateService) StartRound(ctx context.Context, roomID string, roundNumber int) (*model.Round, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	if room.Status != model.RoomStatusAIProcessing {
		return nil, apperrors.InvalidTransitionf("rounds can only start while the room is ai_processing (room is %s)", room.Status)
	}
	rounds, err := s.repo.ListRounds(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list rounds for room %s: %w", roomID, err)
	}
	if err := domaindebate.CanStart(rounds, roundNumber); err != nil {
		return nil, err
	}

	round, err := s.repo.CreateRound(ctx, domaindebate.NewRound(roomID, roundNumber, s.now()))
	if err != nil {
		if apperrors.IsConflict(err) {
			return nil, apperrors.InvalidTransitionf("round %d has already been started", roundNumber)
		}
		return nil, fmt.Errorf("create round: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "debate round started",
			"room_id", roomID, "round_id", round.ID, "round_number", roundNumber, "round_type", round.RoundType)
	}
	return round, nil
}

// RecordTurn appends a lawyer turn to an in-progress round.
func (s *DebateService) RecordTurn(ctx context.Context, req *model.RecordTurnRequest) (*model.Turn, error) {
	if req == nil {
		return nil, apperrors.Validation("turn request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	round, err := s.repo.GetRound(ctx, req.RoundID)
	if err != nil {
		return nil, fmt.Errorf("get round %s: %w", req.RoundID, err)
	}
	turn, err := domaindebate.NextTurn(round, round.Turns, req, s.now())
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.AppendTurn(ctx, turn)
	if err != nil {
		return nil, fmt.Errorf("record turn: %w", err)
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "debate turn recorded",
			"round_id", round.ID, "turn_number", stored.TurnNumber, "side", stored.Side, "lawyer_type", stored.LawyerType)
	}
	return stored, nil
}

// CompleteRound finishes a round once both sides have spoken and stores its quality
// heuristic and overtime flag.
func (s *DebateService) CompleteRound(ctx context.Context, roundID string) (*model.Round, error) {
	round, err := s.repo.GetRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("get round %s: %w", roundID, err)
	}
	if err := domaindebate.Complete(round, round.Turns, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.repo.UpdateRound(ctx, round, model.RoundStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("update round %s: %w", round.ID, err)
	}
	if !ok {
		return nil, apperrors.InvalidTransitionf("round %d changed concurrently", round.RoundNumber)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "debate round completed",
			"room_id", round.RoomID,
			"round_id", round.ID,
			"round_number", round.RoundNumber,
			"score_a", round.Quality.ScoreA,
			"score_b", round.Quality.ScoreB,
			"overtime", round.Overtime,
		)
	}
	return round, nil
}

// GetRound returns a round with its turns.
func (s *DebateService) GetRound(ctx context.Context, roundID string) (*model.Round, error) {
	round, err := s.repo.GetRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("get round %s: %w", roundID, err)
	}
	return round, nil
}

// ListRounds returns the rounds of a room in order, each with its turns. Rounds still in
// progress have their overtime flag computed against the current time.
func (s *DebateService) ListRounds(ctx context.Context, roomID string) ([]*model.Round, error) {
	rounds, err := s.repo.ListRounds(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list rounds for room %s: %w", roomID, err)
	}
	now := s.now()
	for _, r := range rounds {
		if r.Status == model.RoundStatusInProgress {
			r.Overtime = domaindebate.IsOvertime(r, now)
		}
	}
	return rounds, nil
}

// Completed reports whether all three rounds of a room are completed.
func (s *DebateService) Completed(ctx context.Context, roomID string) (bool, error) {
	rounds, err := s.repo.ListRounds(ctx, roomID)
	if err != nil {
		return false, fmt.Errorf("list rounds for room %s: %w", roomID, err)
	}
	return domaindebate.AllCompleted(rounds), nil
}

// FailOpenRounds marks every unfinished round of a room failed and returns how many it
// changed.
func (s *DebateService) FailOpenRounds(ctx context.Context, roomID string) (int, error) {
	rounds, err := s.repo.ListRounds(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("list rounds for room %s: %w", roomID, err)
	}
	failed := 0
	for _, r := range rounds {
		from := r.Status
		if domaindebate.MarkFailed(r) != nil {
			continue
		}
		ok, err := s.repo.UpdateRound(ctx, r, from)
		if err != nil {
			return failed, fmt.Errorf("fail round %s: %w", r.ID, err)
		}
		if ok {
			failed++
		}
	}
	return failed, nil
}

// ReopenFailedRounds puts the room's failed rounds back in progress and returns how many
// it changed.
func (s *DebateService) ReopenFailedRounds(ctx context.Context, roomID string) (int, error) {
	rounds, err := s.repo.ListRounds(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("list rounds for room %s: %w", roomID, err)
	}
	reopened := 0
	now := s.now()
	for _, r := range rounds {
		if domaindebate.Reopen(r, now) != nil {
			continue
		}
		ok, err := s.repo.UpdateRound(ctx, r, model.RoundStatusFailed)
		if err != nil {
			return reopened, fmt.Errorf("reopen round %s: %w", r.ID, err)
		}
		if ok {
			reopened++
		}
	}
	return reopened, nil
}
