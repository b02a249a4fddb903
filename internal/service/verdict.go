package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	domainverdict "github.com/private-judge/judge-api/internal/domain/verdict"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// VerdictServiceOptions groups dependencies for VerdictService.
type VerdictServiceOptions struct {
	Repo   core.VerdictRepository // Required: judge, jury and verdict storage
	Logger *slog.Logger           // Optional: structured logger
	Clock  Clock                  // Optional: defaults to the system clock
}

// VerdictService stores judge and jury outputs and aggregates them into the verdict.
type VerdictService struct {
	repo   core.VerdictRepository
	logger *slog.Logger
	clock  Clock
}

// NewVerdictService constructs a new VerdictService.
func NewVerdictService(opts VerdictServiceOptions) (*VerdictService, error) {
	if opts.Repo == nil {
		return nil, errors.New("VerdictRepository is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "verdict_service")
	}
	return &VerdictService{repo: opts.Repo, logger: logger, clock: clock}, nil
}

// MustNewVerdictService constructs a new VerdictService and panics on error.
func MustNewVerdictService(opts VerdictServiceOptions) *VerdictService {
	svc, err := NewVerdictService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create VerdictService: %v", err))
	}
	return svc
}

// RecordJudgeDecision validates and stores the room's judge decision.
func (s *VerdictService) RecordJudgeDecision(ctx context.Context, roomID string, d model.JudgeDecision) (*model.JudgeDecision, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.RoomID = roomID
	stored, err := s.repo.SaveJudgeDecision(ctx, &d)
	if err != nil {
		return nil, fmt.Errorf("save judge decision for room %s: %w", roomID, err)
	}
	return stored, nil
}

// RecordJuryVotes validates and stores the room's ballots, replacing earlier ones.
func (s *VerdictService) RecordJuryVotes(ctx context.Context, roomID string, votes []model.JuryVote) error {
	if err := model.ValidateJuryVotes(votes); err != nil {
		return err
	}
	stored := make([]model.JuryVote, len(votes))
	for i, v := range votes {
		v.RoomID = roomID
		stored[i] = v
	}
	if err := s.repo.SaveJuryVotes(ctx, roomID, stored); err != nil {
		return fmt.Errorf("save jury votes for room %s: %w", roomID, err)
	}
	return nil
}

// Aggregate computes the room's verdict from the stored judge decision and ballots and
// stores it. A room keeps its first verdict; later calls return the stored one with
// created=false.
func (s *VerdictService) Aggregate(ctx context.Context, roomID string) (*model.Verdict, bool, error) {
	judge, err := s.repo.GetJudgeDecision(ctx, roomID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, false, apperrors.Conflictf("room %s has no judge decision yet", roomID)
		}
		return nil, false, fmt.Errorf("get judge decision for room %s: %w", roomID, err)
	}
	votes, err := s.repo.ListJuryVotes(ctx, roomID)
	if err != nil {
		return nil, false, fmt.Errorf("list jury votes for room %s: %w", roomID, err)
	}

	v, err := domainverdict.Aggregate(domainverdict.Input{RoomID: roomID, Judge: judge, Votes: votes, Now: s.now()})
	if err != nil {
		return nil, false, err
	}
	stored, created, err := s.repo.CreateVerdict(ctx, v)
	if err != nil {
		return nil, false, fmt.Errorf("create verdict for room %s: %w", roomID, err)
	}

	if created && s.logger != nil {
		s.logger.InfoContext(ctx, "verdict created",
			"room_id", roomID,
			"winner", stored.Winner,
			"votes_a", stored.JurySummary.VotesA,
			"votes_b", stored.JurySummary.VotesB,
			"overall_quality", stored.OverallQuality,
			"credibility", stored.CredibilityScore,
		)
	}
	return stored, created, nil
}

// Get returns the room's verdict.
func (s *VerdictService) Get(ctx context.Context, roomID string) (*model.Verdict, error) {
	v, err := s.repo.GetVerdict(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get verdict for room %s: %w", roomID, err)
	}
	return v, nil
}

func (s *VerdictService) now() time.Time { return s.clock.Now().UTC() }
