package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	domainmotion "github.com/private-judge/judge-api/internal/domain/motion"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// MotionObserver is told when a motion reaches agreement.
type MotionObserver interface {
	MotionAgreed(ctx context.Context, m *model.Motion) error
}

// MotionServiceOptions groups dependencies for MotionService.
type MotionServiceOptions struct {
	Repo   core.MotionRepository // Required: motion repository
	Rooms  core.RoomRepository   // Required: membership checks
	Logger *slog.Logger          // Optional: structured logger
	Clock  Clock                 // Optional: defaults to the system clock
}

// MotionService runs the motion negotiation between the two members of a room.
type MotionService struct {
	repo     core.MotionRepository
	rooms    core.RoomRepository
	logger   *slog.Logger
	clock    Clock
	observer MotionObserver
}

// NewMotionService constructs a new MotionService.
func NewMotionService(opts MotionServiceOptions) (*MotionService, error) {
	if opts.Repo == nil {
		return nil, errors.New("MotionRepository is required")
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
		logger = opts.Logger.With("component", "motion_service")
	}
	return &MotionService{repo: opts.Repo, rooms: opts.Rooms, logger: logger, clock: clock}, nil
}

// MustNewMotionService constructs a new MotionService and panics on error.
func MustNewMotionService(opts MotionServiceOptions) *MotionService {
	svc, err := NewMotionService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create MotionService: %v", err))
	}
	return svc
}

// SetObserver registers the agreement observer.
func (s *MotionService) SetObserver(o MotionObserver) { s.observer = o }

func (s *MotionService) now() time.Time { return s.clock.Now().UTC() }

// Propose creates the room's motion. The room must be negotiating its agenda and have no
// live motion.
func (s *MotionService) Propose(ctx context.Context, req *model.ProposeMotionRequest) (*model.Motion, error) {
	if req == nil {
		return nil, apperrors.Validation("motion request is required")
	}
	room, err := s.rooms.GetByID(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", req.RoomID, err)
	}
	if !room.IsMember(req.ProposerID) {
		return nil, apperrors.Forbiddenf("only room members can propose a motion")
	}
	if room.Status != model.RoomStatusAgendaNegotiation {
		return nil, apperrors.InvalidTransitionf("motions can only be proposed during agenda negotiation (room is %s)", room.Status)
	}

	existing, err := s.repo.GetActiveByRoom(ctx, req.RoomID)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("get motion for room %s: %w", req.RoomID, err)
	}
	if existing != nil {
		return nil, apperrors.ValidationField("room_id", "a motion already exists for this room")
	}

	m, err := domainmotion.Propose(req, s.now())
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, m)
	if err != nil {
		if apperrors.IsConflict(err) {
			return nil, apperrors.ValidationField("room_id", "a motion already exists for this room")
		}
		return nil, fmt.Errorf("create motion: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "motion proposed", "motion_id", created.ID, "room_id", created.RoomID, "proposer_id", created.ProposerID)
	}
	return created, nil
}

// Respond applies the other member's accept, modify or reject while the room negotiates
// its agenda. Agreement is reported to the observer after it is stored, and is undone
// when the observer fails.
func (s *MotionService) Respond(ctx context.Context, req *model.RespondMotionRequest) (*model.Motion, error) {
	if req == nil {
		return nil, apperrors.Validation("respond request is required")
	}
	m, err := s.repo.GetByID(ctx, req.MotionID)
	if err != nil {
		return nil, fmt.Errorf("get motion %s: %w", req.MotionID, err)
	}
	room, err := s.rooms.GetByID(ctx, m.RoomID)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", m.RoomID, err)
	}
	if !room.IsMember(req.UserID) {
		return nil, apperrors.Forbiddenf("only room members can respond to the motion")
	}

	// Terminal motions fall through so the domain reports them as forbidden.
	if !m.Status.Terminal() && m.DeletedAt == nil && room.Status != model.RoomStatusAgendaNegotiation {
		return nil, apperrors.InvalidTransitionf("motions can only be answered during agenda negotiation (room is %s)", room.Status)
	}

	prev := m.Clone()
	historyLen := len(m.NegotiationHistory)
	if err := domainmotion.Respond(m, req, s.now()); err != nil {
		return nil, err
	}
	ok, err := s.repo.Update(ctx, m, historyLen)
	if err != nil {
		return nil, fmt.Errorf("update motion %s: %w", m.ID, err)
	}
	if !ok {
		return nil, apperrors.Conflict("the motion changed concurrently, reload and try again")
	}

	if m.Status == model.MotionAgreed && s.observer != nil {
		if err := s.observer.MotionAgreed(ctx, m); err != nil {
			s.revert(ctx, prev, len(m.NegotiationHistory))
			return nil, fmt.Errorf("advance room after agreement: %w", err)
		}
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "motion updated",
			"motion_id", m.ID, "room_id", m.RoomID, "action", req.Action, "status", m.Status, "user_id", req.UserID)
	}
	return m, nil
}

// revert restores prev over a stored response with historyLen entries, so an agreement
// never outlives a room that failed to advance.
func (s *MotionService) revert(ctx context.Context, prev *model.Motion, historyLen int) {
	prev.UpdatedAt = s.now()
	ok, err := s.repo.Update(ctx, prev, historyLen)
	if (err != nil || !ok) && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to revert motion after room transition failure",
			"motion_id", prev.ID, "room_id", prev.RoomID, "reverted", ok, "error", err)
	}
}

// Delete soft-deletes a rejected motion on behalf of a room member.
func (s *MotionService) Delete(ctx context.Context, motionID, userID string) error {
	m, err := s.repo.GetByID(ctx, motionID)
	if err != nil {
		return fmt.Errorf("get motion %s: %w", motionID, err)
	}
	room, err := s.rooms.GetByID(ctx, m.RoomID)
	if err != nil {
		return fmt.Errorf("get room %s: %w", m.RoomID, err)
	}
	if !room.IsMember(userID) {
		return apperrors.Forbiddenf("only room members can delete the motion")
	}
	historyLen := len(m.NegotiationHistory)
	if err := domainmotion.Delete(m, s.now()); err != nil {
		return err
	}
	ok, err := s.repo.Update(ctx, m, historyLen)
	if err != nil {
		return fmt.Errorf("delete motion %s: %w", m.ID, err)
	}
	if !ok {
		return apperrors.Conflict("the motion changed concurrently, reload and try again")
	}
	return nil
}

// Get returns a motion by id.
func (s *MotionService) Get(ctx context.Context, id string) (*model.Motion, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get motion %s: %w", id, err)
	}
	return m, nil
}

// GetByRoom returns the room's live motion.
func (s *MotionService) GetByRoom(ctx context.Context, roomID string) (*model.Motion, error) {
	m, err := s.repo.GetActiveByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get motion for room %s: %w", roomID, err)
	}
	return m, nil
}

// ListStale returns non-terminal motions idle for at least staleAfter that have not been
// reminded about.
func (s *MotionService) ListStale(ctx context.Context, staleAfter time.Duration, limit int) ([]*model.Motion, error) {
	if staleAfter <= 0 {
		staleAfter = domainmotion.StaleAfter
	}
	motions, err := s.repo.ListStale(ctx, core.ListStaleMotionsParams{IdleSince: s.now().Add(-staleAfter), Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list stale motions: %w", err)
	}
	return motions, nil
}

// MarkReminded stamps stale_notified_at. It reports false when the motion moved on
// since it was listed.
func (s *MotionService) MarkReminded(ctx context.Context, m *model.Motion) (bool, error) {
	now := s.now()
	next := m.Clone()
	next.StaleNotifiedAt = &now
	ok, err := s.repo.Update(ctx, next, len(m.NegotiationHistory))
	if err != nil {
		return false, fmt.Errorf("mark motion %s reminded: %w", m.ID, err)
	}
	return ok, nil
}
