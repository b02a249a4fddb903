package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	domainmotion "github.com/private-judge/judge-api/internal/domain/motion"
	domainroom "github.com/private-judge/judge-api/internal/domain/room"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// Stall reasons recorded on a room whose pipeline halted.
const (
	StallReasonJobFailed      = "job_failed"
	StallReasonCancelled      = "cancelled"
	StallReasonPostProcessing = "post_processing_failed"
)

// RoomServiceOptions groups dependencies for RoomService.
type RoomServiceOptions struct {
	Rooms       core.RoomRepository   // Required: room repository
	Motions     core.MotionRepository // Required: agreed motion lookup
	Jobs        *JobService           // Required: pipeline jobs
	Debates     *DebateService        // Required: debate rounds
	Verdicts    *VerdictService       // Required: judge, jury and verdict
	MotionSvc   *MotionService        // Optional: registers for motion agreement
	StatusCache *core.RoomStatusCache // Optional: room status view cache
	Logger      *slog.Logger          // Optional: structured logger
	Clock       Clock                 // Optional: defaults to the system clock
	JurorCount  int                   // Optional: ballots requested per room, defaults to 7
	// NotificationRetries overrides max_retries of notification jobs (optional).
	NotificationRetries *int
}

// RoomService is the room lifecycle controller. It owns membership and arguments, starts
// the debate, reacts to job outcomes by enqueuing judge and jury work and finalizing the
// verdict, and flags rooms whose pipeline halted.
type RoomService struct {
	rooms       core.RoomRepository
	motions     core.MotionRepository
	jobs        *JobService
	debates     *DebateService
	verdicts    *VerdictService
	statusCache *core.RoomStatusCache
	logger      *slog.Logger
	clock       Clock
	jurorCount  int
	notifyRetry *int
}

// NewRoomService constructs a RoomService and registers it as the job observer (and the
// motion observer when MotionSvc is set).
func NewRoomService(opts RoomServiceOptions) (*RoomService, error) {
	switch {
	case opts.Rooms == nil:
		return nil, errors.New("RoomRepository is required")
	case opts.Motions == nil:
		return nil, errors.New("MotionRepository is required")
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Debates == nil:
		return nil, errors.New("DebateService is required")
	case opts.Verdicts == nil:
		return nil, errors.New("VerdictService is required")
	}
	jurors := opts.JurorCount
	if jurors <= 0 || jurors > model.TotalJurors {
		jurors = model.TotalJurors
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "room_service")
	}

	svc := &RoomService{
		rooms:       opts.Rooms,
		motions:     opts.Motions,
		jobs:        opts.Jobs,
		debates:     opts.Debates,
		verdicts:    opts.Verdicts,
		statusCache: opts.StatusCache,
		logger:      logger,
		clock:       clock,
		jurorCount:  jurors,
		notifyRetry: opts.NotificationRetries,
	}
	opts.Jobs.SetObserver(svc)
	if opts.MotionSvc != nil {
		opts.MotionSvc.SetObserver(svc)
	}
	return svc, nil
}

// MustNewRoomService constructs a new RoomService and panics on error.
func MustNewRoomService(opts RoomServiceOptions) *RoomService {
	svc, err := NewRoomService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create RoomService: %v", err))
	}
	return svc
}

func (s *RoomService) now() time.Time { return s.clock.Now().UTC() }

// Create creates a room owned by the requester, who argues side A.
func (s *RoomService) Create(ctx context.Context, req *model.CreateRoomRequest) (*model.Room, error) {
	if req == nil {
		return nil, apperrors.Validation("room request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	room, err := s.rooms.Create(ctx, &model.Room{
		Title:     req.Title,
		CreatorID: req.CreatorID,
		Status:    model.RoomStatusWaitingParticipant,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "room created", "room_id", room.ID, "creator_id", room.CreatorID)
	}
	return room, nil
}

// Get returns a room by id.
func (s *RoomService) Get(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return room, nil
}

// Join makes userID the room's participant (side B) and opens agenda negotiation.
func (s *RoomService) Join(ctx context.Context, roomID, userID string) (*model.Room, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CreatorID == userID {
		return nil, apperrors.Forbiddenf("the creator cannot join their own room as participant")
	}
	if room.ParticipantID != nil {
		return nil, apperrors.Conflict("the room already has a participant")
	}
	room.ParticipantID = &userID
	if err := s.transition(ctx, room, model.RoomStatusAgendaNegotiation); err != nil {
		return nil, err
	}
	return room, nil
}

// SubmitArgument stores the requester's argument. Once both sides have submitted the
// debate starts automatically.
func (s *RoomService) SubmitArgument(ctx context.Context, roomID, userID, content string) (*model.Room, error) {
	if err := model.ValidateArgument(content); err != nil {
		return nil, err
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	side, ok := room.SideOf(userID)
	if !ok {
		return nil, apperrors.Forbiddenf("only room members can submit arguments")
	}
	if room.Status != model.RoomStatusArgumentsSubmission {
		return nil, apperrors.InvalidTransitionf("arguments can only be submitted during arguments_submission (room is %s)", room.Status)
	}
	if room.Argument(side) != nil {
		return nil, apperrors.Conflictf("side %s has already submitted its argument", side)
	}
	if side == model.SideA {
		room.ArgumentA = &content
	} else {
		room.ArgumentB = &content
	}
	if err := s.update(ctx, room, room.Status); err != nil {
		return nil, err
	}

	// Reload: the other side may have submitted concurrently.
	room, err = s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.BothArgumentsSubmitted() && room.Status == model.RoomStatusArgumentsSubmission {
		if _, err := s.startDebate(ctx, room); err != nil && !apperrors.IsInvalidTransition(err) {
			return room, fmt.Errorf("start debate: %w", err)
		}
		return s.Get(ctx, roomID)
	}
	return room, nil
}

// StartDebate moves the room to ai_processing and enqueues the debate job. Only the
// creator may start it, and both arguments must be in.
func (s *RoomService) StartDebate(ctx context.Context, roomID, requesterID string) (*model.Job, error) {
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.CreatorID != requesterID {
		return nil, apperrors.Forbiddenf("only the room creator can start the debate")
	}
	if !room.BothArgumentsSubmitted() {
		return nil, apperrors.ValidationField("arguments", "both sides must submit their arguments first")
	}
	return s.startDebate(ctx, room)
}

func (s *RoomService) startDebate(ctx context.Context, room *model.Room) (*model.Job, error) {
	m, err := s.motions.GetActiveByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("get motion for room %s: %w", room.ID, err)
	}
	if m.Status != model.MotionAgreed {
		return nil, apperrors.InvalidTransitionf("the motion is %s, not agreed", m.Status)
	}

	clearStall(room)
	if err := s.transition(ctx, room, model.RoomStatusAIProcessing); err != nil {
		return nil, err
	}
	job, err := s.jobs.Enqueue(ctx, &model.DebateJobPayload{
		RoomID:            room.ID,
		MotionTitle:       m.Title,
		MotionDescription: m.Description,
		ArgumentA:         *room.ArgumentA,
		ArgumentB:         *room.ArgumentB,
	}, EnqueueOptions{})
	if err != nil {
		s.markStalled(ctx, room.ID, "", StallReasonPostProcessing)
		return nil, fmt.Errorf("enqueue debate job: %w", err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "debate started", "room_id", room.ID, "job_id", job.ID)
	}
	s.notify(ctx, room, model.NotificationDebateStarted, fmt.Sprintf("The debate for %q has started.", room.Title))
	return job, nil
}

// Cancel abandons the room on behalf of a member: every unfinished job is cancelled,
// open rounds are failed and the room moves to cancelled.
func (s *RoomService) Cancel(ctx context.Context, roomID, requesterID string) (*model.Room, error) {
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(requesterID) {
		return nil, apperrors.Forbiddenf("only room members can cancel the room")
	}
	if err := domainroom.CheckTransition(room.Status, model.RoomStatusCancelled); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, room, model.RoomStatusCancelled); err != nil {
		return nil, err
	}
	cancelled, err := s.jobs.AbandonRoomJobs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("cancel room jobs: %w", err)
	}
	if _, err := s.debates.FailOpenRounds(ctx, roomID); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "room cancelled", "room_id", roomID, "requester_id", requesterID, "jobs_cancelled", cancelled)
	}
	s.notify(ctx, room, model.NotificationRoomCancelled, fmt.Sprintf("The room %q was cancelled.", room.Title))
	return room, nil
}

// Status returns the room's lifecycle view, served from cache when possible.
func (s *RoomService) Status(ctx context.Context, roomID string) (*model.RoomStatusView, error) {
	if cached, err := s.statusCache.Get(ctx, roomID); err == nil && cached != nil {
		return cached, nil
	} else if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "room status cache read failed", "room_id", roomID, "error", err)
	}

	room, err := s.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.jobs.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	view := BuildStatusView(room, jobs)

	if m, err := s.motions.GetActiveByRoom(ctx, roomID); err == nil {
		view.Motion = domainmotion.StatusView(m, room, s.now())
	} else if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("get motion for room %s: %w", roomID, err)
	}
	if v, err := s.verdicts.Get(ctx, roomID); err == nil {
		view.Verdict = v
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	if err := s.statusCache.Put(ctx, view); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "room status cache write failed", "room_id", roomID, "error", err)
	}
	return view, nil
}

// BuildStatusView summarizes a room and its jobs. LastJobError and RetryCount come from
// the job that stalled the pipeline, or else from the most recent job that reported an
// error.
func BuildStatusView(room *model.Room, jobs []*model.Job) *model.RoomStatusView {
	view := &model.RoomStatusView{
		Room:       room,
		Stalled:    room.Stalled,
		StalledJob: room.StalledJobID,
		Jobs:       make([]model.JobSummary, 0, len(jobs)),
	}
	var focus *model.Job
	for _, j := range jobs {
		view.Jobs = append(view.Jobs, model.JobSummary{
			ID:           j.ID,
			Type:         j.Type,
			Status:       j.Status,
			RetryCount:   j.RetryCount,
			MaxRetries:   j.MaxRetries,
			ErrorMessage: j.ErrorMessage,
			Progress:     j.Progress,
		})
		switch {
		case room.StalledJobID != nil && j.ID == *room.StalledJobID:
			focus = j
		case j.ErrorMessage != nil && (focus == nil || room.StalledJobID == nil):
			focus = j
		}
	}
	if focus != nil {
		view.LastJobError = focus.ErrorMessage
		view.RetryCount = focus.RetryCount
	}
	return view
}

// ListStalled returns rooms whose pipeline halted, oldest stall first.
func (s *RoomService) ListStalled(ctx context.Context, limit int) ([]*model.Room, error) {
	rooms, err := s.rooms.ListStalled(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list stalled rooms: %w", err)
	}
	return rooms, nil
}

// MotionAgreed opens arguments submission once the motion is accepted.
func (s *RoomService) MotionAgreed(ctx context.Context, m *model.Motion) error {
	room, err := s.Get(ctx, m.RoomID)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, room, model.RoomStatusArgumentsSubmission); err != nil {
		return err
	}
	s.notify(ctx, room, model.NotificationMotionAgreed, fmt.Sprintf("The motion %q was agreed. Submit your arguments.", m.Title))
	return nil
}

// ValidateCompletion requires all three rounds to be completed before a debate job may
// succeed, and stores judge and jury results before their jobs succeed. Both saves
// replace earlier rows, so a completion reported twice stores the same result.
func (s *RoomService) ValidateCompletion(ctx context.Context, job *model.Job, result json.RawMessage) error {
	roomID := job.RoomIDValue()
	switch job.Type {
	case model.JobTypeDebate:
		done, err := s.debates.Completed(ctx, roomID)
		if err != nil {
			return err
		}
		if !done {
			return apperrors.Newf(apperrors.ErrCodeIncompleteRound, "room %s has not completed all %d rounds", roomID, model.TotalRounds)
		}
	case model.JobTypeJudge:
		var res model.JudgeJobResult
		if err := json.Unmarshal(result, &res); err != nil {
			return apperrors.Validationf("decode judge result: %v", err)
		}
		if _, err := s.verdicts.RecordJudgeDecision(ctx, roomID, res.Decision); err != nil {
			return err
		}
	case model.JobTypeJury:
		var res model.JuryJobResult
		if err := json.Unmarshal(result, &res); err != nil {
			return apperrors.Validationf("decode jury result: %v", err)
		}
		if err := s.verdicts.RecordJuryVotes(ctx, roomID, res.Votes); err != nil {
			return err
		}
	}
	return nil
}

// JobSucceeded advances the pipeline: a finished debate enqueues the judge and jury
// jobs together, and once both have succeeded the verdict is aggregated and the room
// completes.
func (s *RoomService) JobSucceeded(ctx context.Context, job *model.Job) error {
	roomID := job.RoomIDValue()
	if roomID == "" || job.Type == model.JobTypeNotification {
		return nil
	}
	err := s.jobSucceeded(ctx, job)
	if err != nil {
		s.markStalled(ctx, roomID, job.ID, StallReasonPostProcessing)
	}
	return err
}

func (s *RoomService) jobSucceeded(ctx context.Context, job *model.Job) error {
	roomID := job.RoomIDValue()
	if job.Type == model.JobTypeDebate {
		_, err := s.jobs.EnqueueBatch(ctx,
			&model.JudgeJobPayload{RoomID: roomID},
			&model.JuryJobPayload{RoomID: roomID, JurorCount: s.jurorCount},
		)
		if err != nil {
			return fmt.Errorf("enqueue judge and jury jobs: %w", err)
		}
		return nil
	}
	return s.finalize(ctx, roomID)
}

// finalize aggregates the verdict once the latest judge and jury jobs both succeeded.
func (s *RoomService) finalize(ctx context.Context, roomID string) error {
	jobs, err := s.jobs.ListByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	latest := map[model.JobType]*model.Job{}
	for _, j := range jobs {
		latest[j.Type] = j
	}
	for _, t := range []model.JobType{model.JobTypeJudge, model.JobTypeJury} {
		if j := latest[t]; j == nil || j.Status != model.JobStatusSucceeded {
			return nil
		}
	}

	v, _, err := s.verdicts.Aggregate(ctx, roomID)
	if err != nil {
		return err
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == model.RoomStatusCompleted {
		return nil
	}
	completed := s.now()
	room.CompletedAt = &completed
	clearStall(room)
	if err := s.transition(ctx, room, model.RoomStatusCompleted); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "room completed", "room_id", roomID, "winner", v.Winner)
	}
	s.notify(ctx, room, model.NotificationVerdictReady, fmt.Sprintf("The verdict for %q is ready.", room.Title))
	return nil
}

// JobFailed halts the pipeline of a room whose job exhausted its retries.
func (s *RoomService) JobFailed(ctx context.Context, job *model.Job) error {
	roomID := job.RoomIDValue()
	if roomID == "" || job.Type == model.JobTypeNotification {
		return nil
	}
	if job.Type == model.JobTypeDebate {
		if _, err := s.debates.FailOpenRounds(ctx, roomID); err != nil {
			return err
		}
	}
	room := s.markStalled(ctx, roomID, job.ID, StallReasonJobFailed)
	if room != nil {
		s.notify(ctx, room, model.NotificationPipelineStalled,
			fmt.Sprintf("Processing for %q stopped after repeated failures and needs attention.", room.Title))
	}
	return nil
}

// JobCancelled rolls the room back to arguments submission when a debate is cancelled
// before it started, and halts the pipeline otherwise.
func (s *RoomService) JobCancelled(ctx context.Context, job *model.Job, from model.JobStatus) error {
	roomID := job.RoomIDValue()
	if roomID == "" || job.Type == model.JobTypeNotification {
		return nil
	}
	if job.Type == model.JobTypeDebate && from == model.JobStatusQueued {
		room, err := s.Get(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status != model.RoomStatusAIProcessing {
			return nil
		}
		clearStall(room)
		return s.transition(ctx, room, model.RoomStatusArgumentsSubmission)
	}
	if job.Type == model.JobTypeDebate {
		if _, err := s.debates.FailOpenRounds(ctx, roomID); err != nil {
			return err
		}
	}
	s.markStalled(ctx, roomID, job.ID, StallReasonCancelled)
	return nil
}

// JobRequeued clears the stall flag after manual intervention. A requeued debate gets
// its failed rounds back so the worker can resume them.
func (s *RoomService) JobRequeued(ctx context.Context, job *model.Job) error {
	roomID := job.RoomIDValue()
	if roomID == "" {
		return nil
	}
	if job.Type == model.JobTypeDebate {
		if _, err := s.debates.ReopenFailedRounds(ctx, roomID); err != nil {
			return err
		}
	}
	room, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Stalled {
		return nil
	}
	clearStall(room)
	return s.update(ctx, room, room.Status)
}

// markStalled flags an ai_processing room as halted and returns it, or nil when the
// room could not be flagged. Errors are logged.
func (s *RoomService) markStalled(ctx context.Context, roomID, jobID, reason string) *model.Room {
	room, err := s.Get(ctx, roomID)
	if err == nil && room.Status != model.RoomStatusAIProcessing {
		return nil
	}
	if err == nil {
		now := s.now()
		room.Stalled = true
		room.StalledReason = &reason
		room.StalledAt = &now
		room.StalledJobID = nil
		if jobID != "" {
			room.StalledJobID = &jobID
		}
		err = s.update(ctx, room, room.Status)
	}
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to flag room stalled", "room_id", roomID, "job_id", jobID, "error", err)
		}
		return nil
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "room pipeline stalled", "room_id", roomID, "job_id", jobID, "reason", reason)
	}
	return room
}

func clearStall(room *model.Room) {
	room.Stalled = false
	room.StalledReason = nil
	room.StalledJobID = nil
	room.StalledAt = nil
}

func (s *RoomService) transition(ctx context.Context, room *model.Room, to model.RoomStatus) error {
	from := room.Status
	if err := domainroom.CheckTransition(from, to); err != nil {
		return err
	}
	room.Status = to
	if err := s.update(ctx, room, from); err != nil {
		room.Status = from
		return err
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "room status changed", "room_id", room.ID, "from", from, "to", to)
	}
	return nil
}

func (s *RoomService) update(ctx context.Context, room *model.Room, from model.RoomStatus) error {
	room.UpdatedAt = s.now()
	ok, err := s.rooms.Update(ctx, room, from)
	if err != nil {
		return fmt.Errorf("update room %s: %w", room.ID, err)
	}
	if !ok {
		return apperrors.InvalidTransitionf("room %s changed concurrently", room.ID)
	}
	if err := s.statusCache.Invalidate(ctx, room.ID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to invalidate room status cache", "room_id", room.ID, "error", err)
	}
	return nil
}

// notify enqueues a best-effort notification to the room members.
func (s *RoomService) notify(ctx context.Context, room *model.Room, event model.NotificationEvent, msg string) {
	recipients := []string{room.CreatorID}
	if room.ParticipantID != nil {
		recipients = append(recipients, *room.ParticipantID)
	}
	_, err := s.jobs.Enqueue(ctx, &model.NotificationJobPayload{
		RoomID:     room.ID,
		Event:      event,
		Recipients: recipients,
		Message:    msg,
	}, EnqueueOptions{MaxRetries: s.notifyRetry})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to enqueue notification", "room_id", room.ID, "event", event, "error", err)
	}
}
