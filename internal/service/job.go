package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-judge/judge-api/internal/core"
	domainjob "github.com/private-judge/judge-api/internal/domain/job"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	obserrors "github.com/private-judge/judge-api/internal/observability/errors"
	"github.com/private-judge/judge-api/internal/observability/metrics"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service/failurenotifier"
)

// Claim limits.
const (
	defaultClaimLimit   = 1
	maxClaimLimit       = 50
	defaultPollInterval = time.Second
)

// Clock supplies the current time. data.TimeProvider satisfies it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// JobObserver reacts to job outcomes. The room lifecycle controller implements it.
// Hooks other than ValidateCompletion run after the transition is persisted; their
// errors are logged and never undo it.
type JobObserver interface {
	// ValidateCompletion runs before a completion is stored and may veto it or store the
	// result elsewhere. A vetoed job stays running, so the worker can report it again.
	ValidateCompletion(ctx context.Context, job *model.Job, result json.RawMessage) error
	JobSucceeded(ctx context.Context, job *model.Job) error
	// JobFailed is called when a job ends failed with no retry scheduled.
	JobFailed(ctx context.Context, job *model.Job) error
	JobCancelled(ctx context.Context, job *model.Job, from model.JobStatus) error
	JobRequeued(ctx context.Context, job *model.Job) error
}

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo              core.JobRepository        // Required: job repository
	Rooms             core.RoomRepository       // Optional: authorizes Cancel and titles failure alerts
	Logger            *slog.Logger              // Optional: structured logger
	Metrics           statsd.Sink               // Optional: job lifecycle metrics
	FailureNotifier   *failurenotifier.Service  // Optional: failure notification fan-out
	Notifier          domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions   domainjob.NotifierOptions // Optional: configure default notifier behaviour
	Backoff           domainjob.BackoffPolicy   // Optional: defaults to 1s base without jitter
	DefaultMaxRetries *int                      // Optional: defaults to model.DefaultMaxRetries
	MaxRetriesCap     int                       // Optional: defaults to model.MaxRetriesCap
	PollInterval      time.Duration             // Optional: re-check period while long-polling
	Clock             Clock                     // Optional: defaults to the system clock
	StatusCache       *core.RoomStatusCache     // Optional: room status views to invalidate
}

// JobService is the job queue: creation, claiming, execution outcomes, cancellation and
// manual requeue, plus pub/sub notifications for long-polling workers.
type JobService struct {
	repo              core.JobRepository
	rooms             core.RoomRepository
	notifier          domainjob.Notifier
	logger            *slog.Logger
	metrics           statsd.Sink
	failureNotifier   *failurenotifier.Service
	backoff           domainjob.BackoffPolicy
	defaultMaxRetries int
	maxRetriesCap     int
	pollInterval      time.Duration
	clock             Clock
	statusCache       *core.RoomStatusCache
	observer          JobObserver
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	capRetries := opts.MaxRetriesCap
	if capRetries <= 0 || capRetries > model.MaxRetriesCap {
		capRetries = model.MaxRetriesCap
	}
	defaultRetries := model.DefaultMaxRetries
	if opts.DefaultMaxRetries != nil {
		defaultRetries = *opts.DefaultMaxRetries
	}
	if defaultRetries < 0 || defaultRetries > capRetries {
		return nil, fmt.Errorf("default max retries %d outside 0-%d", defaultRetries, capRetries)
	}

	backoff := opts.Backoff
	if backoff.Base <= 0 {
		backoff.Base = domainjob.DefaultBackoffBase
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_max_retries", defaultRetries,
			"max_retries_cap", capRetries,
			"backoff_base", backoff.Base,
			"backoff_jitter", backoff.Jitter,
		)
	}

	return &JobService{
		repo:              opts.Repo,
		rooms:             opts.Rooms,
		notifier:          notifier,
		logger:            logger,
		metrics:           opts.Metrics,
		failureNotifier:   opts.FailureNotifier,
		backoff:           backoff,
		defaultMaxRetries: defaultRetries,
		maxRetriesCap:     capRetries,
		pollInterval:      poll,
		clock:             clock,
		statusCache:       opts.StatusCache,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// SetObserver registers the lifecycle observer. It must be called before the service
// handles requests.
func (s *JobService) SetObserver(o JobObserver) { s.observer = o }

func (s *JobService) now() time.Time { return s.clock.Now().UTC() }

// Create validates and stores a new queued job.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := s.prepare(req); err != nil {
		return nil, err
	}
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		s.emit(string(req.Type), metrics.TransitionEnqueue, err, 0)
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.emit(string(job.Type), metrics.TransitionEnqueue, nil, 0)
	s.invalidate(ctx, job)

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"type", job.Type,
			"room_id", job.RoomIDValue(),
			"max_retries", job.MaxRetries,
		)
	}
	return job, nil
}

// CreateBatch validates and stores several jobs atomically.
func (s *JobService) CreateBatch(ctx context.Context, reqs []*model.CreateJobRequest) ([]*model.Job, error) {
	for _, req := range reqs {
		if err := s.prepare(req); err != nil {
			return nil, err
		}
	}
	jobs, err := s.repo.CreateBatch(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("create jobs: %w", err)
	}
	for _, j := range jobs {
		s.emit(string(j.Type), metrics.TransitionEnqueue, nil, 0)
		s.invalidate(ctx, j)
	}
	return jobs, nil
}

// EnqueueOptions tune a typed enqueue.
type EnqueueOptions struct {
	ScheduledAt *time.Time
	MaxRetries  *int
}

// Enqueue creates a job from a typed payload.
func (s *JobService) Enqueue(ctx context.Context, p model.JobPayload, opts EnqueueOptions) (*model.Job, error) {
	req, err := model.NewCreateJobRequest(p)
	if err != nil {
		return nil, err
	}
	req.ScheduledAt = opts.ScheduledAt
	req.MaxRetries = opts.MaxRetries
	return s.Create(ctx, req)
}

// EnqueueBatch creates one job per payload atomically.
func (s *JobService) EnqueueBatch(ctx context.Context, payloads ...model.JobPayload) ([]*model.Job, error) {
	reqs := make([]*model.CreateJobRequest, 0, len(payloads))
	for _, p := range payloads {
		req, err := model.NewCreateJobRequest(p)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return s.CreateBatch(ctx, reqs)
}

func (s *JobService) prepare(req *model.CreateJobRequest) error {
	if req == nil {
		return apperrors.Validation("job request is required")
	}
	if req.MaxRetries == nil {
		mr := s.defaultMaxRetries
		req.MaxRetries = &mr
	}
	if *req.MaxRetries > s.maxRetriesCap {
		return apperrors.ValidationField("max_retries",
			fmt.Sprintf("max retries must be between 0 and %d", s.maxRetriesCap))
	}
	return req.Validate()
}

// Get returns a job by id.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// ListByRoom returns a room's jobs, oldest first.
func (s *JobService) ListByRoom(ctx context.Context, roomID string) ([]*model.Job, error) {
	jobs, err := s.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list jobs for room %s: %w", roomID, err)
	}
	return jobs, nil
}

// Stats returns job counts per status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// ClaimParams selects jobs for ClaimNext.
type ClaimParams struct {
	// Types filters by job type; empty means every type.
	Types []model.JobType
	Limit int
	// Wait long-polls for up to this long when nothing is runnable.
	Wait time.Duration
}

// ClaimNext returns runnable jobs ordered by priority then scheduled_at. It does not
// change them; workers call BeginExecution to take one. With Wait set it blocks until a
// job becomes available, the wait elapses, or ctx is done, and returns an empty slice
// when nothing turned up.
func (s *JobService) ClaimNext(ctx context.Context, params ClaimParams) ([]*model.Job, error) {
	types := params.Types
	if len(types) == 0 {
		types = model.AllJobTypes
	}
	for _, t := range types {
		if !t.Valid() {
			return nil, apperrors.ValidationField("types", fmt.Sprintf("invalid job type %q", t))
		}
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultClaimLimit
	}
	limit = min(limit, maxClaimLimit)

	list := func() ([]*model.Job, error) {
		jobs, err := s.repo.ListRunnable(ctx, core.ListRunnableParams{Types: types, Limit: limit, Now: s.now()})
		if err != nil {
			return nil, fmt.Errorf("list runnable jobs: %w", err)
		}
		return jobs, nil
	}

	if params.Wait <= 0 {
		return list()
	}

	unsubscribe, signal := s.Subscribe(types...)
	defer unsubscribe()

	deadline := time.NewTimer(params.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		jobs, err := list()
		if err != nil || len(jobs) > 0 {
			return jobs, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-signal:
		case <-ticker.C:
		}
	}
}

// Subscribe creates a subscription for job notifications of the given types.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(types ...model.JobType) (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(types...)
}

// StopAllListeners stops every notifier listener goroutine.
func (s *JobService) StopAllListeners() {
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}

// BeginExecution moves a runnable job to running for workerID. Losing the race to
// another worker yields an error satisfying apperrors.IsJobAlreadyTaken.
func (s *JobService) BeginExecution(ctx context.Context, jobID, workerID string) (*model.Job, error) {
	job, err := s.repo.BeginExecution(ctx, core.BeginExecutionParams{JobID: jobID, WorkerID: workerID, Now: s.now()})
	if err != nil {
		result := metrics.ResultError
		if apperrors.IsJobAlreadyTaken(err) {
			result = metrics.ResultNoop
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionBegin, Result: result, Err: err,
		})
		return nil, fmt.Errorf("begin job %s: %w", jobID, err)
	}
	s.emit(string(job.Type), metrics.TransitionBegin, nil, job.UpdatedAt.Sub(job.ScheduledAt))
	s.invalidate(ctx, job)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job started",
			"job_id", job.ID,
			"type", job.Type,
			"room_id", job.RoomIDValue(),
			"worker_id", workerID,
			"retry_count", job.RetryCount,
		)
	}
	return job, nil
}

// UpdateProgress records progress on a running job.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, step, total int) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if err := domainjob.UpdateProgress(job, step, total, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, job, model.JobStatusRunning); err != nil {
		return nil, err
	}
	return job, nil
}

// CompleteExecution validates the worker's result and marks the running job succeeded.
// A result violating its contract leaves the job running.
func (s *JobService) CompleteExecution(ctx context.Context, jobID string, result json.RawMessage) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if job.Status != model.JobStatusRunning {
		return nil, apperrors.InvalidTransitionf("job %s cannot succeed from %s", job.ID, job.Status)
	}
	if err := model.ValidateJobResult(job.Type, result); err != nil {
		return nil, err
	}
	if s.observer != nil {
		if err := s.observer.ValidateCompletion(ctx, job, result); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if err := domainjob.Succeed(job, result, now); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, job, model.JobStatusRunning); err != nil {
		s.emit(string(job.Type), metrics.TransitionComplete, err, 0)
		return nil, err
	}
	s.emit(string(job.Type), metrics.TransitionComplete, nil, runDuration(job, now))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job succeeded", "job_id", job.ID, "type", job.Type, "room_id", job.RoomIDValue())
	}
	if s.observer != nil {
		s.observe(ctx, job, "succeeded", s.observer.JobSucceeded(ctx, job))
	}
	return job, nil
}

// FailParams describes a worker-reported failure.
type FailParams struct {
	Message string
	// Retryable overrides message classification when set.
	Retryable *bool
}

// FailExecution marks the running job failed and schedules a retry when the failure is
// retryable and retries remain. A job left failed is reported to the observer and the
// failure notifier.
func (s *JobService) FailExecution(ctx context.Context, jobID string, params FailParams) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	now := s.now()
	if err := domainjob.Fail(job, params.Message, now); err != nil {
		return nil, err
	}
	duration := runDuration(job, now)

	if domainjob.ShouldRetry(job, params.Retryable) {
		delay, err := domainjob.Retry(job, s.backoff, now)
		if err != nil {
			return nil, err
		}
		if err := s.persist(ctx, job, model.JobStatusRunning); err != nil {
			return nil, err
		}
		s.emit(string(job.Type), metrics.TransitionRetry, nil, duration)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "job failed, retry scheduled",
				"job_id", job.ID,
				"type", job.Type,
				"room_id", job.RoomIDValue(),
				"retry_count", job.RetryCount,
				"max_retries", job.MaxRetries,
				"delay", delay,
				"error", params.Message,
			)
		}
		return job, nil
	}

	if err := s.persist(ctx, job, model.JobStatusRunning); err != nil {
		return nil, err
	}
	s.emitFailure(job, duration)
	s.onTerminalFailure(ctx, job)
	return job, nil
}

// Retry schedules another attempt of a failed job that still has retries left.
func (s *JobService) Retry(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if _, err := domainjob.Retry(job, s.backoff, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, job, model.JobStatusFailed); err != nil {
		return nil, err
	}
	s.emit(string(job.Type), metrics.TransitionRetry, nil, 0)
	return job, nil
}

// Cancel cancels a queued or running job on behalf of the room creator. A running job
// is not preempted; its eventual result is rejected.
func (s *JobService) Cancel(ctx context.Context, jobID, requesterID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if err := s.authorizeCancel(ctx, job, requesterID); err != nil {
		return nil, err
	}

	from := job.Status
	if err := domainjob.Cancel(job, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, job, from); err != nil {
		return nil, err
	}
	s.emit(string(job.Type), metrics.TransitionCancel, nil, 0)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled",
			"job_id", job.ID, "type", job.Type, "room_id", job.RoomIDValue(), "from", from, "requester_id", requesterID)
	}
	if s.observer != nil {
		s.observe(ctx, job, "cancelled", s.observer.JobCancelled(ctx, job, from))
	}
	return job, nil
}

func (s *JobService) authorizeCancel(ctx context.Context, job *model.Job, requesterID string) error {
	if s.rooms == nil {
		return apperrors.Internal("room repository is not configured")
	}
	roomID := job.RoomIDValue()
	if roomID == "" {
		return apperrors.Forbiddenf("job %s does not belong to a room", job.ID)
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get room %s: %w", roomID, err)
	}
	if room.CreatorID != requesterID {
		return apperrors.Forbiddenf("only the room creator can cancel its jobs")
	}
	return nil
}

// AbandonRoomJobs cancels every unfinished job of a room, including retrying ones, and
// returns how many were cancelled. Observers are not notified.
func (s *JobService) AbandonRoomJobs(ctx context.Context, roomID string) (int, error) {
	jobs, err := s.repo.ListByRoom(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("list jobs for room %s: %w", roomID, err)
	}
	cancelled := 0
	for _, job := range jobs {
		if job.Status.Terminal() {
			continue
		}
		from := job.Status
		if err := domainjob.Abandon(job, s.now()); err != nil {
			return cancelled, err
		}
		ok, err := s.repo.Transition(ctx, job, from)
		if err != nil {
			return cancelled, fmt.Errorf("cancel job %s: %w", job.ID, err)
		}
		if ok {
			cancelled++
			s.emit(string(job.Type), metrics.TransitionCancel, nil, 0)
			s.invalidate(ctx, job)
		}
	}
	return cancelled, nil
}

// Requeue resets a failed job to queued with retry_count=0 for manual intervention.
func (s *JobService) Requeue(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if err := domainjob.Requeue(job, s.now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, job, model.JobStatusFailed); err != nil {
		return nil, err
	}
	s.emit(string(job.Type), metrics.TransitionRequeue, nil, 0)

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job requeued", "job_id", job.ID, "type", job.Type, "room_id", job.RoomIDValue())
	}
	if s.observer != nil {
		s.observe(ctx, job, "requeued", s.observer.JobRequeued(ctx, job))
	}
	return job, nil
}

// persist writes job if its stored status still equals from.
func (s *JobService) persist(ctx context.Context, job *model.Job, from model.JobStatus) error {
	ok, err := s.repo.Transition(ctx, job, from)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if !ok {
		current, getErr := s.repo.GetByID(ctx, job.ID)
		if getErr != nil {
			return fmt.Errorf("reload job %s: %w", job.ID, getErr)
		}
		return apperrors.InvalidTransitionf("job %s changed to %s concurrently", job.ID, current.Status)
	}
	s.invalidate(ctx, job)
	return nil
}

func (s *JobService) invalidate(ctx context.Context, job *model.Job) {
	if err := s.statusCache.Invalidate(ctx, job.RoomIDValue()); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to invalidate room status cache", "room_id", job.RoomIDValue(), "error", err)
	}
}

func (s *JobService) onTerminalFailure(ctx context.Context, job *model.Job) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "job failed permanently",
			"job_id", job.ID,
			"type", job.Type,
			"room_id", job.RoomIDValue(),
			"retry_count", job.RetryCount,
			"max_retries", job.MaxRetries,
			"error", derefString(job.ErrorMessage),
		)
	}
	if s.observer != nil {
		s.observe(ctx, job, "failed", s.observer.JobFailed(ctx, job))
	}
	if s.failureNotifier.Enabled() {
		s.failureNotifier.NotifyJobFailure(ctx, failurenotifier.PayloadForJob(job, s.roomTitle(ctx, job), s.now()))
	}
}

func (s *JobService) roomTitle(ctx context.Context, job *model.Job) string {
	if s.rooms == nil || job.RoomIDValue() == "" {
		return ""
	}
	room, err := s.rooms.GetByID(ctx, job.RoomIDValue())
	if err != nil {
		return ""
	}
	return room.Title
}

func (s *JobService) observe(ctx context.Context, job *model.Job, event string, err error) {
	if err == nil || s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, "job observer failed",
		"event", event,
		"job_id", job.ID,
		"type", job.Type,
		"room_id", job.RoomIDValue(),
		"error", err,
	)
}

func (s *JobService) emit(jobType, transition string, err error, d time.Duration) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType: jobType, Transition: transition, Result: result, Err: err, Duration: d,
	})
}

func (s *JobService) emitFailure(job *model.Job, d time.Duration) {
	class := ""
	if job.ErrorMessage != nil {
		class = obserrors.ClassifyMessage(*job.ErrorMessage)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: metrics.TransitionFail,
		Result:     metrics.ResultError,
		Duration:   d,
		ErrorClass: class,
	})
}

func runDuration(job *model.Job, now time.Time) time.Duration {
	if job.StartedAt == nil {
		return 0
	}
	return now.Sub(*job.StartedAt)
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// DeleteFinished removes up to batchSize succeeded or cancelled jobs completed before
// before. Failed jobs are kept as the record for manual requeue.
func (s *JobService) DeleteFinished(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	n, err := s.repo.DeleteTerminalBefore(ctx, core.DeleteJobsParams{
		Before:    before,
		Statuses:  []model.JobStatus{model.JobStatusSucceeded, model.JobStatusCancelled},
		BatchSize: batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("delete finished jobs: %w", err)
	}
	return n, nil
}
