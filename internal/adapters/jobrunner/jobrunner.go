// Package jobrunner runs in-process worker pools that claim jobs from the queue, execute
// them with registered handlers and report the outcome back to the job service.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
	obserrors "github.com/private-judge/judge-api/internal/observability/errors"
	"github.com/private-judge/judge-api/internal/observability/metrics"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service"
)

// HandlerFunc executes a running job and returns its result. A returned error fails the
// job, which is retried per policy.
type HandlerFunc func(ctx context.Context, job *model.Job) (json.RawMessage, error)

// Handlers maps job types to the handler executing them.
type Handlers map[model.JobType]HandlerFunc

// failureTimeout bounds the report of a failure after the worker context is gone.
const failureTimeout = 5 * time.Second

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Jobs     *service.JobService // Required: queue operations
	Handlers Handlers            // Required: at least one handler
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// Concurrency is the number of worker goroutines; defaults to 1.
	Concurrency int
	// WorkerID prefixes the worker ids recorded on started jobs.
	WorkerID string
	// PollWait is how long an idle worker long-polls before asking again; defaults to 30s.
	PollWait time.Duration
	// Name labels logs and metrics; defaults to "job_runner".
	Name string
}

// Runner pulls jobs and executes them using registered handlers.
type Runner struct {
	jobs     *service.JobService
	handlers Handlers
	types    []model.JobType
	logger   *slog.Logger
	metrics  statsd.Sink
	workers  int
	workerID string
	pollWait time.Duration
	name     string
}

// NewRunner constructs a runner for the job types of its handlers.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if len(opts.Handlers) == 0 {
		return nil, errors.New("at least one handler is required")
	}

	types := make([]model.JobType, 0, len(opts.Handlers))
	for t := range opts.Handlers {
		if !t.Valid() {
			return nil, fmt.Errorf("invalid job type %q", t)
		}
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b model.JobType) int { return a.Priority() - b.Priority() })

	name := opts.Name
	if name == "" {
		name = "job_runner"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	pollWait := opts.PollWait
	if pollWait <= 0 {
		pollWait = 30 * time.Second
	}
	workerID := opts.WorkerID
	if workerID == "" {
		workerID = name
	}

	return &Runner{
		jobs:     opts.Jobs,
		handlers: opts.Handlers,
		types:    types,
		logger:   logger.With("component", name),
		metrics:  opts.Metrics,
		workers:  workers,
		workerID: workerID,
		pollWait: pollWait,
		name:     name,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled. The
// first worker error stops the whole pool.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "types", r.types, "workers", r.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := range r.workers {
		workerID := r.workerID + "-" + strconv.Itoa(i+1)
		g.Go(func() error { return r.workerLoop(ctx, workerID) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "job runner stopped")
	return nil
}

func (r *Runner) workerLoop(ctx context.Context, workerID string) error {
	for ctx.Err() == nil {
		candidates, err := r.jobs.ClaimNext(ctx, service.ClaimParams{
			Types: r.types,
			Limit: r.workers,
			Wait:  r.pollWait,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("claim next: %w", err)
		}
		if _, err := r.runFirst(ctx, candidates, workerID); err != nil {
			return err
		}
	}
	return nil
}

// runFirst begins and executes the first candidate this worker wins. Candidates taken by
// other workers in the meantime are skipped.
func (r *Runner) runFirst(ctx context.Context, candidates []*model.Job, workerID string) (bool, error) {
	for _, c := range candidates {
		job, err := r.jobs.BeginExecution(ctx, c.ID, workerID)
		switch {
		case err == nil:
			r.processJob(ctx, job)
			return true, nil
		case apperrors.IsJobAlreadyTaken(err), apperrors.IsConflict(err), apperrors.IsNotFound(err):
			continue
		case ctx.Err() != nil:
			return false, nil
		default:
			return false, fmt.Errorf("begin job %s: %w", c.ID, err)
		}
	}
	return false, nil
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(result string) {
		if r.metrics == nil {
			return
		}
		r.metrics.Timing("runner.job_duration", time.Since(start), map[string]string{
			"runner":   r.name,
			"job_type": string(job.Type),
			"result":   result,
		})
	}

	h, ok := r.handlers[job.Type]
	if !ok {
		r.fail(ctx, job, fmt.Errorf("no handler for job type %s", job.Type))
		emit(metrics.ResultError)
		return
	}

	result, err := h(ctx, job)
	if err != nil {
		r.fail(ctx, job, err)
		emit(metrics.ResultError)
		return
	}

	if _, err := r.jobs.CompleteExecution(ctx, job.ID, result); err != nil {
		if apperrors.IsInvalidTransition(err) {
			// Cancelled while running; the result is discarded.
			r.logger.InfoContext(ctx, "job result rejected", "job_id", job.ID, "type", job.Type, "reason", err)
			emit(metrics.ResultNoop)
			return
		}
		// The job is still running, so report it failed rather than leave it claimed.
		if !apperrors.IsValidation(err) && !apperrors.IsPrecondition(err) {
			r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "type", job.Type, "error", err)
		}
		r.fail(ctx, job, err)
		emit(metrics.ResultError)
		return
	}
	emit(metrics.ResultSuccess)
}

// fail reports a handler error. Invalid model output and interrupted work are retried;
// anything else is classified from its message.
func (r *Runner) fail(ctx context.Context, job *model.Job, cause error) {
	params := service.FailParams{Message: cause.Error()}
	if apperrors.IsValidation(cause) || ctx.Err() != nil {
		retry := true
		params.Retryable = &retry
	}

	reportCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		reportCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), failureTimeout)
		defer cancel()
	}

	updated, err := r.jobs.FailExecution(reportCtx, job.ID, params)
	if err != nil {
		r.logger.ErrorContext(reportCtx, "fail job error",
			"job_id", job.ID, "error", err, "original_error", cause)
		return
	}
	r.logger.WarnContext(reportCtx, "job handler failed",
		"job_id", job.ID,
		"type", job.Type,
		"room_id", job.RoomIDValue(),
		"status", updated.Status,
		"error_class", obserrors.Classify(cause),
		"error", cause,
	)
}
