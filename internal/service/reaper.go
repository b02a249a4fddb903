package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	obserrors "github.com/private-judge/judge-api/internal/observability/errors"
	"github.com/private-judge/judge-api/internal/observability/metrics"
	"github.com/private-judge/judge-api/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Jobs    *JobService         // Required: job cleanup and reminder enqueueing
	Motions *MotionService      // Required: stale motion lookup
	Rooms   core.RoomRepository // Required: reminder recipients
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides periodic maintenance.
//
// This service manages:
// - Deleting old succeeded and cancelled jobs to prevent database bloat.
// - Enqueuing one reminder per motion idle past the stale threshold.
type ReaperService struct {
	jobs    *JobService
	motions *MotionService
	rooms   core.RoomRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Motions == nil:
		return nil, errors.New("MotionService is required")
	case opts.Rooms == nil:
		return nil, errors.New("RoomRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"job_retention", opts.Config.JobRetention,
			"motion_stale_after", opts.Config.MotionStaleAfter,
		)
	}

	return &ReaperService{
		jobs:    opts.Jobs,
		motions: opts.Motions,
		rooms:   opts.Rooms,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	name  string
	label string
	fn    func(context.Context) (int64, error)
}

// RunOnce performs every maintenance step once. Steps run independently; their errors
// are joined.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	steps := []cleanupStep{
		{name: "delete_finished_jobs", label: "delete finished jobs", fn: s.deleteFinishedJobs},
		{name: "remind_stale_motions", label: "remind stale motions", fn: s.remindStaleMotions},
	}

	var (
		errs        []error
		allCanceled = true
		firstErr    error
	)
	for _, step := range steps {
		count, err := step.fn(ctx)
		metricErr := suppressContextCancellation(err)
		s.emitOperationMetric(step.name, count, metricErr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
			allCanceled = allCanceled && isContextCancellation(err)
			if firstErr == nil {
				firstErr = metricErr
			}
		}
	}
	s.emitRunMetrics(time.Since(start), firstErr)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

// deleteFinishedJobs loops over batches until nothing older than the retention is left.
func (s *ReaperService) deleteFinishedJobs(ctx context.Context) (int64, error) {
	before := s.jobs.now().Add(-s.config.JobRetention)
	var total int64
	for {
		n, err := s.jobs.DeleteFinished(ctx, before, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted finished jobs", "count", total, "retention", s.config.JobRetention)
	}
	return total, nil
}

// remindStaleMotions enqueues a motion_stale notification for each stale motion and
// stamps it so the reminder is sent once per idle period.
func (s *ReaperService) remindStaleMotions(ctx context.Context) (int64, error) {
	stale, err := s.motions.ListStale(ctx, s.config.MotionStaleAfter, s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	var reminded int64
	for _, m := range stale {
		room, err := s.rooms.GetByID(ctx, m.RoomID)
		if err != nil {
			return reminded, fmt.Errorf("get room %s: %w", m.RoomID, err)
		}
		if room.Status.Terminal() {
			continue
		}
		ok, err := s.motions.MarkReminded(ctx, m)
		if err != nil {
			return reminded, err
		}
		if !ok {
			continue
		}

		recipients := []string{room.CreatorID}
		if room.ParticipantID != nil {
			recipients = append(recipients, *room.ParticipantID)
		}
		if _, err := s.jobs.Enqueue(ctx, &model.NotificationJobPayload{
			RoomID:     room.ID,
			Event:      model.NotificationMotionStale,
			Recipients: recipients,
			Message:    fmt.Sprintf("The motion %q has been waiting for a response for a while.", m.Title),
		}, EnqueueOptions{}); err != nil {
			return reminded, err
		}
		reminded++
	}
	if reminded > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reminded stale motions", "count", reminded, "stale_after", s.config.MotionStaleAfter)
	}
	return reminded, nil
}

func (s *ReaperService) emitRunMetrics(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	tags := map[string]string{}
	if err != nil {
		result = metrics.ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	tags["result"] = result

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.items_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
