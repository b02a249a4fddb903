// Package failurenotifier fans operator alerts about retry-exhausted jobs out to the
// configured sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
	obserrors "github.com/private-judge/judge-api/internal/observability/errors"
	"github.com/private-judge/judge-api/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SinkTimeout bounds each sink delivery. Zero means the caller's context only.
	SinkTimeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger      *slog.Logger
	sinks       []SinkRegistration
	sinkTimeout time.Duration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:      logger.With("component", "failure_notifier"),
		sinks:       sinks,
		sinkTimeout: opts.SinkTimeout,
	}
}

// NotifyJobFailure fans the payload out to every sink concurrently and waits for all of
// them. Sink errors are logged, never returned.
func (s *Service) NotifyJobFailure(ctx context.Context, payload notify.JobFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx := ctx
			if s.sinkTimeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, s.sinkTimeout)
				defer cancel()
			}
			if err := entry.Sink.SendJobFailure(sendCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"job_id", payload.JobID,
					"job_type", payload.JobType,
					"room_id", payload.RoomID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}

// PayloadForJob builds the alert for a job that exhausted its retries. Notification job
// failures are reported as warnings since they never stall a room.
func PayloadForJob(j *model.Job, roomTitle string, now time.Time) notify.JobFailurePayload {
	p := notify.JobFailurePayload{
		JobID:      j.ID,
		JobType:    string(j.Type),
		RoomID:     j.RoomIDValue(),
		RoomTitle:  roomTitle,
		Severity:   notify.SeverityCritical,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		OccurredAt: now,
		Metadata:   map[string]string{"scheduled_at": j.ScheduledAt.UTC().Format(time.RFC3339)},
	}
	if j.Type == model.JobTypeNotification {
		p.Severity = notify.SeverityWarning
	}
	if j.ErrorMessage != nil {
		p.Error = *j.ErrorMessage
		p.ErrorClass = obserrors.ClassifyMessage(*j.ErrorMessage)
	}
	if j.WorkerID != nil {
		p.Metadata["worker_id"] = *j.WorkerID
	}
	if j.Progress != nil {
		p.Metadata["progress"] = strconv.Itoa(j.Progress.Step) + "/" + strconv.Itoa(j.Progress.Total)
	}
	return p
}
