// Package reaper provides adapters for running the job reaper.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
// It constructs the reaper service and runs the maintenance loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
	config config.ReaperConfig
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Jobs    *service.JobService
	Motions *service.MotionService
	Rooms   core.RoomRepository
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Jobs:    opts.Jobs,
		Motions: opts.Motions,
		Rooms:   opts.Rooms,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{
		reaper: reaper,
		logger: opts.Logger.With("component", "reaper_runner"),
		config: opts.Config,
	}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Jobs == nil {
		return errors.New("JobService is required")
	}
	if opts.Motions == nil {
		return errors.New("MotionService is required")
	}
	if opts.Rooms == nil {
		return errors.New("RoomRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner",
		"interval", r.config.Interval,
		"job_retention", r.config.JobRetention,
	)
	return r.reaper.Run(ctx)
}

// RunOnce performs a single maintenance pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.reaper.RunOnce(ctx)
}
