package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/adapters/airunner"
	"github.com/private-judge/judge-api/internal/adapters/jobrunner"
	"github.com/private-judge/judge-api/internal/adapters/llmgateway"
	"github.com/private-judge/judge-api/internal/adapters/reaper"
	"github.com/private-judge/judge-api/internal/adapters/webhook"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
)

// RunnerDeps groups what every background runner needs.
type RunnerDeps struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Store    *Store
	Logger   *slog.Logger
}

// RunAIRunner executes ai_debate, ai_judge and ai_jury jobs against the LLM gateway.
func RunAIRunner(ctx context.Context, deps RunnerDeps) error {
	cfg := deps.Config.AIRunner
	gateway, err := llmgateway.New(ctx, llmgateway.Options{
		Config: deps.Config.LLMGateway,
		Logger: deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("create llm gateway client: %w", err)
	}

	handlers, err := airunner.New(airunner.Options{
		Jobs:    deps.Services.Jobs,
		Debates: deps.Services.Debates,
		Rooms:   deps.Services.Rooms,
		Motions: deps.Services.Motions,
		AI:      gateway,
		Logger:  deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("create ai handlers: %w", err)
	}

	return runJobRunner(ctx, jobrunner.RunnerOptions{
		Jobs:        deps.Services.Jobs,
		Handlers:    handlers.For(cfg.JobTypes...),
		Logger:      deps.Logger,
		Metrics:     deps.Services.Observability.Sink(),
		Concurrency: cfg.Concurrency,
		WorkerID:    cfg.WorkerID,
		PollWait:    cfg.PollWait,
		Name:        "ai_runner",
	})
}

// RunNotificationRunner delivers notification jobs to the configured webhook.
func RunNotificationRunner(ctx context.Context, deps RunnerDeps) error {
	cfg := deps.Config.Notify

	// A nil interface, not a nil *Sender, marks delivery as disabled.
	var sender core.NotificationSender
	if cfg.WebhookURL != "" {
		s, err := webhook.NewSender(webhook.Config{URL: cfg.WebhookURL, Timeout: cfg.Timeout})
		if err != nil {
			return fmt.Errorf("create webhook sender: %w", err)
		}
		sender = s
	} else if deps.Logger != nil {
		deps.Logger.WarnContext(ctx, "NOTIFY_WEBHOOK_URL is empty; notifications complete undelivered")
	}

	return runJobRunner(ctx, jobrunner.RunnerOptions{
		Jobs: deps.Services.Jobs,
		Handlers: jobrunner.Handlers{
			model.JobTypeNotification: webhook.NewHandler(sender, deps.Logger),
		},
		Logger:      deps.Logger,
		Metrics:     deps.Services.Observability.Sink(),
		Concurrency: cfg.Concurrency,
		WorkerID:    cfg.WorkerID,
		Name:        "notification_runner",
	})
}

// runJobRunner centralizes job runner setup so individual runners only pass job-specific options.
func runJobRunner(ctx context.Context, opts jobrunner.RunnerOptions) error {
	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.Name, err)
	}
	return runner.Run(ctx)
}

// RunReaper starts the periodic cleanup and stale-motion reminder loop.
func RunReaper(ctx context.Context, deps RunnerDeps) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Jobs:    deps.Services.Jobs,
		Motions: deps.Services.Motions,
		Rooms:   deps.Store.Rooms,
		Config:  deps.Config.Reaper,
		Logger:  deps.Logger,
		Metrics: deps.Services.Observability.Sink(),
	})
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}
	return runner.Run(ctx)
}
