package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/core"
	domainjob "github.com/private-judge/judge-api/internal/domain/job"
	"github.com/private-judge/judge-api/internal/observability/notify/slack"
	"github.com/private-judge/judge-api/internal/observability/statsd"
	"github.com/private-judge/judge-api/internal/service"
	"github.com/private-judge/judge-api/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Rooms         *service.RoomService
	Motions       *service.MotionService
	Debates       *service.DebateService
	Verdicts      *service.VerdictService
	StatusCache   *core.RoomStatusCache
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // a nil interface keeps callers from emitting into a nil client
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// Close flushes and closes the metrics client.
func (o ObservabilityContainer) Close() error {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Store  *Store
	Logger *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 1)
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:    cfg.Slack.WebhookURL,
			Channel:       cfg.Slack.Channel,
			Username:      cfg.Slack.Username,
			Timeout:       cfg.Timeout,
			RetryLimit:    cfg.RetryLimit,
			RoomURLPrefix: cfg.Slack.RoomURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:      baseLogger.With("component", "failure_notifier"),
		Sinks:       sinks,
		SinkTimeout: cfg.Timeout,
	})
}

func newJobService(deps *ServiceDeps, obs ObservabilityContainer, cache *core.RoomStatusCache) (*service.JobService, error) {
	jobsCfg := deps.Config.Jobs
	defaultRetries := jobsCfg.DefaultMaxRetries
	return service.NewJobService(service.JobServiceOptions{
		Repo:              deps.Store.Jobs,
		Rooms:             deps.Store.Rooms,
		Logger:            deps.Logger,
		Metrics:           obs.Sink(),
		FailureNotifier:   obs.FailureNotifier,
		Backoff:           domainjob.BackoffPolicy{Base: jobsCfg.BackoffBase, Jitter: jobsCfg.BackoffJitter},
		DefaultMaxRetries: &defaultRetries,
		MaxRetriesCap:     jobsCfg.MaxRetriesCap,
		StatusCache:       cache,
	})
}

// NewServices builds the domain services over the opened store.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.Store == nil {
		return ServiceContainer{}, errors.New("service deps require config and store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}

	obs := buildObservability(logger, deps.Config.Observability)

	var cache *core.RoomStatusCache
	if deps.Store.Cache != nil {
		cache = core.NewRoomStatusCache(deps.Store.Cache, deps.Config.Cache.RoomStatusTTL)
	}

	jobs, err := newJobService(deps, obs, cache)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}
	motions := service.MustNewMotionService(service.MotionServiceOptions{
		Repo:   deps.Store.Motions,
		Rooms:  deps.Store.Rooms,
		Logger: logger,
	})
	debates := service.MustNewDebateService(service.DebateServiceOptions{
		Repo:   deps.Store.Debates,
		Rooms:  deps.Store.Rooms,
		Logger: logger,
	})
	verdicts := service.MustNewVerdictService(service.VerdictServiceOptions{
		Repo:   deps.Store.Verdicts,
		Logger: logger,
	})

	notifyRetries := min(deps.Config.Notify.RetryLimit, deps.Config.Jobs.MaxRetriesCap)
	rooms, err := service.NewRoomService(service.RoomServiceOptions{
		Rooms:               deps.Store.Rooms,
		Motions:             deps.Store.Motions,
		Jobs:                jobs,
		Debates:             debates,
		Verdicts:            verdicts,
		MotionSvc:           motions,
		StatusCache:         cache,
		Logger:              logger,
		NotificationRetries: &notifyRetries,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create room service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Rooms:         rooms,
		Motions:       motions,
		Debates:       debates,
		Verdicts:      verdicts,
		StatusCache:   cache,
		Observability: obs,
	}, nil
}
