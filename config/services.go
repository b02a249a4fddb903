package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeAIRunner runs the in-process AI debate, judge and jury worker.
	ServiceModeAIRunner ServiceMode = "ai-runner"
	// ServiceModeNotificationRunner runs the notification delivery worker.
	ServiceModeNotificationRunner ServiceMode = "notification-runner"
	// ServiceModeReaper runs the job reaper for cleanup and stale-motion reminders.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeAIRunner,
		ServiceModeNotificationRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeAIRunner,
			ServiceModeNotificationRunner,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, ai-runner, notification-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// NotifyConfig contains notification runner and webhook delivery configuration.
type NotifyConfig struct {
	// WebhookURL receives one POST per notification job. Empty disables delivery;
	// notification jobs then succeed with delivered=false.
	WebhookURL string `env:"WEBHOOK_URL"`

	// Timeout bounds a single webhook delivery.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`

	// RetryLimit is the max_retries applied to notification jobs.
	RetryLimit int `env:"RETRY_LIMIT" envDefault:"3"`

	// Concurrency is the number of notification worker goroutines.
	Concurrency int `env:"CONCURRENCY" envDefault:"2"`

	// WorkerID identifies the notification runner in claimed jobs.
	WorkerID string `env:"WORKER_ID" envDefault:"notification-runner"`
}

// Sanitize applies guardrails to notification configuration values.
func (n *NotifyConfig) Sanitize() {
	n.WebhookURL = strings.TrimSpace(n.WebhookURL)
	if n.Timeout <= 0 {
		n.Timeout = 5 * time.Second
	}
	if n.RetryLimit < 0 {
		n.RetryLimit = 0
	}
	if n.RetryLimit > model.MaxRetriesCap {
		n.RetryLimit = model.MaxRetriesCap
	}
	if n.Concurrency < 1 {
		n.Concurrency = 1
	}
	if n.WorkerID = strings.TrimSpace(n.WorkerID); n.WorkerID == "" {
		n.WorkerID = "notification-runner"
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// JobRetention is how long terminal jobs are kept before deletion.
	JobRetention time.Duration `env:"REAPER_JOB_RETENTION" envDefault:"168h"` // 7 days

	// MotionStaleAfter is the idle period after which a motion reminder is enqueued.
	MotionStaleAfter time.Duration `env:"REAPER_MOTION_STALE_AFTER" envDefault:"72h"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.JobRetention < 1*time.Hour {
		r.JobRetention = 1 * time.Hour
	}
	if r.MotionStaleAfter < 1*time.Hour {
		r.MotionStaleAfter = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
