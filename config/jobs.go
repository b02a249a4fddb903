package config

import (
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// JobsConfig is the retry policy of the job queue.
type JobsConfig struct {
	// DefaultMaxRetries applies to jobs created without an explicit max_retries.
	DefaultMaxRetries int `env:"DEFAULT_MAX_RETRIES" envDefault:"3"`

	// MaxRetriesCap is the largest max_retries a job may carry.
	MaxRetriesCap int `env:"MAX_RETRIES_CAP" envDefault:"10"`

	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`

	// BackoffJitter adds up to 20% random delay on top of the exponential back-off.
	BackoffJitter bool `env:"BACKOFF_JITTER" envDefault:"false"`
}

// Sanitize applies guardrails to job policy values.
func (j *JobsConfig) Sanitize() {
	if j.MaxRetriesCap < 0 || j.MaxRetriesCap > model.MaxRetriesCap {
		j.MaxRetriesCap = model.MaxRetriesCap
	}
	if j.DefaultMaxRetries < 0 {
		j.DefaultMaxRetries = 0
	}
	if j.DefaultMaxRetries > j.MaxRetriesCap {
		j.DefaultMaxRetries = j.MaxRetriesCap
	}
	if j.BackoffBase <= 0 {
		j.BackoffBase = time.Second
	}
}
