package job

import (
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// DefaultBackoffBase is the first retry delay.
const DefaultBackoffBase = time.Second

// maxBackoffShift keeps base * 2^n from overflowing time.Duration.
const maxBackoffShift = 32

// jitterFraction is the largest share of the delay added when jitter is enabled.
const jitterFraction = 0.2

// ErrInvalidBackoffBase indicates the configured base delay is not positive.
var ErrInvalidBackoffBase = errors.New("backoff base must be positive")

// BackoffPolicy computes the delay before a retried job becomes runnable.
type BackoffPolicy struct {
	Base   time.Duration
	Jitter bool
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// NewBackoffPolicy constructs a policy with the given base delay.
func NewBackoffPolicy(base time.Duration, jitter bool) (BackoffPolicy, error) {
	if base <= 0 {
		return BackoffPolicy{}, ErrInvalidBackoffBase
	}
	return BackoffPolicy{Base: base, Jitter: jitter}, nil
}

// Delay returns base * 2^retryCount, plus up to 20% jitter when enabled.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	shift := min(max(retryCount, 0), maxBackoffShift)
	delay := base * time.Duration(math.Pow(2, float64(shift)))
	if !p.Jitter {
		return delay
	}
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return delay + time.Duration(float64(delay)*jitterFraction*r())
}

// retryableTags are substrings of failure messages that indicate a transient fault.
var retryableTags = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"service unavailable",
	"temporarily unavailable",
	"overloaded",
	"connection reset",
	"connection refused",
	"econnreset",
	"network",
	"eof",
}

// IsRetryable reports whether a failure message matches a transient-fault tag.
func IsRetryable(message string) bool {
	m := strings.ToLower(message)
	for _, tag := range retryableTags {
		if strings.Contains(m, tag) {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether a failed job should go through Retry. An explicit
// override from the worker takes precedence over message classification.
func ShouldRetry(j *model.Job, override *bool) bool {
	if j.Status != model.JobStatusFailed || j.RetryCount >= j.MaxRetries {
		return false
	}
	if override != nil {
		return *override
	}
	return j.ErrorMessage != nil && IsRetryable(*j.ErrorMessage)
}
