package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
)

func TestNewBackoffPolicy(t *testing.T) {
	_, err := NewBackoffPolicy(0, false)
	require.ErrorIs(t, err, ErrInvalidBackoffBase)

	p, err := NewBackoffPolicy(500*time.Millisecond, false)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, p.Delay(0))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := BackoffPolicy{}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 512*time.Second, p.Delay(9))
	assert.Equal(t, time.Second, p.Delay(-4))
}

func TestBackoffPolicy_Jitter(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Jitter: true, Rand: func() float64 { return 0.5 }}
	assert.Equal(t, 2*time.Second+200*time.Millisecond, p.Delay(1))

	p.Rand = func() float64 { return 0 }
	assert.Equal(t, 2*time.Second, p.Delay(1))
}

func TestIsRetryable(t *testing.T) {
	for _, msg := range []string{
		"context deadline exceeded",
		"LLM gateway returned 503 Service Unavailable",
		"Rate limit reached for model",
		"read tcp: connection reset by peer",
		"upstream timeout",
	} {
		assert.True(t, IsRetryable(msg), msg)
	}
	for _, msg := range []string{"invalid judge payload", "jury result is required", ""} {
		assert.False(t, IsRetryable(msg), msg)
	}
}

func TestShouldRetry(t *testing.T) {
	msg := "gateway timeout"
	failed := &model.Job{Status: model.JobStatusFailed, MaxRetries: 3, ErrorMessage: &msg}
	assert.True(t, ShouldRetry(failed, nil))

	no := false
	assert.False(t, ShouldRetry(failed, &no))

	exhausted := &model.Job{Status: model.JobStatusFailed, MaxRetries: 3, RetryCount: 3, ErrorMessage: &msg}
	yes := true
	assert.False(t, ShouldRetry(exhausted, &yes))

	perm := "validation failed"
	permanent := &model.Job{Status: model.JobStatusFailed, MaxRetries: 3, ErrorMessage: &perm}
	assert.False(t, ShouldRetry(permanent, nil))
	assert.True(t, ShouldRetry(permanent, &yes))
}
