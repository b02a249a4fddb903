package config

import (
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// AIRunnerConfig contains the in-process AI worker pool configuration.
type AIRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"CONCURRENCY" envDefault:"2"`

	// JobTypes is the comma-separated list of job types the runner claims.
	JobTypes []model.JobType `env:"JOB_TYPES" envDefault:"ai_debate,ai_judge,ai_jury" envSeparator:","`

	// WorkerID identifies the runner in claimed jobs. Goroutine indexes are appended.
	WorkerID string `env:"WORKER_ID" envDefault:"ai-runner"`

	// PollWait is how long an idle worker waits for a job notification before polling again.
	PollWait time.Duration `env:"POLL_WAIT" envDefault:"30s"`
}

// Sanitize applies guardrails to AI runner configuration values.
func (a *AIRunnerConfig) Sanitize() {
	if a.Concurrency < 1 {
		a.Concurrency = 1
	}
	if a.Concurrency > 64 {
		a.Concurrency = 64
	}
	kept := a.JobTypes[:0]
	for _, t := range a.JobTypes {
		if t.Valid() && t != model.JobTypeNotification {
			kept = append(kept, t)
		}
	}
	a.JobTypes = kept
	if len(a.JobTypes) == 0 {
		a.JobTypes = []model.JobType{model.JobTypeDebate, model.JobTypeJudge, model.JobTypeJury}
	}
	if a.WorkerID = strings.TrimSpace(a.WorkerID); a.WorkerID == "" {
		a.WorkerID = "ai-runner"
	}
	if a.PollWait < time.Second {
		a.PollWait = time.Second
	}
}

// LLMGatewayConfig configures the HTTP client of the LLM response layer.
type LLMGatewayConfig struct {
	// URL is the base URL of the gateway. Required when the AI runner is enabled.
	URL string `env:"URL"`

	// ResultPath is a JMESPath expression selecting the typed payload from the
	// gateway response envelope.
	ResultPath string `env:"RESULT_PATH" envDefault:"data"`

	// Timeout bounds one gateway call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`

	// OAuth2 client credentials. When ClientID is empty the gateway is called
	// without authentication.
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	TokenURL     string   `env:"TOKEN_URL"`
	Scopes       []string `env:"SCOPES"        envSeparator:" "`
}

// Sanitize applies guardrails to gateway configuration values.
func (l *LLMGatewayConfig) Sanitize() {
	l.URL = strings.TrimRight(strings.TrimSpace(l.URL), "/")
	if l.ResultPath = strings.TrimSpace(l.ResultPath); l.ResultPath == "" {
		l.ResultPath = "data"
	}
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	l.ClientID = strings.TrimSpace(l.ClientID)
	l.TokenURL = strings.TrimSpace(l.TokenURL)
}

// OAuthEnabled reports whether client credentials are configured.
func (l *LLMGatewayConfig) OAuthEnabled() bool {
	return l.ClientID != "" && l.TokenURL != ""
}
