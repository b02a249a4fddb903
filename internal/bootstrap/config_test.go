package bootstrap

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/domain/model"
)

// testConfig parses defaults plus overrides without reading the process environment.
func testConfig(t *testing.T, overrides map[string]string) *config.AppConfig {
	t.Helper()
	environment := map[string]string{
		"SERVICES":          "http",
		"STORE_DRIVER":      "memory",
		"WORKER_AUTH_TOKEN": "worker-secret",
	}
	for k, v := range overrides {
		environment[k] = v
	}
	var cfg config.AppConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Environment: environment}))
	cfg.Sanitize()
	return &cfg
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVICES", "http,reaper")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("WORKER_AUTH_TOKEN", "  secret  ")
	t.Setenv("AI_RUNNER_JOB_TYPES", "ai_debate,notification")
	t.Setenv("HTTP_MAX_WAIT", "10m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.StoreDriverMemory, cfg.Store)
	assert.Equal(t, "secret", cfg.WorkerAuth.Token)
	assert.Equal(t, []model.JobType{model.JobTypeDebate}, cfg.AIRunner.JobTypes, "notification jobs belong to the notification runner")
	assert.Equal(t, 2*time.Minute, cfg.HTTP.MaxWait)
	assert.Equal(t, 72*time.Hour, cfg.Reaper.MotionStaleAfter)
}

func TestLoadConfig_InvalidStoreDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "http with static token", cfg: testConfig(t, nil)},
		{name: "http without token", cfg: testConfig(t, map[string]string{"WORKER_AUTH_TOKEN": ""}), wantErr: true},
		{name: "http with auth disabled", cfg: testConfig(t, map[string]string{"WORKER_AUTH_MODE": "none", "WORKER_AUTH_TOKEN": ""})},
		{name: "ai runner without gateway", cfg: testConfig(t, map[string]string{"SERVICES": "ai-runner"}), wantErr: true},
		{
			name: "ai runner with gateway",
			cfg:  testConfig(t, map[string]string{"SERVICES": "ai-runner", "LLM_GATEWAY_URL": "http://gateway:8000/"}),
		},
		{name: "unknown service", cfg: &config.AppConfig{Services: "http,crawler"}, wantErr: true},
		{name: "no services", cfg: &config.AppConfig{Services: " , "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	cfg := &config.AppConfig{Services: "reaper, http,notification-runner"}
	assert.Equal(t, []string{"http", "notification-runner", "reaper"}, GetEnabledServices(cfg))

	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}
