package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Worker authentication configuration
//   - database.go: Store, database and cache configuration
//   - http.go: HTTP server configuration
//   - jobs.go: Job retry policy
//   - ai.go: AI runner and LLM gateway configuration
//   - services.go: Service mode and background runner configuration
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, relaxed auth).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Store selects the repository implementation.
	Store StoreDriver `env:"STORE_DRIVER" envDefault:"postgres"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// WorkerAuth protects the worker routes.
	WorkerAuth WorkerAuthConfig `envPrefix:"WORKER_AUTH_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	// Jobs holds the retry policy applied by the job queue.
	Jobs JobsConfig `envPrefix:"JOBS_"`

	// AIRunner configures the in-process AI worker pool.
	AIRunner AIRunnerConfig `envPrefix:"AI_RUNNER_"`

	// LLMGateway configures the LLM response layer client used by the AI runner.
	LLMGateway LLMGatewayConfig `envPrefix:"LLM_GATEWAY_"`

	// Notify configures notification delivery.
	Notify NotifyConfig `envPrefix:"NOTIFY_"`

	// Reaper configuration
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Cache.Sanitize()
	c.WorkerAuth.Sanitize()
	c.Jobs.Sanitize()
	c.AIRunner.Sanitize()
	c.LLMGateway.Sanitize()
	c.Notify.Sanitize()
	c.Reaper.Sanitize()
	c.Observability.Sanitize()

	if !c.Store.Valid() {
		c.Store = StoreDriverPostgres
	}

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.serviceEnabled(ServiceModeHTTP) }

// IsAIRunnerEnabled returns true if the AI runner service is enabled.
func (c *AppConfig) IsAIRunnerEnabled() bool { return c.serviceEnabled(ServiceModeAIRunner) }

// IsNotificationRunnerEnabled returns true if the notification runner service is enabled.
func (c *AppConfig) IsNotificationRunnerEnabled() bool {
	return c.serviceEnabled(ServiceModeNotificationRunner)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.serviceEnabled(ServiceModeReaper) }
