package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// H2CEnabled serves cleartext HTTP/2 so long-polling workers can multiplex
	// requests over one connection.
	H2CEnabled bool `env:"HTTP_H2C_ENABLED" envDefault:"false"`

	// MaxWait caps the wait parameter of GET /api/jobs/next.
	MaxWait time.Duration `env:"HTTP_MAX_WAIT" envDefault:"30s"`

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.MaxWait < 0 {
		h.MaxWait = 0
	}
	if h.MaxWait > 2*time.Minute {
		h.MaxWait = 2 * time.Minute
	}
	if h.MaxBodyBytes <= 0 {
		h.MaxBodyBytes = 1 << 20
	}
}
