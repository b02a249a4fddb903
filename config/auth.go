package config

import (
	"fmt"
	"strings"
)

// WorkerAuthMode selects how worker routes authenticate callers.
type WorkerAuthMode string

const (
	// WorkerAuthStatic compares the bearer token against a shared secret.
	WorkerAuthStatic WorkerAuthMode = "static"
	// WorkerAuthOIDC verifies the bearer token as an OIDC ID token.
	WorkerAuthOIDC WorkerAuthMode = "oidc"
	// WorkerAuthNone disables worker authentication (for development only).
	WorkerAuthNone WorkerAuthMode = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for WorkerAuthMode.
func (m *WorkerAuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch WorkerAuthMode(v) {
	case WorkerAuthStatic, WorkerAuthOIDC, WorkerAuthNone:
		*m = WorkerAuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid WorkerAuthMode: %q (valid options: static, oidc, none)", v)
	}
}

// WorkerAuthConfig groups the worker authentication configuration.
type WorkerAuthConfig struct {
	// Mode determines which verifier protects the worker routes.
	Mode WorkerAuthMode `env:"MODE" envDefault:"static"`

	// Token is the shared secret used when Mode=static.
	Token string `env:"TOKEN"`

	// OIDCIssuer and OIDCAudience are used when Mode=oidc.
	OIDCIssuer   string `env:"OIDC_ISSUER"`
	OIDCAudience string `env:"OIDC_AUDIENCE"`
}

// Sanitize trims values.
func (w *WorkerAuthConfig) Sanitize() {
	w.Token = strings.TrimSpace(w.Token)
	w.OIDCIssuer = strings.TrimSpace(w.OIDCIssuer)
	w.OIDCAudience = strings.TrimSpace(w.OIDCAudience)
}

// Validate reports a configuration that cannot authenticate any worker.
func (w *WorkerAuthConfig) Validate() error {
	switch w.Mode {
	case WorkerAuthStatic:
		if w.Token == "" {
			return fmt.Errorf("WORKER_AUTH_TOKEN is required when WORKER_AUTH_MODE=static")
		}
	case WorkerAuthOIDC:
		if w.OIDCIssuer == "" || w.OIDCAudience == "" {
			return fmt.Errorf("WORKER_AUTH_OIDC_ISSUER and WORKER_AUTH_OIDC_AUDIENCE are required when WORKER_AUTH_MODE=oidc")
		}
	case WorkerAuthNone:
	default:
		return fmt.Errorf("invalid WorkerAuthMode: %q", w.Mode)
	}
	return nil
}
