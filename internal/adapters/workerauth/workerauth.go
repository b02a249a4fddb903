// Package workerauth authenticates the bearer tokens presented by job workers on the
// worker routes.
package workerauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/private-judge/judge-api/config"
)

// ErrUnauthorized is returned for a missing, malformed or rejected token.
var ErrUnauthorized = errors.New("worker is not authorized")

// Verifier checks a bearer token and returns the worker identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// New builds the verifier selected by cfg.Mode.
//
//nolint:ireturn // the mode decides the concrete verifier
func New(ctx context.Context, cfg config.WorkerAuthConfig, hc *http.Client) (Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case config.WorkerAuthStatic:
		return NewStaticVerifier(cfg.Token)
	case config.WorkerAuthOIDC:
		return NewOIDCVerifier(ctx, OIDCConfig{Issuer: cfg.OIDCIssuer, Audience: cfg.OIDCAudience, HTTPClient: hc})
	default:
		return AllowAll{}, nil
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// StaticVerifier accepts a single shared secret.
type StaticVerifier struct {
	token []byte
}

// NewStaticVerifier constructs a StaticVerifier.
func NewStaticVerifier(token string) (*StaticVerifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("static worker token is required")
	}
	return &StaticVerifier{token: []byte(token)}, nil
}

// Verify compares the token in constant time.
func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return "", ErrUnauthorized
	}
	return "static-worker", nil
}

// AllowAll accepts every caller. Development only.
type AllowAll struct{}

// Verify always succeeds.
func (AllowAll) Verify(context.Context, string) (string, error) { return "anonymous-worker", nil }

// OIDCConfig configures an OIDCVerifier.
type OIDCConfig struct {
	Issuer     string
	Audience   string
	HTTPClient *http.Client // Optional, defaults to a client with a 30s timeout
}

// OIDCVerifier verifies worker tokens as OIDC ID tokens issued for the configured
// audience. The token subject identifies the worker.
type OIDCVerifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and prepares token verification.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}

	// The key set keeps using this context to refresh keys, so it must outlive ctx.
	discoveryCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, hc)
	issuer := strings.TrimSuffix(strings.TrimSuffix(cfg.Issuer, "/"), "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(discoveryCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	return &OIDCVerifier{verifier: op.Verifier(&gooidc.Config{ClientID: cfg.Audience})}, nil
}

// Verify checks signature, issuer, audience and expiry and returns the token subject.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (string, error) {
	idTok, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if idTok.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return idTok.Subject, nil
}
