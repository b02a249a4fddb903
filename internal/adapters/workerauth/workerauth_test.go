package workerauth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/config"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer  abc ", token: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer"},
		{header: ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/jobs/next", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestStaticVerifier(t *testing.T) {
	_, err := NewStaticVerifier(" ")
	require.Error(t, err)

	v, err := NewStaticVerifier("s3cret")
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "static-worker", id)

	_, err = v.Verify(context.Background(), "s3cre")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNew_Modes(t *testing.T) {
	v, err := New(context.Background(), config.WorkerAuthConfig{Mode: config.WorkerAuthStatic, Token: "t"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticVerifier{}, v)

	v, err = New(context.Background(), config.WorkerAuthConfig{Mode: config.WorkerAuthNone}, nil)
	require.NoError(t, err)
	id, err := v.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous-worker", id)

	_, err = New(context.Background(), config.WorkerAuthConfig{Mode: config.WorkerAuthStatic}, nil)
	require.Error(t, err)
	_, err = New(context.Background(), config.WorkerAuthConfig{Mode: config.WorkerAuthOIDC, OIDCIssuer: "http://idp"}, nil)
	require.Error(t, err)
}

// issuer is a minimal OIDC identity provider serving discovery and one RSA signing key.
type issuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey
}

func newIssuer(t *testing.T) *issuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	iss := &issuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                iss.srv.URL,
			"authorization_endpoint":                iss.srv.URL + "/auth",
			"token_endpoint":                        iss.srv.URL + "/token",
			"jwks_uri":                              iss.srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	iss.srv = httptest.NewServer(mux)
	t.Cleanup(iss.srv.Close)
	return iss
}

// sign returns an RS256 JWT carrying claims.
func (i *issuer) sign(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	signingInput := enc(map[string]string{"alg": "RS256", "kid": "k1", "typ": "JWT"}) + "." + enc(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, i.key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (i *issuer) claims(aud string, exp time.Time) map[string]any {
	return map[string]any{
		"iss": i.srv.URL,
		"sub": "worker-7",
		"aud": aud,
		"iat": time.Now().Add(-time.Minute).Unix(),
		"exp": exp.Unix(),
	}
}

func TestOIDCVerifier(t *testing.T) {
	idp := newIssuer(t)
	ctx := context.Background()

	v, err := NewOIDCVerifier(ctx, OIDCConfig{Issuer: idp.srv.URL + "/", Audience: "judge-workers"})
	require.NoError(t, err)

	id, err := v.Verify(ctx, idp.sign(t, idp.claims("judge-workers", time.Now().Add(time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, "worker-7", id)

	tests := map[string]string{
		"wrong audience": idp.sign(t, idp.claims("someone-else", time.Now().Add(time.Hour))),
		"expired":        idp.sign(t, idp.claims("judge-workers", time.Now().Add(-time.Hour))),
		"garbage":        "not-a-jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestNewOIDCVerifier_Validation(t *testing.T) {
	_, err := NewOIDCVerifier(context.Background(), OIDCConfig{Audience: "a"})
	require.Error(t, err)
	_, err = NewOIDCVerifier(context.Background(), OIDCConfig{Issuer: "http://idp"})
	require.Error(t, err)
}
