// Package llmgateway implements the LLM response layer over HTTP. Each AI participant
// call is one POST to the gateway; the typed payload is selected from the response
// envelope with a JMESPath expression.
package llmgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

const maxErrorBodyBytes = 4 * 1024

// Gateway routes, relative to the configured base URL.
const (
	lawyerPath = "/v1/lawyer"
	judgePath  = "/v1/judge"
	jurorPath  = "/v1/juror"
)

// Options configures the gateway client.
type Options struct {
	Config config.LLMGatewayConfig
	// HTTPClient is the base transport. With OAuth2 configured it also fetches tokens.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the LLM gateway. It is safe for concurrent use.
type Client struct {
	baseURL    string
	resultPath string
	http       *http.Client
	logger     *slog.Logger
}

var _ core.DebateAI = (*Client)(nil)

// New constructs a gateway client. When client credentials are configured every call
// carries a bearer token obtained from the token endpoint.
func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("LLM gateway URL is required")
	}
	resultPath := strings.TrimSpace(cfg.ResultPath)
	if resultPath == "" {
		resultPath = "data"
	}
	if _, err := jmespath.Compile(resultPath); err != nil {
		return nil, fmt.Errorf("invalid result path %q: %w", resultPath, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}
	hc := base
	if cfg.OAuthEnabled() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		hc = cc.Client(context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base))
		hc.Timeout = timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		resultPath: resultPath,
		http:       hc,
		logger:     logger.With("component", "llm_gateway"),
	}, nil
}

// Lawyer requests one lawyer turn.
func (c *Client) Lawyer(ctx context.Context, req core.LawyerRequest) (*model.TurnContent, error) {
	var out model.TurnContent
	if err := c.call(ctx, "lawyer", lawyerPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Judge requests the judge decision.
func (c *Client) Judge(ctx context.Context, req core.JudgeRequest) (*model.JudgeDecision, error) {
	var out model.JudgeDecision
	if err := c.call(ctx, "judge", judgePath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Juror requests one juror's ballot.
func (c *Client) Juror(ctx context.Context, req core.JurorRequest) (*model.JuryVote, error) {
	var out model.JuryVote
	if err := c.call(ctx, "juror", jurorPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("llm gateway %s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm gateway %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm gateway %s: %w", op, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close gateway response", "op", op, "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("llm gateway %s: unexpected status %d: %s",
			op, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("llm gateway %s: decode response: %w", op, err)
	}
	if err := c.extract(envelope, out); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeValidation, "llm gateway %s: malformed payload", op)
	}
	c.logger.DebugContext(ctx, "llm gateway call", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))
	return nil
}

// extract selects the payload at the result path and decodes it into out.
func (c *Client) extract(envelope, out any) error {
	selected, err := jmespath.Search(c.resultPath, envelope)
	if err != nil {
		return fmt.Errorf("evaluate result path %q: %w", c.resultPath, err)
	}
	if selected == nil {
		return fmt.Errorf("result path %q matched nothing", c.resultPath)
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return fmt.Errorf("re-encode result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
