// Package slack posts job failure alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL    string
	Channel       string
	Username      string
	Timeout       time.Duration
	RetryLimit    int
	Client        *http.Client
	RoomURLPrefix string
	// RetryDelay is the linear back-off step between attempts. Defaults to 200ms.
	RetryDelay time.Duration
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	retryDelay time.Duration
	roomURL    *url.URL
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "private-judge"
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   username,
		retryLimit: max(cfg.RetryLimit, 0),
		retryDelay: delay,
		roomURL:    parsePrefix(cfg.RoomURLPrefix),
		client:     hc,
	}, nil
}

// SendJobFailure posts a formatted message to Slack, retrying with linear back-off.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryLimit; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, time.Duration(attempt)*c.retryDelay); err != nil {
				return err
			}
		}
		if lastErr = c.post(ctx, body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) formatMessage(p notify.JobFailurePayload) message {
	ts := p.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString("*Job failure alert*")
	if p.JobID != "" {
		fmt.Fprintf(&b, " `%s`", p.JobID)
	}
	if p.JobType != "" {
		fmt.Fprintf(&b, " (%s)", p.JobType)
	}
	b.WriteByte('\n')

	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	field(&b, "Severity", severity)
	field(&b, "Room", c.roomValue(p.RoomID, p.RoomTitle))
	if p.MaxRetries > 0 || p.RetryCount > 0 {
		field(&b, "Retries", strconv.Itoa(p.RetryCount)+"/"+strconv.Itoa(p.MaxRetries))
	}
	field(&b, "Error class", p.ErrorClass)
	field(&b, "Error", escape(p.Error))

	if len(p.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    • %s: %s\n", k, escape(p.Metadata[k]))
		}
	}
	b.WriteString("• Timestamp: ")
	b.WriteString(ts.UTC().Format(time.RFC3339))

	return message{Text: b.String(), Username: c.username, Channel: c.channel}
}

func field(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "• %s: %s\n", label, value)
}

func (c *Client) roomValue(roomID, title string) string {
	id := escape(strings.TrimSpace(roomID))
	name := escape(strings.TrimSpace(title))
	if id == "" {
		return name
	}
	label := id
	if name != "" {
		label = name + " (" + id + ")"
	}
	if c.roomURL == nil {
		return label
	}
	return "<" + c.roomURL.JoinPath(strings.TrimSpace(roomID)).String() + "|" + label + ">"
}

func parsePrefix(prefix string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(prefix))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

func escape(value string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(value)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
