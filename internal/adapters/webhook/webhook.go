// Package webhook delivers notification jobs by POSTing them to an HTTP endpoint.
package webhook

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

	"github.com/private-judge/judge-api/internal/adapters/jobrunner"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
)

const maxErrorBodyBytes = 2 * 1024

// Config configures a Sender.
type Config struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// Sender posts notification payloads as JSON. Retries are left to the job queue.
type Sender struct {
	url    string
	client *http.Client
}

var _ core.NotificationSender = (*Sender)(nil)

type event struct {
	Event      model.NotificationEvent `json:"event"`
	RoomID     string                  `json:"room_id,omitempty"`
	Recipients []string                `json:"recipients"`
	Message    string                  `json:"message"`
	SentAt     time.Time               `json:"sent_at"`
}

// NewSender builds a webhook sender.
func NewSender(cfg Config) (*Sender, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Sender{url: url, client: hc}, nil
}

// Send delivers one notification. Any non-2xx response is an error.
func (s *Sender) Send(ctx context.Context, n *model.NotificationJobPayload) error {
	body, err := json.Marshal(event{
		Event:      n.Event,
		RoomID:     n.RoomID,
		Recipients: n.Recipients,
		Message:    n.Message,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Judge-Event", string(n.Event))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("webhook unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NewHandler returns the jobrunner handler for notification jobs. With a nil sender
// every notification completes with delivered=false.
func NewHandler(sender core.NotificationSender, logger *slog.Logger) jobrunner.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notification_handler")

	return func(ctx context.Context, job *model.Job) (json.RawMessage, error) {
		p, err := model.DecodePayload(job.Type, job.Payload)
		if err != nil {
			return nil, err
		}
		n, ok := p.(*model.NotificationJobPayload)
		if !ok {
			return nil, fmt.Errorf("unexpected payload %T for job type %s", p, job.Type)
		}

		delivered := false
		if sender != nil {
			if err := sender.Send(ctx, n); err != nil {
				return nil, err
			}
			delivered = true
		} else {
			logger.DebugContext(ctx, "notification delivery disabled",
				"job_id", job.ID, "event", n.Event, "room_id", n.RoomID)
		}
		return json.Marshal(model.NotificationJobResult{Delivered: delivered})
	}
}
