package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
)

func notification() *model.NotificationJobPayload {
	return &model.NotificationJobPayload{
		RoomID:     "room-1",
		Event:      model.NotificationVerdictReady,
		Recipients: []string{"alice", "bob"},
		Message:    "The verdict is in.",
	}
}

func notificationJob(t *testing.T) *model.Job {
	t.Helper()
	raw, err := json.Marshal(notification())
	require.NoError(t, err)
	return &model.Job{ID: "job-1", Type: model.JobTypeNotification, Payload: raw}
}

func TestNewSender_RequiresURL(t *testing.T) {
	_, err := NewSender(Config{URL: "  "})
	require.Error(t, err)
}

func TestSender_Send(t *testing.T) {
	var got event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "verdict_ready", r.Header.Get("X-Judge-Event"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewSender(Config{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), notification()))

	assert.Equal(t, model.NotificationVerdictReady, got.Event)
	assert.Equal(t, "room-1", got.RoomID)
	assert.Equal(t, []string{"alice", "bob"}, got.Recipients)
	assert.False(t, got.SentAt.IsZero())
}

func TestSender_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	s, err := NewSender(Config{URL: srv.URL})
	require.NoError(t, err)
	err = s.Send(context.Background(), notification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestHandler(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	s, err := NewSender(Config{URL: srv.URL})
	require.NoError(t, err)

	raw, err := NewHandler(s, nil)(context.Background(), notificationJob(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{"delivered":true}`, string(raw))
	assert.Equal(t, 1, hits)
}

func TestHandler_NoSender(t *testing.T) {
	raw, err := NewHandler(nil, nil)(context.Background(), notificationJob(t))
	require.NoError(t, err)
	assert.JSONEq(t, `{"delivered":false}`, string(raw))
}

func TestHandler_InvalidPayload(t *testing.T) {
	job := &model.Job{ID: "job-2", Type: model.JobTypeNotification, Payload: json.RawMessage(`{"event":"verdict_ready"}`)}
	_, err := NewHandler(nil, nil)(context.Background(), job)
	require.Error(t, err)
}
