package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/bootstrap"
	"github.com/private-judge/judge-api/internal/domain/model"
)

func TestIsLikelyRemoteHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"", false},
		{"localhost", false},
		{" LOCALHOST ", false},
		{"127.0.0.1", false},
		{"127.0.0.5", false},
		{"::1", false},
		{"postgres.local", false},
		{"10.0.0.3", true},
		{"db.prod.example.com", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLikelyRemoteHost(tt.host), tt.host)
	}
}

func TestParseFlags(t *testing.T) {
	t.Run("migrate rejects non-positive timeout", func(t *testing.T) {
		_, err := parseMigrateFlags([]string{"-timeout", "0s"})
		require.Error(t, err)

		opts, err := parseMigrateFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, defaultMigrationTimeout, opts.Timeout)
	})

	t.Run("db-seed allow remote", func(t *testing.T) {
		opts, err := parseDBSeedFlags([]string{"-allow-remote", "-timeout", "30s"})
		require.NoError(t, err)
		assert.True(t, opts.AllowRemote)
		assert.Equal(t, 30*time.Second, opts.Timeout)
	})

	t.Run("stalled-rooms limit", func(t *testing.T) {
		opts, err := parseStalledRoomsFlags(nil)
		require.NoError(t, err)
		assert.Equal(t, defaultStalledLimit, opts.Limit)

		_, err = parseStalledRoomsFlags([]string{"-limit", "-1"})
		require.Error(t, err)
	})

	t.Run("requeue-job needs a uuid", func(t *testing.T) {
		_, err := parseRequeueJobFlags(nil)
		require.Error(t, err)

		_, err = parseRequeueJobFlags([]string{"-id", "job-1"})
		require.Error(t, err)

		opts, err := parseRequeueJobFlags([]string{"-id", "9b2f7c1e-4a7d-4d9e-b1a2-3f4e5d6c7b8a"})
		require.NoError(t, err)
		assert.Equal(t, "9b2f7c1e-4a7d-4d9e-b1a2-3f4e5d6c7b8a", opts.JobID)
	})
}

func TestGuardRemoteHost(t *testing.T) {
	cmdCtx := &commandContext{Config: config.AppConfig{Postgres: config.DBConfig{Host: "db.prod.example.com"}}}
	remote, err := guardRemoteHost(cmdCtx, false, "seed")
	assert.True(t, remote)
	require.ErrorContains(t, err, "--allow-remote")

	cmdCtx.Config.Postgres.Host = "localhost"
	remote, err = guardRemoteHost(cmdCtx, false, "seed")
	assert.False(t, remote)
	require.NoError(t, err)
}

func TestWithServices_RequiresPostgres(t *testing.T) {
	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.AppConfig{Store: config.StoreDriverMemory},
	}
	called := false
	err := withServices(cmdCtx, time.Second, func(context.Context, bootstrap.ServiceContainer) error {
		called = true
		return nil
	})
	require.ErrorContains(t, err, "STORE_DRIVER=postgres")
	assert.False(t, called)
}

func TestRenderStalledRooms(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stalledAt := now.Add(-90 * time.Second)
	reason := "ai_debate job failed after 3 attempts: llm gateway lawyer: unexpected status 503 from upstream"
	jobID := "job-1"

	var buf bytes.Buffer
	require.NoError(t, renderStalledRooms(&buf, []*model.Room{{
		ID:            "room-1",
		Status:        model.RoomStatusAIProcessing,
		Stalled:       true,
		StalledAt:     &stalledAt,
		StalledReason: &reason,
		StalledJobID:  &jobID,
	}}, now))

	out := buf.String()
	assert.Contains(t, out, "STALLED FOR")
	assert.Contains(t, out, "room-1")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "1 stalled room(s)")

	buf.Reset()
	require.NoError(t, renderStalledRooms(&buf, nil, now))
	assert.Equal(t, "No stalled rooms.\n", buf.String())
}

func TestRenderJobStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJobStats(&buf, &model.JobStats{Queued: 2, Running: 1, Failed: 3}))

	out := buf.String()
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "cancelled")
	assert.Regexp(t, `total\s+6`, out)
}

func TestRenderJob(t *testing.T) {
	roomID := "room-1"
	var buf bytes.Buffer
	require.NoError(t, renderJob(&buf, &model.Job{
		ID:          "job-1",
		Type:        model.JobTypeDebate,
		Status:      model.JobStatusQueued,
		RoomID:      &roomID,
		RetryCount:  0,
		MaxRetries:  3,
		ScheduledAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	out := buf.String()
	assert.Contains(t, out, "ai_debate")
	assert.Contains(t, out, "0/3")
	assert.Contains(t, out, "2025-03-01T12:00:00Z")
}
