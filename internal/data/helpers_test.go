package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/private-judge/judge-api/internal/domain/model"
)

func stringPtr(s string) *string { return &s }

func seedRoom(t *testing.T, db *sql.DB) *model.Room {
	t.Helper()
	room, err := NewRoomRepo(db, RepoConfig{}).Create(context.Background(), &model.Room{
		Title:     "Seeded room",
		CreatorID: "user-a",
	})
	require.NoError(t, err)
	return room
}

func jobRequest(t *testing.T, p model.JobPayload) *model.CreateJobRequest {
	t.Helper()
	req, err := model.NewCreateJobRequest(p)
	require.NoError(t, err)
	return req
}

func rawJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
