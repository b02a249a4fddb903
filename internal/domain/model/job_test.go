package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

func TestJobType_ValidAndPriority(t *testing.T) {
	assert.True(t, JobTypeDebate.Valid())
	assert.True(t, JobTypeNotification.Valid())
	assert.False(t, JobType("browser").Valid())

	assert.Equal(t, 1, JobTypeNotification.Priority())
	assert.Equal(t, 2, JobTypeJury.Priority())
	assert.Equal(t, 2, JobTypeJudge.Priority())
	assert.Equal(t, 3, JobTypeDebate.Priority())
}

func TestJobType_UnmarshalText(t *testing.T) {
	var jt JobType
	require.NoError(t, jt.UnmarshalText([]byte(" AI_JURY ")))
	assert.Equal(t, JobTypeJury, jt)
	assert.Error(t, jt.UnmarshalText([]byte("nope")))
}

func TestJobStatus_Classes(t *testing.T) {
	assert.True(t, JobStatusQueued.Runnable())
	assert.True(t, JobStatusRetrying.Runnable())
	assert.False(t, JobStatusRunning.Runnable())

	assert.True(t, JobStatusSucceeded.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
	assert.False(t, JobStatusRetrying.Terminal())
}

func TestCreateJobRequest_Validate(t *testing.T) {
	room := "room-1"
	tooMany := MaxRetriesCap + 1
	zero := 0

	tests := []struct {
		name    string
		req     CreateJobRequest
		wantErr string
	}{
		{
			name: "judge payload",
			req:  CreateJobRequest{Type: JobTypeJudge, RoomID: &room, Payload: json.RawMessage(`{"room_id":"room-1"}`)},
		},
		{
			name: "zero retries allowed",
			req:  CreateJobRequest{Type: JobTypeJudge, Payload: json.RawMessage(`{"room_id":"r"}`), MaxRetries: &zero},
		},
		{
			name:    "unknown type",
			req:     CreateJobRequest{Type: "x", Payload: json.RawMessage(`{}`)},
			wantErr: "invalid job type",
		},
		{
			name:    "missing payload",
			req:     CreateJobRequest{Type: JobTypeJudge},
			wantErr: "payload is required",
		},
		{
			name:    "max retries above cap",
			req:     CreateJobRequest{Type: JobTypeJudge, Payload: json.RawMessage(`{"room_id":"r"}`), MaxRetries: &tooMany},
			wantErr: "max retries",
		},
		{
			name:    "unknown payload field",
			req:     CreateJobRequest{Type: JobTypeJudge, Payload: json.RawMessage(`{"room_id":"r","x":1}`)},
			wantErr: "invalid ai_judge payload",
		},
		{
			name:    "juror count out of range",
			req:     CreateJobRequest{Type: JobTypeJury, Payload: json.RawMessage(`{"room_id":"r","juror_count":9}`)},
			wantErr: "juror count",
		},
		{
			name:    "room mismatch",
			req:     CreateJobRequest{Type: JobTypeJudge, RoomID: &room, Payload: json.RawMessage(`{"room_id":"other"}`)},
			wantErr: "does not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCreateJobRequest(t *testing.T) {
	req, err := NewCreateJobRequest(&JuryJobPayload{RoomID: "room-9", JurorCount: 7})
	require.NoError(t, err)
	assert.Equal(t, JobTypeJury, req.Type)
	require.NotNil(t, req.RoomID)
	assert.Equal(t, "room-9", *req.RoomID)
	assert.Equal(t, DefaultMaxRetries, req.EffectiveMaxRetries())
	require.NoError(t, req.Validate())
}

func TestDecodePayload_Notification(t *testing.T) {
	p, err := DecodePayload(JobTypeNotification,
		json.RawMessage(`{"event":"verdict_ready","recipients":["u1"],"message":"done"}`))
	require.NoError(t, err)
	n, ok := p.(*NotificationJobPayload)
	require.True(t, ok)
	assert.Equal(t, NotificationVerdictReady, n.Event)
	assert.Empty(t, n.Room())
}

func validVote(n int, side Side, confidence int) JuryVote {
	return JuryVote{
		JurorNumber: n,
		Vote:        side,
		Reasoning:   strings.Repeat("r", JurorReasoningMinLen),
		Confidence:  confidence,
	}
}

func TestValidateJobResult(t *testing.T) {
	judge, err := json.Marshal(JudgeJobResult{Decision: JudgeDecision{Reasoning: "clear", ScoreA: 70, ScoreB: 60}})
	require.NoError(t, err)
	badJudge, err := json.Marshal(JudgeJobResult{Decision: JudgeDecision{Reasoning: "clear", ScoreA: 170}})
	require.NoError(t, err)
	jury, err := json.Marshal(JuryJobResult{Votes: []JuryVote{validVote(1, SideA, 5), validVote(2, SideB, 6)}})
	require.NoError(t, err)
	dupJury, err := json.Marshal(JuryJobResult{Votes: []JuryVote{validVote(1, SideA, 5), validVote(1, SideB, 6)}})
	require.NoError(t, err)

	assert.NoError(t, ValidateJobResult(JobTypeDebate, nil))
	assert.NoError(t, ValidateJobResult(JobTypeNotification, json.RawMessage(`null`)))
	assert.NoError(t, ValidateJobResult(JobTypeJudge, judge))
	assert.NoError(t, ValidateJobResult(JobTypeJury, jury))

	for name, tc := range map[string]struct {
		t   JobType
		raw json.RawMessage
	}{
		"judge missing":   {JobTypeJudge, nil},
		"judge bad score": {JobTypeJudge, badJudge},
		"jury duplicate":  {JobTypeJury, dupJury},
		"jury garbage":    {JobTypeJury, json.RawMessage(`{"votes":"x"}`)},
	} {
		t.Run(name, func(t *testing.T) {
			err := ValidateJobResult(tc.t, tc.raw)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

func TestJuryVote_Validate(t *testing.T) {
	v := validVote(7, SideB, 10)
	require.NoError(t, v.Validate())

	draw := validVote(1, Side("draw"), 5)
	assert.Error(t, draw.Validate())

	short := validVote(1, SideA, 5)
	short.Reasoning = "too short"
	assert.Error(t, short.Validate())

	low := validVote(1, SideA, 0)
	assert.Error(t, low.Validate())

	eighth := validVote(8, SideA, 5)
	assert.Error(t, eighth.Validate())
}

func TestJob_Clone(t *testing.T) {
	room := "r"
	j := &Job{ID: "j", RoomID: &room, Payload: json.RawMessage(`{}`)}
	c := j.Clone()
	*c.RoomID = "changed"
	c.Payload[0] = '['
	assert.Equal(t, "r", *j.RoomID)
	assert.Equal(t, `{}`, string(j.Payload))
}
