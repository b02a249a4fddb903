// Package model defines the core data types shared by the judge workflow: jobs, rooms,
// motions, debate rounds, and verdict inputs and outputs.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// JobType represents the type of job to be executed.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeDebate drives the three-round lawyer exchange for a room.
	JobTypeDebate JobType = "ai_debate"
	// JobTypeJudge produces the single judge decision for a room.
	JobTypeJudge JobType = "ai_judge"
	// JobTypeJury collects the jury ballots for a room.
	JobTypeJury JobType = "ai_jury"
	// JobTypeNotification delivers a user-facing notification.
	JobTypeNotification JobType = "notification"

	// JobStatusQueued indicates a job is waiting to be picked up.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a worker is executing the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded indicates the job finished with a result.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed indicates the job failed; terminal once retries are exhausted.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates a failed job scheduled for another attempt. Runnable.
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusCancelled indicates the job was cancelled by a room member.
	JobStatusCancelled JobStatus = "cancelled"
)

const (
	// DefaultMaxRetries is applied when a create request does not set max_retries.
	DefaultMaxRetries = 3
	// MaxRetriesCap is the largest max_retries a job may be created with.
	MaxRetriesCap = 10
)

// AllJobTypes lists every job type in priority order.
var AllJobTypes = []JobType{JobTypeNotification, JobTypeJury, JobTypeJudge, JobTypeDebate}

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeDebate, JobTypeJudge, JobTypeJury, JobTypeNotification:
		return true
	}
	return false
}

// Priority returns the scheduling priority of the type. Lower runs first.
func (t JobType) Priority() int {
	switch t {
	case JobTypeNotification:
		return 1
	case JobTypeJury, JobTypeJudge:
		return 2
	case JobTypeDebate:
		return 3
	}
	return 100
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed,
		JobStatusRetrying, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether a job in this status carries completed_at.
// A failed job may still be retried while it has retries left.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// Runnable reports whether a worker may begin executing a job in this status.
func (s JobStatus) Runnable() bool {
	return s == JobStatusQueued || s == JobStatusRetrying
}

// JobProgress reports how far a running job has advanced.
type JobProgress struct {
	Step      int `json:"step"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// Job represents a unit of asynchronous work attached to a room.
type Job struct {
	ID           string          `json:"id"                      db:"id"`
	Type         JobType         `json:"type"                    db:"type"`
	Status       JobStatus       `json:"status"                  db:"status"`
	Priority     int             `json:"priority"                db:"priority"`
	RoomID       *string         `json:"room_id,omitempty"       db:"room_id"`
	Payload      json.RawMessage `json:"payload"                 db:"payload"`
	Result       json.RawMessage `json:"result,omitempty"        db:"result"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	RetryCount   int             `json:"retry_count"             db:"retry_count"`
	MaxRetries   int             `json:"max_retries"             db:"max_retries"`
	Progress     *JobProgress    `json:"progress,omitempty"      db:"progress"`
	WorkerID     *string         `json:"worker_id,omitempty"     db:"worker_id"`
	ScheduledAt  time.Time       `json:"scheduled_at"            db:"scheduled_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"  db:"completed_at"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// Clone returns a deep copy of the job so callers can mutate it without aliasing.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.RoomID = clonePtr(j.RoomID)
	c.ErrorMessage = clonePtr(j.ErrorMessage)
	c.WorkerID = clonePtr(j.WorkerID)
	c.StartedAt = clonePtr(j.StartedAt)
	c.CompletedAt = clonePtr(j.CompletedAt)
	c.Progress = clonePtr(j.Progress)
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}

// RoomIDValue returns the room id or an empty string.
func (j *Job) RoomIDValue() string {
	if j == nil || j.RoomID == nil {
		return ""
	}
	return *j.RoomID
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Type        JobType         `json:"type"`
	RoomID      *string         `json:"room_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxRetries  *int            `json:"max_retries,omitempty"`
}

// NewCreateJobRequest builds a request from a typed payload.
func NewCreateJobRequest(p JobPayload) (*CreateJobRequest, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.JobType(), err)
	}
	roomID := p.Room()
	req := &CreateJobRequest{Type: p.JobType(), Payload: raw}
	if roomID != "" {
		req.RoomID = &roomID
	}
	return req, nil
}

// EffectiveMaxRetries returns the requested max_retries or the default.
func (r *CreateJobRequest) EffectiveMaxRetries() int {
	if r.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *r.MaxRetries
}

// Validate validates the request, including decoding the payload for its type.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return apperrors.ValidationField("type", "invalid job type")
	}
	if len(r.Payload) == 0 {
		return apperrors.ValidationField("payload", "payload is required")
	}
	if mr := r.EffectiveMaxRetries(); mr < 0 || mr > MaxRetriesCap {
		return apperrors.ValidationField("max_retries",
			fmt.Sprintf("max retries must be between 0 and %d", MaxRetriesCap))
	}
	p, err := DecodePayload(r.Type, r.Payload)
	if err != nil {
		return err
	}
	if r.RoomID != nil && p.Room() != "" && *r.RoomID != p.Room() {
		return apperrors.ValidationField("room_id", "room_id does not match payload room")
	}
	return nil
}

// JobStats represents counts of jobs per status.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
	Cancelled int `json:"cancelled"`
}
