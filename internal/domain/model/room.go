package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// RoomStatus is the top-level lifecycle status of a debate room.
type RoomStatus string

const (
	// RoomStatusWaitingParticipant is a room waiting for its second member.
	RoomStatusWaitingParticipant RoomStatus = "waiting_participant"
	// RoomStatusAgendaNegotiation is a room negotiating its motion.
	RoomStatusAgendaNegotiation RoomStatus = "agenda_negotiation"
	// RoomStatusArgumentsSubmission is a room collecting both sides' arguments.
	RoomStatusArgumentsSubmission RoomStatus = "arguments_submission"
	// RoomStatusAIProcessing is a room whose debate, judge and jury jobs are running.
	RoomStatusAIProcessing RoomStatus = "ai_processing"
	// RoomStatusCompleted is a room with a verdict.
	RoomStatusCompleted RoomStatus = "completed"
	// RoomStatusCancelled is a room abandoned by a member.
	RoomStatusCancelled RoomStatus = "cancelled"
)

// Valid returns true if the status is known.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusWaitingParticipant, RoomStatusAgendaNegotiation, RoomStatusArgumentsSubmission,
		RoomStatusAIProcessing, RoomStatusCompleted, RoomStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusCompleted || s == RoomStatusCancelled
}

// Argument bounds.
const (
	RoomTitleMinLen = 3
	RoomTitleMaxLen = 200
	ArgumentMinLen  = 50
	ArgumentMaxLen  = 5000
)

// Room is the aggregate owning a debate's motion, jobs, rounds and verdict.
type Room struct {
	ID            string     `json:"id"                       db:"id"`
	Title         string     `json:"title"                    db:"title"`
	CreatorID     string     `json:"creator_id"               db:"creator_id"`
	ParticipantID *string    `json:"participant_id,omitempty" db:"participant_id"`
	Status        RoomStatus `json:"status"                   db:"status"`
	ArgumentA     *string    `json:"argument_a,omitempty"     db:"argument_a"`
	ArgumentB     *string    `json:"argument_b,omitempty"     db:"argument_b"`
	Stalled       bool       `json:"stalled"                  db:"stalled"`
	StalledReason *string    `json:"stalled_reason,omitempty" db:"stalled_reason"`
	StalledJobID  *string    `json:"stalled_job_id,omitempty" db:"stalled_job_id"`
	StalledAt     *time.Time `json:"stalled_at,omitempty"     db:"stalled_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"   db:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"               db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"               db:"updated_at"`
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.ParticipantID = clonePtr(r.ParticipantID)
	c.ArgumentA = clonePtr(r.ArgumentA)
	c.ArgumentB = clonePtr(r.ArgumentB)
	c.StalledReason = clonePtr(r.StalledReason)
	c.StalledJobID = clonePtr(r.StalledJobID)
	c.StalledAt = clonePtr(r.StalledAt)
	c.CompletedAt = clonePtr(r.CompletedAt)
	return &c
}

// SideOf returns the side argued by userID, if the user is a member.
func (r *Room) SideOf(userID string) (Side, bool) {
	switch {
	case userID == "":
		return "", false
	case r.CreatorID == userID:
		return SideA, true
	case r.ParticipantID != nil && *r.ParticipantID == userID:
		return SideB, true
	}
	return "", false
}

// IsMember reports whether userID belongs to the room.
func (r *Room) IsMember(userID string) bool {
	_, ok := r.SideOf(userID)
	return ok
}

// Argument returns the submitted argument of a side.
func (r *Room) Argument(side Side) *string {
	if side == SideA {
		return r.ArgumentA
	}
	return r.ArgumentB
}

// BothArgumentsSubmitted reports whether both sides have submitted.
func (r *Room) BothArgumentsSubmitted() bool {
	return r.ArgumentA != nil && r.ArgumentB != nil
}

// CreateRoomRequest creates a new room.
type CreateRoomRequest struct {
	Title     string `json:"title"`
	CreatorID string `json:"-"`
}

// Validate validates the request.
func (r *CreateRoomRequest) Validate() error {
	if strings.TrimSpace(r.CreatorID) == "" {
		return apperrors.ValidationField("creator_id", "creator id is required")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(r.Title))
	if n < RoomTitleMinLen || n > RoomTitleMaxLen {
		return apperrors.ValidationField("title",
			fmt.Sprintf("title must be %d-%d characters", RoomTitleMinLen, RoomTitleMaxLen))
	}
	return nil
}

// ValidateArgument checks an argument's length bounds.
func ValidateArgument(content string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n < ArgumentMinLen || n > ArgumentMaxLen {
		return apperrors.ValidationField("content",
			fmt.Sprintf("argument must be %d-%d characters", ArgumentMinLen, ArgumentMaxLen))
	}
	return nil
}

// RoomStatusView is the lifecycle state exposed to the web layer, including the stalled
// substate of a pipeline that exhausted its retries.
type RoomStatusView struct {
	Room         *Room         `json:"room"`
	Stalled      bool          `json:"stalled"`
	StalledJob   *string       `json:"stalled_job_id,omitempty"`
	LastJobError *string       `json:"last_job_error,omitempty"`
	RetryCount   int           `json:"retry_count"`
	Jobs         []JobSummary  `json:"jobs"`
	Verdict      *Verdict      `json:"verdict,omitempty"`
	Motion       *MotionStatus `json:"motion,omitempty"`
}

// JobSummary is a compact view of a room's job.
type JobSummary struct {
	ID           string       `json:"id"`
	Type         JobType      `json:"type"`
	Status       JobStatus    `json:"status"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	Progress     *JobProgress `json:"progress,omitempty"`
}

// MotionStatus is a compact view of the room's motion.
type MotionStatus struct {
	ID                   string       `json:"id"`
	Status               MotionState  `json:"status"`
	IsStale              bool         `json:"is_stale"`
	LatestActor          string       `json:"latest_actor"`
	LatestAction         MotionAction `json:"latest_action"`
	AwaitingResponseFrom string       `json:"awaiting_response_from,omitempty"`
}
