package core

import (
	"context"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// DebateBrief is the shared context handed to every AI participant of a room.
type DebateBrief struct {
	RoomID            string `json:"room_id"`
	MotionTitle       string `json:"motion_title"`
	MotionDescription string `json:"motion_description"`
	ArgumentA         string `json:"argument_a"`
	ArgumentB         string `json:"argument_b"`
}

// LawyerRequest asks the LLM layer for one lawyer turn.
type LawyerRequest struct {
	DebateBrief
	Side        model.Side       `json:"side"`
	RoundNumber int              `json:"round_number"`
	RoundType   model.RoundType  `json:"round_type"`
	LawyerType  model.LawyerType `json:"lawyer_type"`
	// Transcript holds every turn recorded so far, oldest first.
	Transcript []model.Turn `json:"transcript"`
}

// JudgeRequest asks the LLM layer for the judge decision.
type JudgeRequest struct {
	DebateBrief
	Rounds []*model.Round `json:"rounds"`
}

// JurorRequest asks the LLM layer for one juror's ballot.
type JurorRequest struct {
	JudgeRequest
	JurorNumber int `json:"juror_number"`
}

// DebateAI is the LLM response layer. Implementations return payloads that already
// conform to the structural contracts; callers still validate bounds.
type DebateAI interface {
	Lawyer(ctx context.Context, req LawyerRequest) (*model.TurnContent, error)
	Judge(ctx context.Context, req JudgeRequest) (*model.JudgeDecision, error)
	Juror(ctx context.Context, req JurorRequest) (*model.JuryVote, error)
}

// NotificationSender delivers notification job payloads to room members.
type NotificationSender interface {
	Send(ctx context.Context, n *model.NotificationJobPayload) error
}
