package testutil

import (
	"fmt"
	"strings"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// Fixture users.
const (
	CreatorID     = "user-a"
	ParticipantID = "user-b"
)

// Text returns a string of n characters, for exercising length bounds.
func Text(n int) string {
	return strings.Repeat("x", n)
}

// MotionTitle is a title within the motion bounds.
const MotionTitle = "Remote work beats office work"

// MotionDescription is a description within the motion bounds.
const MotionDescription = "Whether fully remote teams deliver better outcomes than co-located teams over a year."

// Argument returns a valid argument for a side.
func Argument(side model.Side) string {
	return fmt.Sprintf("Side %s argues that the evidence clearly supports its position on this motion.", side)
}

// RoomBuilder provides a fluent interface for building rooms in a given lifecycle status.
type RoomBuilder struct {
	room *model.Room
}

// NewRoom creates a RoomBuilder with a titled room owned by CreatorID.
func NewRoom() *RoomBuilder {
	return &RoomBuilder{room: &model.Room{
		Title:     "Test room",
		CreatorID: CreatorID,
		Status:    model.RoomStatusWaitingParticipant,
	}}
}

// WithID sets the room id.
func (b *RoomBuilder) WithID(id string) *RoomBuilder {
	b.room.ID = id
	return b
}

// WithParticipant joins ParticipantID and moves the room to agenda negotiation.
func (b *RoomBuilder) WithParticipant() *RoomBuilder {
	p := ParticipantID
	b.room.ParticipantID = &p
	b.room.Status = model.RoomStatusAgendaNegotiation
	return b
}

// WithArguments fills both arguments.
func (b *RoomBuilder) WithArguments() *RoomBuilder {
	a, bb := Argument(model.SideA), Argument(model.SideB)
	b.room.ArgumentA = &a
	b.room.ArgumentB = &bb
	return b
}

// WithStatus forces the lifecycle status.
func (b *RoomBuilder) WithStatus(s model.RoomStatus) *RoomBuilder {
	b.room.Status = s
	return b
}

// Build returns the constructed room.
func (b *RoomBuilder) Build() *model.Room {
	return b.room
}

// TurnContent returns a lawyer response within every structural bound.
func TurnContent(side model.Side) model.TurnContent {
	return model.TurnContent{
		Statement:        fmt.Sprintf("Counsel for side %s presents a structured case with supporting reasoning.", side),
		KeyPoints:        []string{"first point", "second point", "third point"},
		CounterArguments: []string{"the opposing premise does not hold"},
	}
}

// JudgeDecision returns a valid judge decision with the given scores.
func JudgeDecision(roomID string, scoreA, scoreB int) *model.JudgeDecision {
	return &model.JudgeDecision{
		RoomID:    roomID,
		SideA:     model.SideAnalysis{Analysis: "clear", Strengths: "evidence", Weaknesses: "scope"},
		SideB:     model.SideAnalysis{Analysis: "passionate", Strengths: "rhetoric", Weaknesses: "sources"},
		Reasoning: "Side A supported its claims more consistently.",
		ScoreA:    scoreA,
		ScoreB:    scoreB,
	}
}

// JuryVotes returns one valid ballot per entry of sides, numbered from 1, each with the
// given confidence.
func JuryVotes(roomID string, confidence int, sides ...model.Side) []model.JuryVote {
	votes := make([]model.JuryVote, 0, len(sides))
	for i, s := range sides {
		votes = append(votes, model.JuryVote{
			RoomID:      roomID,
			JurorNumber: i + 1,
			Vote:        s,
			Reasoning:   fmt.Sprintf("Juror %d found side %s more persuasive across the rounds.", i+1, s),
			Confidence:  confidence,
		})
	}
	return votes
}
