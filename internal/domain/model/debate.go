package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// Side identifies one of the two debaters. The room creator argues side A.
type Side string

const (
	// SideA is the room creator's side.
	SideA Side = "A"
	// SideB is the participant's side.
	SideB Side = "B"
)

// Valid returns true if the side is A or B.
func (s Side) Valid() bool { return s == SideA || s == SideB }

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// RoundType names the stage of the debate a round belongs to.
type RoundType string

const (
	// RoundTypeFirst is the opening round.
	RoundTypeFirst RoundType = "first"
	// RoundTypeSecond is the rebuttal round.
	RoundTypeSecond RoundType = "second"
	// RoundTypeFinal is the closing round.
	RoundTypeFinal RoundType = "final"
)

// TotalRounds is the number of rounds in a debate.
const TotalRounds = 3

// RoundTypeFor maps a round number (1-3) to its type.
func RoundTypeFor(roundNumber int) (RoundType, bool) {
	switch roundNumber {
	case 1:
		return RoundTypeFirst, true
	case 2:
		return RoundTypeSecond, true
	case 3:
		return RoundTypeFinal, true
	}
	return "", false
}

// RoundStatus represents the state of a debate round.
type RoundStatus string

const (
	// RoundStatusPending is a created round that has not started.
	RoundStatusPending RoundStatus = "pending"
	// RoundStatusInProgress is a round accepting turns.
	RoundStatusInProgress RoundStatus = "in_progress"
	// RoundStatusCompleted is a finished round.
	RoundStatusCompleted RoundStatus = "completed"
	// RoundStatusFailed is a round abandoned by a failed debate job.
	RoundStatusFailed RoundStatus = "failed"
)

// LawyerType names the AI lawyer persona producing a turn.
type LawyerType string

const (
	// LawyerTypeAdvocate argues on behalf of a side.
	LawyerTypeAdvocate LawyerType = "advocate"
	// LawyerTypeRebuttal answers the other side's previous turn.
	LawyerTypeRebuttal LawyerType = "rebuttal"
	// LawyerTypeCloser delivers closing statements.
	LawyerTypeCloser LawyerType = "closer"
)

// TurnStatus represents the state of a recorded turn.
type TurnStatus string

const (
	// TurnStatusRecorded is a turn whose content has been stored.
	TurnStatusRecorded TurnStatus = "recorded"
)

// Turn content bounds.
const (
	StatementMinLen = 50
	StatementMaxLen = 2000
	KeyPointsMin    = 2
	KeyPointsMax    = 5
	CounterArgsMin  = 1
	CounterArgsMax  = 3
	EvidenceRefsMax = 5
)

// RoundQuality is the display-only quality heuristic computed when a round completes.
type RoundQuality struct {
	ScoreA    float64 `json:"score_a"`
	ScoreB    float64 `json:"score_b"`
	Advantage *Side   `json:"advantage,omitempty"`
}

// Round is one of the three structured exchanges of a debate.
type Round struct {
	ID          string        `json:"id"                     db:"id"`
	RoomID      string        `json:"room_id"                db:"room_id"`
	RoundNumber int           `json:"round_number"           db:"round_number"`
	RoundType   RoundType     `json:"round_type"             db:"round_type"`
	Status      RoundStatus   `json:"status"                 db:"status"`
	Quality     *RoundQuality `json:"quality,omitempty"      db:"quality"`
	Overtime    bool          `json:"overtime"               db:"overtime"`
	StartedAt   *time.Time    `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time     `json:"created_at"             db:"created_at"`
	Turns       []Turn        `json:"turns,omitempty"        db:"-"`
}

// TurnContent is the structured lawyer response stored for a turn.
type TurnContent struct {
	Statement          string   `json:"statement"`
	KeyPoints          []string `json:"key_points"`
	CounterArguments   []string `json:"counter_arguments"`
	EvidenceReferences []string `json:"evidence_references,omitempty"`
}

// Validate checks the structural bounds of the content.
func (c TurnContent) Validate() error {
	n := utf8.RuneCountInString(strings.TrimSpace(c.Statement))
	if n < StatementMinLen || n > StatementMaxLen {
		return apperrors.ValidationField("statement",
			fmt.Sprintf("statement must be %d-%d characters", StatementMinLen, StatementMaxLen))
	}
	if len(c.KeyPoints) < KeyPointsMin || len(c.KeyPoints) > KeyPointsMax {
		return apperrors.ValidationField("key_points",
			fmt.Sprintf("key_points must have %d-%d entries", KeyPointsMin, KeyPointsMax))
	}
	if len(c.CounterArguments) < CounterArgsMin || len(c.CounterArguments) > CounterArgsMax {
		return apperrors.ValidationField("counter_arguments",
			fmt.Sprintf("counter_arguments must have %d-%d entries", CounterArgsMin, CounterArgsMax))
	}
	if len(c.EvidenceReferences) > EvidenceRefsMax {
		return apperrors.ValidationField("evidence_references",
			fmt.Sprintf("at most %d evidence references are allowed", EvidenceRefsMax))
	}
	return nil
}

// Turn is one lawyer statement within a round.
type Turn struct {
	ID         string      `json:"id"          db:"id"`
	RoundID    string      `json:"round_id"    db:"round_id"`
	TurnNumber int         `json:"turn_number" db:"turn_number"`
	Side       Side        `json:"side"        db:"side"`
	LawyerType LawyerType  `json:"lawyer_type" db:"lawyer_type"`
	Content    TurnContent `json:"content"     db:"content"`
	Status     TurnStatus  `json:"status"      db:"status"`
	CreatedAt  time.Time   `json:"created_at"  db:"created_at"`
}

// RecordTurnRequest carries a lawyer response to append to a round.
type RecordTurnRequest struct {
	RoundID    string      `json:"-"`
	Side       Side        `json:"side"`
	LawyerType LawyerType  `json:"lawyer_type"`
	Content    TurnContent `json:"content"`
}

// Validate validates the request.
func (r *RecordTurnRequest) Validate() error {
	if r.RoundID == "" {
		return apperrors.ValidationField("round_id", "round id is required")
	}
	if !r.Side.Valid() {
		return apperrors.ValidationField("side", "side must be A or B")
	}
	if r.LawyerType == "" {
		r.LawyerType = LawyerTypeAdvocate
	}
	return r.Content.Validate()
}
