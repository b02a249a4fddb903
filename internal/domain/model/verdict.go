package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// Jury and judge bounds.
const (
	TotalJurors           = 7
	JurorReasoningMinLen  = 50
	JurorReasoningMaxLen  = 300
	JurorConfidenceMin    = 1
	JurorConfidenceMax    = 10
	JudgeScoreMin         = 0
	JudgeScoreMax         = 100
	OverallQualityMin     = 1
	OverallQualityMax     = 10
	CredibilityScoreScale = 100
)

// Winner is the outcome of a debate.
type Winner string

const (
	// WinnerA means side A won.
	WinnerA Winner = "A"
	// WinnerB means side B won.
	WinnerB Winner = "B"
	// WinnerDraw means neither jury nor judge separated the sides.
	WinnerDraw Winner = "draw"
)

// SideAnalysis is the judge's assessment of one side.
type SideAnalysis struct {
	Analysis   string `json:"analysis"`
	Strengths  string `json:"strengths"`
	Weaknesses string `json:"weaknesses"`
}

// JudgeDecision is the single judge ruling for a room.
type JudgeDecision struct {
	ID        string       `json:"id,omitempty"         db:"id"`
	RoomID    string       `json:"room_id,omitempty"    db:"room_id"`
	SideA     SideAnalysis `json:"side_a"               db:"side_a"`
	SideB     SideAnalysis `json:"side_b"               db:"side_b"`
	Reasoning string       `json:"reasoning"            db:"reasoning"`
	ScoreA    int          `json:"score_a"              db:"score_a"`
	ScoreB    int          `json:"score_b"              db:"score_b"`
	CreatedAt time.Time    `json:"created_at,omitempty" db:"created_at"`
}

// Validate checks score bounds and required text.
func (d *JudgeDecision) Validate() error {
	if d.ScoreA < JudgeScoreMin || d.ScoreA > JudgeScoreMax {
		return apperrors.ValidationField("score_a", fmt.Sprintf("score must be %d-%d", JudgeScoreMin, JudgeScoreMax))
	}
	if d.ScoreB < JudgeScoreMin || d.ScoreB > JudgeScoreMax {
		return apperrors.ValidationField("score_b", fmt.Sprintf("score must be %d-%d", JudgeScoreMin, JudgeScoreMax))
	}
	if strings.TrimSpace(d.Reasoning) == "" {
		return apperrors.ValidationField("reasoning", "judge reasoning is required")
	}
	return nil
}

// JuryVote is one juror's ballot.
type JuryVote struct {
	ID          string    `json:"id,omitempty"         db:"id"`
	RoomID      string    `json:"room_id,omitempty"    db:"room_id"`
	JurorNumber int       `json:"juror_number"         db:"juror_number"`
	Vote        Side      `json:"vote"                 db:"vote"`
	Reasoning   string    `json:"reasoning"            db:"reasoning"`
	Confidence  int       `json:"confidence"           db:"confidence"`
	CreatedAt   time.Time `json:"created_at,omitempty" db:"created_at"`
}

// Validate checks the ballot bounds.
func (v *JuryVote) Validate() error {
	if v.JurorNumber < 1 || v.JurorNumber > TotalJurors {
		return apperrors.ValidationField("juror_number", fmt.Sprintf("juror number must be 1-%d", TotalJurors))
	}
	if !v.Vote.Valid() {
		return apperrors.ValidationField("vote", "vote must be A or B")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(v.Reasoning))
	if n < JurorReasoningMinLen || n > JurorReasoningMaxLen {
		return apperrors.ValidationField("reasoning",
			fmt.Sprintf("juror reasoning must be %d-%d characters", JurorReasoningMinLen, JurorReasoningMaxLen))
	}
	if v.Confidence < JurorConfidenceMin || v.Confidence > JurorConfidenceMax {
		return apperrors.ValidationField("confidence",
			fmt.Sprintf("confidence must be %d-%d", JurorConfidenceMin, JurorConfidenceMax))
	}
	return nil
}

// ValidateJuryVotes validates each ballot and the juror-number uniqueness across the set.
func ValidateJuryVotes(votes []JuryVote) error {
	if len(votes) > TotalJurors {
		return apperrors.ValidationField("votes", fmt.Sprintf("at most %d votes are allowed", TotalJurors))
	}
	seen := make(map[int]struct{}, len(votes))
	for i := range votes {
		if err := votes[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[votes[i].JurorNumber]; dup {
			return apperrors.ValidationField("juror_number",
				fmt.Sprintf("juror %d voted more than once", votes[i].JurorNumber))
		}
		seen[votes[i].JurorNumber] = struct{}{}
	}
	return nil
}

// JurySummary is the tally stored on a verdict.
type JurySummary struct {
	VotesA            int     `json:"votes_a"`
	VotesB            int     `json:"votes_b"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Verdict is the aggregated outcome of a room.
type Verdict struct {
	ID               string      `json:"id"                db:"id"`
	RoomID           string      `json:"room_id"           db:"room_id"`
	Winner           Winner      `json:"winner"            db:"winner"`
	Reasoning        string      `json:"reasoning"         db:"reasoning"`
	StrengthsA       string      `json:"strengths_a"       db:"strengths_a"`
	StrengthsB       string      `json:"strengths_b"       db:"strengths_b"`
	WeaknessesA      string      `json:"weaknesses_a"      db:"weaknesses_a"`
	WeaknessesB      string      `json:"weaknesses_b"      db:"weaknesses_b"`
	OverallQuality   int         `json:"overall_quality"   db:"overall_quality"`
	JurySummary      JurySummary `json:"jury_summary"      db:"jury_summary"`
	CredibilityScore float64     `json:"credibility_score" db:"credibility_score"`
	IsClose          bool        `json:"is_close"          db:"is_close"`
	IsUnanimous      bool        `json:"is_unanimous"      db:"is_unanimous"`
	GeneratedAt      time.Time   `json:"generated_at"      db:"generated_at"`
}
