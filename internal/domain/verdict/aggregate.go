// Package verdict combines the judge decision and the jury ballots into a final verdict.
package verdict

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// Credibility weights.
const (
	weightConfidence    = 0.4
	weightQuality       = 0.3
	weightConsensus     = 0.2
	weightParticipation = 0.1
)

// Input is everything Aggregate needs. It performs no I/O, so identical inputs always
// produce identical verdicts.
type Input struct {
	RoomID string
	Judge  *model.JudgeDecision
	Votes  []model.JuryVote
	Now    time.Time
}

// Tally is the raw vote count and mean confidence.
type Tally struct {
	VotesA            int
	VotesB            int
	AverageConfidence float64
}

// Total returns the number of ballots.
func (t Tally) Total() int { return t.VotesA + t.VotesB }

// Margin returns the absolute vote difference.
func (t Tally) Margin() int {
	if t.VotesA > t.VotesB {
		return t.VotesA - t.VotesB
	}
	return t.VotesB - t.VotesA
}

// Count tallies the ballots.
func Count(votes []model.JuryVote) Tally {
	var t Tally
	sum := 0
	for i := range votes {
		switch votes[i].Vote {
		case model.SideA:
			t.VotesA++
		case model.SideB:
			t.VotesB++
		}
		sum += votes[i].Confidence
	}
	if len(votes) > 0 {
		t.AverageConfidence = float64(sum) / float64(len(votes))
	}
	return t
}

// Winner applies the majority rule, falling back to judge scores and then to a draw.
func Winner(t Tally, judge *model.JudgeDecision) model.Winner {
	switch {
	case t.VotesA > t.VotesB:
		return model.WinnerA
	case t.VotesB > t.VotesA:
		return model.WinnerB
	case judge.ScoreA > judge.ScoreB:
		return model.WinnerA
	case judge.ScoreB > judge.ScoreA:
		return model.WinnerB
	}
	return model.WinnerDraw
}

// OverallQuality mixes the judge's mean score (0-100, scaled to tenths) with the mean
// juror confidence, rounded and clamped to 1-10.
func OverallQuality(t Tally, judge *model.JudgeDecision) int {
	judgeAvg := float64(judge.ScoreA+judge.ScoreB) / 2
	q := int(math.Round((judgeAvg/10 + t.AverageConfidence/10*10) / 2))
	return min(max(q, model.OverallQualityMin), model.OverallQualityMax)
}

// Credibility is a 0-100 confidence-in-the-verdict score.
func Credibility(t Tally, overallQuality int) float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	majority := max(t.VotesA, t.VotesB)
	score := t.AverageConfidence/model.JurorConfidenceMax*100*weightConfidence +
		float64(overallQuality)/model.OverallQualityMax*100*weightQuality +
		float64(majority)/float64(total)*100*weightConsensus +
		float64(total)/model.TotalJurors*100*weightParticipation
	score = math.Min(math.Max(score, 0), model.CredibilityScoreScale)
	return round1(score)
}

// Aggregate builds the verdict for a room.
func Aggregate(in Input) (*model.Verdict, error) {
	if len(in.Votes) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeInsufficientJuryVotes, "no jury votes to aggregate")
	}
	if in.Judge == nil {
		return nil, apperrors.ValidationField("judge", "judge decision is required")
	}
	if err := in.Judge.Validate(); err != nil {
		return nil, err
	}
	if err := model.ValidateJuryVotes(in.Votes); err != nil {
		return nil, err
	}

	tally := Count(in.Votes)
	winner := Winner(tally, in.Judge)
	quality := OverallQuality(tally, in.Judge)
	margin := tally.Margin()

	return &model.Verdict{
		RoomID:      in.RoomID,
		Winner:      winner,
		Reasoning:   reasoning(in.Judge, tally, winner),
		StrengthsA:  in.Judge.SideA.Strengths,
		StrengthsB:  in.Judge.SideB.Strengths,
		WeaknessesA: in.Judge.SideA.Weaknesses,
		WeaknessesB: in.Judge.SideB.Weaknesses,
		JurySummary: model.JurySummary{
			VotesA:            tally.VotesA,
			VotesB:            tally.VotesB,
			AverageConfidence: round1(tally.AverageConfidence),
		},
		OverallQuality:   quality,
		CredibilityScore: Credibility(tally, quality),
		IsClose:          margin <= 1,
		IsUnanimous:      margin == model.TotalJurors,
		GeneratedAt:      in.Now,
	}, nil
}

func reasoning(judge *model.JudgeDecision, t Tally, winner model.Winner) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(judge.Reasoning))
	fmt.Fprintf(&b, "\n\nThe jury voted %d-%d", t.VotesA, t.VotesB)
	switch {
	case t.VotesA == t.VotesB && winner == model.WinnerDraw:
		b.WriteString(" and the judge scored both sides equally, so the debate is a draw.")
	case t.VotesA == t.VotesB:
		fmt.Fprintf(&b, "; the judge's scores (%d-%d) break the tie for side %s.", judge.ScoreA, judge.ScoreB, winner)
	default:
		fmt.Fprintf(&b, " in favour of side %s.", winner)
	}
	return b.String()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
