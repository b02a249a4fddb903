// Package debate holds the sequencing rules of the three-round lawyer exchange and the
// display-only quality heuristic computed per round.
package debate

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// expectedTurns is the turn count each round type is planned for. It drives progress
// and overtime reporting only.
var expectedTurns = map[model.RoundType]int{
	model.RoundTypeFirst:  2,
	model.RoundTypeSecond: 4,
	model.RoundTypeFinal:  2,
}

// timeBudgets are the soft time limits per round type.
var timeBudgets = map[model.RoundType]time.Duration{
	model.RoundTypeFirst:  10 * time.Minute,
	model.RoundTypeSecond: 15 * time.Minute,
	model.RoundTypeFinal:  8 * time.Minute,
}

// ExpectedTurns returns the planned number of turns for a round type.
func ExpectedTurns(rt model.RoundType) int { return expectedTurns[rt] }

// TotalExpectedTurns is the planned number of turns across the whole debate.
func TotalExpectedTurns() int {
	return expectedTurns[model.RoundTypeFirst] + expectedTurns[model.RoundTypeSecond] +
		expectedTurns[model.RoundTypeFinal]
}

// TimeBudget returns the soft time limit of a round type.
func TimeBudget(rt model.RoundType) time.Duration { return timeBudgets[rt] }

// SpeakingOrder returns the sides in the order their lawyers speak during a round.
func SpeakingOrder(rt model.RoundType) []model.Side {
	order := make([]model.Side, 0, expectedTurns[rt])
	for i := range expectedTurns[rt] {
		if i%2 == 0 {
			order = append(order, model.SideA)
		} else {
			order = append(order, model.SideB)
		}
	}
	return order
}

// LawyerFor returns the lawyer persona for a turn of the given round type.
func LawyerFor(rt model.RoundType, turnIndex int) model.LawyerType {
	switch {
	case rt == model.RoundTypeFinal:
		return model.LawyerTypeCloser
	case rt == model.RoundTypeSecond && turnIndex > 0:
		return model.LawyerTypeRebuttal
	}
	return model.LawyerTypeAdvocate
}

// CanStart checks that roundNumber is 1-3, has not been started, and that the previous
// round is completed.
func CanStart(rounds []*model.Round, roundNumber int) error {
	if _, ok := model.RoundTypeFor(roundNumber); !ok {
		return apperrors.ValidationField("round_number", "round number must be 1, 2 or 3")
	}
	var prev *model.Round
	for _, r := range rounds {
		if r.RoundNumber == roundNumber {
			return apperrors.InvalidTransitionf("round %d has already been started", roundNumber)
		}
		if r.RoundNumber == roundNumber-1 {
			prev = r
		}
	}
	if roundNumber > 1 && (prev == nil || prev.Status != model.RoundStatusCompleted) {
		return apperrors.InvalidTransitionf("round %d cannot start before round %d is completed",
			roundNumber, roundNumber-1)
	}
	return nil
}

// NewRound returns an in-progress round. The caller has already checked CanStart.
func NewRound(roomID string, roundNumber int, now time.Time) *model.Round {
	rt, _ := model.RoundTypeFor(roundNumber)
	return &model.Round{
		RoomID:      roomID,
		RoundNumber: roundNumber,
		RoundType:   rt,
		Status:      model.RoundStatusInProgress,
		StartedAt:   &now,
		CreatedAt:   now,
	}
}

// NextTurn builds the next turn of an in-progress round. Turn numbers increase by one.
func NextTurn(round *model.Round, turns []model.Turn, req *model.RecordTurnRequest, now time.Time) (*model.Turn, error) {
	if round.Status != model.RoundStatusInProgress {
		return nil, apperrors.InvalidTransitionf("round %d is %s", round.RoundNumber, round.Status)
	}
	next := 1
	for i := range turns {
		if turns[i].TurnNumber >= next {
			next = turns[i].TurnNumber + 1
		}
	}
	return &model.Turn{
		RoundID:    round.ID,
		TurnNumber: next,
		Side:       req.Side,
		LawyerType: req.LawyerType,
		Content:    req.Content,
		Status:     model.TurnStatusRecorded,
		CreatedAt:  now,
	}, nil
}

// Complete marks an in-progress round completed once both sides have spoken, and
// stamps the quality heuristic and overtime flag.
func Complete(round *model.Round, turns []model.Turn, now time.Time) error {
	if round.Status != model.RoundStatusInProgress {
		return apperrors.InvalidTransitionf("round %d is %s", round.RoundNumber, round.Status)
	}
	var hasA, hasB bool
	for i := range turns {
		switch turns[i].Side {
		case model.SideA:
			hasA = true
		case model.SideB:
			hasB = true
		}
	}
	if !hasA || !hasB {
		return apperrors.Newf(apperrors.ErrCodeIncompleteRound,
			"round %d needs a turn from both sides", round.RoundNumber)
	}
	q := Quality(turns)
	round.Quality = &q
	round.Overtime = IsOvertime(round, now)
	round.Status = model.RoundStatusCompleted
	round.CompletedAt = &now
	return nil
}

// MarkFailed marks an unfinished round failed.
func MarkFailed(round *model.Round) error {
	if round.Status == model.RoundStatusCompleted || round.Status == model.RoundStatusFailed {
		return apperrors.InvalidTransitionf("round %d is %s", round.RoundNumber, round.Status)
	}
	round.Status = model.RoundStatusFailed
	return nil
}

// Reopen puts a failed round back in progress so a requeued debate can resume it. Turns
// already recorded are kept and the time budget restarts.
func Reopen(round *model.Round, now time.Time) error {
	if round.Status != model.RoundStatusFailed {
		return apperrors.InvalidTransitionf("round %d is %s, not failed", round.RoundNumber, round.Status)
	}
	round.Status = model.RoundStatusInProgress
	round.StartedAt = &now
	round.CompletedAt = nil
	round.Overtime = false
	return nil
}

// IsOvertime reports whether the round has run past its soft budget.
func IsOvertime(round *model.Round, now time.Time) bool {
	if round.StartedAt == nil {
		return false
	}
	end := now
	if round.CompletedAt != nil {
		end = *round.CompletedAt
	}
	return end.Sub(*round.StartedAt) > timeBudgets[round.RoundType]
}

// AllCompleted reports whether all three rounds exist and are completed.
func AllCompleted(rounds []*model.Round) bool {
	done := 0
	for _, r := range rounds {
		if r.Status == model.RoundStatusCompleted && r.RoundNumber >= 1 && r.RoundNumber <= model.TotalRounds {
			done++
		}
	}
	return done == model.TotalRounds
}

// Quality weights.
const (
	weightStatement = 0.4
	weightPoints    = 0.3
	weightCounters  = 0.2
	weightEvidence  = 0.1
)

// TurnScore scores one turn on a 0-100 scale from its structure alone.
func TurnScore(c model.TurnContent) float64 {
	ratio := func(n, limit int) float64 { return math.Min(float64(n)/float64(limit), 1) }
	s := weightStatement*ratio(utf8.RuneCountInString(c.Statement), model.StatementMaxLen) +
		weightPoints*ratio(len(c.KeyPoints), model.KeyPointsMax) +
		weightCounters*ratio(len(c.CounterArguments), model.CounterArgsMax) +
		weightEvidence*ratio(len(c.EvidenceReferences), model.EvidenceRefsMax)
	return math.Round(s*1000) / 10
}

// Quality averages turn scores per side and names the side ahead, if any.
func Quality(turns []model.Turn) model.RoundQuality {
	var sumA, sumB float64
	var nA, nB int
	for i := range turns {
		score := TurnScore(turns[i].Content)
		switch turns[i].Side {
		case model.SideA:
			sumA += score
			nA++
		case model.SideB:
			sumB += score
			nB++
		}
	}
	var q model.RoundQuality
	if nA > 0 {
		q.ScoreA = math.Round(sumA/float64(nA)*10) / 10
	}
	if nB > 0 {
		q.ScoreB = math.Round(sumB/float64(nB)*10) / 10
	}
	switch {
	case q.ScoreA > q.ScoreB:
		side := model.SideA
		q.Advantage = &side
	case q.ScoreB > q.ScoreA:
		side := model.SideB
		q.Advantage = &side
	}
	return q
}
