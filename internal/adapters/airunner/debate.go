package airunner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/private-judge/judge-api/internal/core"
	domaindebate "github.com/private-judge/judge-api/internal/domain/debate"
	"github.com/private-judge/judge-api/internal/domain/model"
)

// debate runs the three rounds of a room. Completed rounds are skipped and an open round
// continues after its recorded turns, so a retried or requeued job resumes where the
// previous attempt stopped.
func (h *Handlers) debate(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	p, err := decodePayload[*model.DebateJobPayload](job)
	if err != nil {
		return nil, err
	}
	brief := core.DebateBrief{
		RoomID:            p.RoomID,
		MotionTitle:       p.MotionTitle,
		MotionDescription: p.MotionDescription,
		ArgumentA:         p.ArgumentA,
		ArgumentB:         p.ArgumentB,
	}

	existing, err := h.debates.ListRounds(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	byNumber := make(map[int]*model.Round, len(existing))
	for _, r := range existing {
		byNumber[r.RoundNumber] = r
	}

	var transcript []model.Turn
	progress := &progressReporter{h: h, jobID: job.ID, total: domaindebate.TotalExpectedTurns()}

	for n := 1; n <= model.TotalRounds; n++ {
		round := byNumber[n]
		if round == nil {
			if round, err = h.debates.StartRound(ctx, p.RoomID, n); err != nil {
				return nil, err
			}
		}
		transcript = append(transcript, round.Turns...)
		progress.add(ctx, len(round.Turns))
		if round.Status == model.RoundStatusCompleted {
			continue
		}

		if transcript, err = h.playRound(ctx, brief, round, transcript, progress); err != nil {
			return nil, err
		}
		if _, err := h.debates.CompleteRound(ctx, round.ID); err != nil {
			return nil, err
		}
	}

	h.logger.InfoContext(ctx, "debate finished", "job_id", job.ID, "room_id", p.RoomID, "turns", len(transcript))
	return encodeResult(model.DebateJobResult{RoundsCompleted: model.TotalRounds})
}

// playRound asks the lawyers for the turns the round still expects and records them.
func (h *Handlers) playRound(
	ctx context.Context,
	brief core.DebateBrief,
	round *model.Round,
	transcript []model.Turn,
	progress *progressReporter,
) ([]model.Turn, error) {
	order := domaindebate.SpeakingOrder(round.RoundType)
	for i := len(round.Turns); i < len(order); i++ {
		lawyer := domaindebate.LawyerFor(round.RoundType, i)
		content, err := h.ai.Lawyer(ctx, core.LawyerRequest{
			DebateBrief: brief,
			Side:        order[i],
			RoundNumber: round.RoundNumber,
			RoundType:   round.RoundType,
			LawyerType:  lawyer,
			Transcript:  transcript,
		})
		if err != nil {
			return transcript, fmt.Errorf("round %d turn %d lawyer %s: %w", round.RoundNumber, i+1, order[i], err)
		}
		turn, err := h.debates.RecordTurn(ctx, &model.RecordTurnRequest{
			RoundID:    round.ID,
			Side:       order[i],
			LawyerType: lawyer,
			Content:    *content,
		})
		if err != nil {
			return transcript, err
		}
		transcript = append(transcript, *turn)
		progress.add(ctx, 1)
	}
	return transcript, nil
}

// progressReporter reports turns done across the debate. Report failures are logged
// and never stop the debate.
type progressReporter struct {
	h     *Handlers
	jobID string
	step  int
	total int
}

func (p *progressReporter) add(ctx context.Context, turns int) {
	if turns == 0 {
		return
	}
	p.step = min(p.step+turns, p.total)
	if _, err := p.h.jobs.UpdateProgress(ctx, p.jobID, p.step, p.total); err != nil {
		p.h.logger.WarnContext(ctx, "update job progress", "job_id", p.jobID, "step", p.step, "error", err)
	}
}
