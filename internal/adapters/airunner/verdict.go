package airunner

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
)

func (h *Handlers) judgeRequest(ctx context.Context, roomID string) (core.JudgeRequest, error) {
	brief, err := h.brief(ctx, roomID)
	if err != nil {
		return core.JudgeRequest{}, err
	}
	rounds, err := h.debates.ListRounds(ctx, roomID)
	if err != nil {
		return core.JudgeRequest{}, err
	}
	return core.JudgeRequest{DebateBrief: brief, Rounds: rounds}, nil
}

func (h *Handlers) judge(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	p, err := decodePayload[*model.JudgeJobPayload](job)
	if err != nil {
		return nil, err
	}
	req, err := h.judgeRequest(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	d, err := h.ai.Judge(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.RoomID = p.RoomID
	return encodeResult(model.JudgeJobResult{Decision: *d})
}

// jury asks every juror concurrently. One failed juror fails the whole ballot set.
func (h *Handlers) jury(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	p, err := decodePayload[*model.JuryJobPayload](job)
	if err != nil {
		return nil, err
	}
	req, err := h.judgeRequest(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}

	votes := make([]model.JuryVote, p.JurorCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i := range votes {
		number := i + 1
		g.Go(func() error {
			v, err := h.ai.Juror(gctx, core.JurorRequest{JudgeRequest: req, JurorNumber: number})
			if err != nil {
				return fmt.Errorf("juror %d: %w", number, err)
			}
			v.JurorNumber = number
			v.RoomID = p.RoomID
			votes[i] = *v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := model.ValidateJuryVotes(votes); err != nil {
		return nil, err
	}
	return encodeResult(model.JuryJobResult{Votes: votes})
}
