// Package airunner executes the AI job types of a room in process: the three-round
// debate, the judge decision and the jury ballots. It plugs into jobrunner as handlers.
package airunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/private-judge/judge-api/internal/adapters/jobrunner"
	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	"github.com/private-judge/judge-api/internal/service"
)

// defaultJurorParallelism bounds concurrent juror calls per jury job.
const defaultJurorParallelism = 4

// Options groups dependencies for the AI handlers.
type Options struct {
	Jobs    *service.JobService    // Required: progress reports
	Debates *service.DebateService // Required: rounds and turns
	Rooms   *service.RoomService   // Required: debate brief
	Motions *service.MotionService // Required: debate brief
	AI      core.DebateAI          // Required: LLM response layer
	Logger  *slog.Logger           // Optional: structured logger

	// JurorParallelism bounds concurrent juror calls; defaults to 4.
	JurorParallelism int
}

// Handlers executes AI jobs.
type Handlers struct {
	jobs        *service.JobService
	debates     *service.DebateService
	rooms       *service.RoomService
	motions     *service.MotionService
	ai          core.DebateAI
	logger      *slog.Logger
	parallelism int
}

// New constructs the AI handlers.
func New(opts Options) (*Handlers, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobService is required")
	case opts.Debates == nil:
		return nil, errors.New("DebateService is required")
	case opts.Rooms == nil:
		return nil, errors.New("RoomService is required")
	case opts.Motions == nil:
		return nil, errors.New("MotionService is required")
	case opts.AI == nil:
		return nil, errors.New("DebateAI is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parallelism := opts.JurorParallelism
	if parallelism <= 0 {
		parallelism = defaultJurorParallelism
	}
	return &Handlers{
		jobs:        opts.Jobs,
		debates:     opts.Debates,
		rooms:       opts.Rooms,
		motions:     opts.Motions,
		ai:          opts.AI,
		logger:      logger.With("component", "ai_runner"),
		parallelism: parallelism,
	}, nil
}

// For returns the handlers of the requested AI job types. Other types are ignored.
func (h *Handlers) For(types ...model.JobType) jobrunner.Handlers {
	all := jobrunner.Handlers{
		model.JobTypeDebate: h.debate,
		model.JobTypeJudge:  h.judge,
		model.JobTypeJury:   h.jury,
	}
	if len(types) == 0 {
		return all
	}
	out := make(jobrunner.Handlers, len(types))
	for _, t := range types {
		if fn, ok := all[t]; ok {
			out[t] = fn
		}
	}
	return out
}

// brief loads the shared debate context of a room from its agreed motion and arguments.
func (h *Handlers) brief(ctx context.Context, roomID string) (core.DebateBrief, error) {
	room, err := h.rooms.Get(ctx, roomID)
	if err != nil {
		return core.DebateBrief{}, err
	}
	m, err := h.motions.GetByRoom(ctx, roomID)
	if err != nil {
		return core.DebateBrief{}, err
	}
	b := core.DebateBrief{
		RoomID:            roomID,
		MotionTitle:       m.Title,
		MotionDescription: m.Description,
	}
	if room.ArgumentA != nil {
		b.ArgumentA = *room.ArgumentA
	}
	if room.ArgumentB != nil {
		b.ArgumentB = *room.ArgumentB
	}
	return b, nil
}

func decodePayload[T model.JobPayload](job *model.Job) (T, error) {
	var zero T
	p, err := model.DecodePayload(job.Type, job.Payload)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected payload %T for job type %s", p, job.Type)
	}
	return typed, nil
}

func encodeResult(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}
