package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// DebateRepo is the in-memory debate round and turn repository.
type DebateRepo struct {
	s *Store
}

// CreateRound stores a round unless its number is taken for the room.
func (r *DebateRepo) CreateRound(_ context.Context, round *model.Round) (*model.Round, error) {
	if round == nil {
		return nil, apperrors.Validation("round is required")
	}
	in := cloneRound(round)
	in.Turns = nil
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[in.RoomID]; !ok {
		return nil, apperrors.ForeignKey("Room not found.")
	}
	for _, existing := range r.s.rounds {
		if existing.RoomID == in.RoomID && existing.RoundNumber == in.RoundNumber {
			return nil, apperrors.Conflict("This round has already been started.")
		}
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.s.now()
	}
	r.s.rounds[in.ID] = in
	r.s.track(in.ID)
	return cloneRound(in), nil
}

// GetRound returns a round with its turns.
func (r *DebateRepo) GetRound(_ context.Context, id string) (*model.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	round, ok := r.s.rounds[id]
	if !ok {
		return nil, apperrors.NotFoundf("round %s not found", id)
	}
	return r.withTurnsLocked(round), nil
}

// ListRounds returns the room's rounds in round order.
func (r *DebateRepo) ListRounds(_ context.Context, roomID string) ([]*model.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Round
	for _, round := range r.s.rounds {
		if round.RoomID == roomID {
			out = append(out, r.withTurnsLocked(round))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].RoundNumber < out[b].RoundNumber })
	return out, nil
}

// UpdateRound replaces the stored round when its status still equals from.
func (r *DebateRepo) UpdateRound(_ context.Context, round *model.Round, from model.RoundStatus) (bool, error) {
	if round == nil {
		return false, apperrors.Validation("round is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.rounds[round.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	next := cloneRound(round)
	next.Turns = nil
	next.RoomID = cur.RoomID
	next.RoundNumber = cur.RoundNumber
	next.RoundType = cur.RoundType
	next.CreatedAt = cur.CreatedAt
	r.s.rounds[round.ID] = next
	return true, nil
}

// AppendTurn stores a turn unless its number is taken within the round.
func (r *DebateRepo) AppendTurn(_ context.Context, t *model.Turn) (*model.Turn, error) {
	if t == nil {
		return nil, apperrors.Validation("turn is required")
	}
	in := cloneTurn(*t)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rounds[in.RoundID]; !ok {
		return nil, apperrors.ForeignKey("Debate round not found.")
	}
	for _, existing := range r.s.turns[in.RoundID] {
		if existing.TurnNumber == in.TurnNumber {
			return nil, apperrors.Conflict("This turn has already been recorded.")
		}
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = model.TurnStatusRecorded
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.s.now()
	}
	turns := append(r.s.turns[in.RoundID], in)
	sort.Slice(turns, func(a, b int) bool { return turns[a].TurnNumber < turns[b].TurnNumber })
	r.s.turns[in.RoundID] = turns
	out := cloneTurn(in)
	return &out, nil
}

// ListTurns returns a round's turns in turn order.
func (r *DebateRepo) ListTurns(_ context.Context, roundID string) ([]model.Turn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.turnsLocked(roundID), nil
}

func (r *DebateRepo) turnsLocked(roundID string) []model.Turn {
	src := r.s.turns[roundID]
	if len(src) == 0 {
		return nil
	}
	out := make([]model.Turn, len(src))
	for i := range src {
		out[i] = cloneTurn(src[i])
	}
	return out
}

func (r *DebateRepo) withTurnsLocked(round *model.Round) *model.Round {
	out := cloneRound(round)
	out.Turns = r.turnsLocked(round.ID)
	return out
}

func cloneRound(r *model.Round) *model.Round {
	c := *r
	if r.Quality != nil {
		q := *r.Quality
		if r.Quality.Advantage != nil {
			side := *r.Quality.Advantage
			q.Advantage = &side
		}
		c.Quality = &q
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	c.Turns = append([]model.Turn(nil), r.Turns...)
	return &c
}

func cloneTurn(t model.Turn) model.Turn {
	t.Content.KeyPoints = append([]string(nil), t.Content.KeyPoints...)
	t.Content.CounterArguments = append([]string(nil), t.Content.CounterArguments...)
	t.Content.EvidenceReferences = append([]string(nil), t.Content.EvidenceReferences...)
	return t
}
