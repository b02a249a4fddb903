package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// VerdictRepo is the in-memory judge decision, jury ballot and verdict repository.
type VerdictRepo struct {
	s *Store
}

// SaveJudgeDecision stores the room's decision, replacing an earlier one.
func (r *VerdictRepo) SaveJudgeDecision(_ context.Context, d *model.JudgeDecision) (*model.JudgeDecision, error) {
	if d == nil {
		return nil, apperrors.Validation("judge decision is required")
	}
	in := *d
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[in.RoomID]; !ok {
		return nil, apperrors.ForeignKey("Room not found.")
	}
	if prev, ok := r.s.decisions[in.RoomID]; ok {
		in.ID = prev.ID
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.s.now()
	}
	r.s.decisions[in.RoomID] = &in
	out := in
	return &out, nil
}

// GetJudgeDecision returns the room's judge decision.
func (r *VerdictRepo) GetJudgeDecision(_ context.Context, roomID string) (*model.JudgeDecision, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.decisions[roomID]
	if !ok {
		return nil, apperrors.NotFoundf("room %s has no judge decision", roomID)
	}
	out := *d
	return &out, nil
}

// SaveJuryVotes replaces the room's ballots; duplicate juror numbers reject the whole set.
func (r *VerdictRepo) SaveJuryVotes(_ context.Context, roomID string, votes []model.JuryVote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[roomID]; !ok {
		return apperrors.ForeignKey("Room not found.")
	}
	now := r.s.now()
	seen := make(map[int]struct{}, len(votes))
	out := make([]model.JuryVote, 0, len(votes))
	for _, v := range votes {
		if _, dup := seen[v.JurorNumber]; dup {
			return apperrors.Conflict("This juror has already voted for this room.")
		}
		seen[v.JurorNumber] = struct{}{}
		v.RoomID = roomID
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JurorNumber < out[b].JurorNumber })
	r.s.votes[roomID] = out
	return nil
}

// ListJuryVotes returns the room's ballots ordered by juror number.
func (r *VerdictRepo) ListJuryVotes(_ context.Context, roomID string) ([]model.JuryVote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	src := r.s.votes[roomID]
	if len(src) == 0 {
		return nil, nil
	}
	return append([]model.JuryVote(nil), src...), nil
}

// CreateVerdict stores v unless the room already has a verdict.
func (r *VerdictRepo) CreateVerdict(_ context.Context, v *model.Verdict) (*model.Verdict, bool, error) {
	if v == nil {
		return nil, false, apperrors.Validation("verdict is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.verdicts[v.RoomID]; ok {
		out := *existing
		return &out, false, nil
	}
	if _, ok := r.s.rooms[v.RoomID]; !ok {
		return nil, false, apperrors.ForeignKey("Room not found.")
	}
	in := *v
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = r.s.now()
	}
	r.s.verdicts[in.RoomID] = &in
	out := in
	return &out, true, nil
}

// GetVerdict returns the room's verdict.
func (r *VerdictRepo) GetVerdict(_ context.Context, roomID string) (*model.Verdict, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.verdicts[roomID]
	if !ok {
		return nil, apperrors.NotFoundf("room %s has no verdict", roomID)
	}
	out := *v
	return &out, nil
}
