package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// MotionRepo is the in-memory motion repository.
type MotionRepo struct {
	s *Store
}

// Create stores a motion unless the room already has a live one.
func (r *MotionRepo) Create(_ context.Context, m *model.Motion) (*model.Motion, error) {
	if m == nil {
		return nil, apperrors.Validation("motion is required")
	}
	in := m.Clone()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[in.RoomID]; !ok {
		return nil, apperrors.ForeignKey("Room not found.")
	}
	if r.activeLocked(in.RoomID) != nil {
		return nil, apperrors.Conflict("A motion already exists for this room.")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.s.now()
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = in.CreatedAt
	}
	r.s.motions[in.ID] = in
	r.s.track(in.ID)
	return in.Clone(), nil
}

// GetByID returns a motion, including soft-deleted ones.
func (r *MotionRepo) GetByID(_ context.Context, id string) (*model.Motion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.motions[id]
	if !ok {
		return nil, apperrors.NotFoundf("motion %s not found", id)
	}
	return m.Clone(), nil
}

// GetActiveByRoom returns the room's non-deleted motion.
func (r *MotionRepo) GetActiveByRoom(_ context.Context, roomID string) (*model.Motion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m := r.activeLocked(roomID)
	if m == nil {
		return nil, apperrors.NotFoundf("room %s has no motion", roomID)
	}
	return m.Clone(), nil
}

func (r *MotionRepo) activeLocked(roomID string) *model.Motion {
	for _, m := range r.s.motions {
		if m.RoomID == roomID && m.DeletedAt == nil {
			return m
		}
	}
	return nil
}

// Update replaces the stored motion when its history still has historyLen entries.
func (r *MotionRepo) Update(_ context.Context, m *model.Motion, historyLen int) (bool, error) {
	if m == nil {
		return false, apperrors.Validation("motion is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.motions[m.ID]
	if !ok || len(cur.NegotiationHistory) != historyLen {
		return false, nil
	}
	next := m.Clone()
	next.RoomID = cur.RoomID
	next.ProposerID = cur.ProposerID
	next.CreatedAt = cur.CreatedAt
	r.s.motions[m.ID] = next
	return true, nil
}

// ListStale returns open motions idle since params.IdleSince that were never reminded about.
func (r *MotionRepo) ListStale(_ context.Context, params core.ListStaleMotionsParams) ([]*model.Motion, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Motion
	for _, m := range r.s.motions {
		if m.DeletedAt != nil || m.Status.Terminal() || m.StaleNotifiedAt != nil {
			continue
		}
		if !m.UpdatedAt.Before(params.IdleSince) {
			continue
		}
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
