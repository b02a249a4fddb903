package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// RoomRepo is the in-memory room repository.
type RoomRepo struct {
	s *Store
}

// Create stores a room.
func (r *RoomRepo) Create(_ context.Context, room *model.Room) (*model.Room, error) {
	if room == nil {
		return nil, apperrors.Validation("room is required")
	}
	in := room.Clone()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if _, dup := r.s.rooms[in.ID]; dup {
		return nil, apperrors.Conflict("Room already exists.")
	}
	if in.Status == "" {
		in.Status = model.RoomStatusWaitingParticipant
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.s.now()
	}
	if in.UpdatedAt.IsZero() {
		in.UpdatedAt = in.CreatedAt
	}
	r.s.rooms[in.ID] = in
	r.s.track(in.ID)
	return in.Clone(), nil
}

// GetByID returns a copy of the room.
func (r *RoomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, apperrors.NotFoundf("room %s not found", id)
	}
	return room.Clone(), nil
}

// Update replaces the stored room when its status still equals from.
func (r *RoomRepo) Update(_ context.Context, room *model.Room, from model.RoomStatus) (bool, error) {
	if room == nil {
		return false, apperrors.Validation("room is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.rooms[room.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	next := room.Clone()
	next.Title = cur.Title
	next.CreatorID = cur.CreatorID
	next.CreatedAt = cur.CreatedAt
	if cur.ArgumentA != nil {
		next.ArgumentA = cloneString(cur.ArgumentA)
	}
	if cur.ArgumentB != nil {
		next.ArgumentB = cloneString(cur.ArgumentB)
	}
	r.s.rooms[room.ID] = next
	return true, nil
}

// ListStalled returns stalled rooms, oldest stall first.
func (r *RoomRepo) ListStalled(_ context.Context, limit int) ([]*model.Room, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Room
	for _, room := range r.s.rooms {
		if room.Stalled {
			out = append(out, room.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		ta, tb := out[a].StalledAt, out[b].StalledAt
		switch {
		case ta != nil && tb != nil && !ta.Equal(*tb):
			return ta.Before(*tb)
		case ta != nil && tb == nil:
			return true
		case ta == nil && tb != nil:
			return false
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
