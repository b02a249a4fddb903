package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// defaultDeleteBatch matches the PostgreSQL reaper batch size.
const defaultDeleteBatch = 1000

// JobRepo is the in-memory job repository.
type JobRepo struct {
	s *Store
}

// Create validates req and stores a queued job.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	jobs, err := r.CreateBatch(ctx, []*model.CreateJobRequest{req})
	if err != nil {
		return nil, err
	}
	return jobs[0], nil
}

// CreateBatch stores every request or none of them.
func (r *JobRepo) CreateBatch(_ context.Context, reqs []*model.CreateJobRequest) ([]*model.Job, error) {
	if len(reqs) == 0 {
		return nil, apperrors.Validation("at least one job is required")
	}
	for _, req := range reqs {
		if req == nil {
			return nil, apperrors.Validation("create job request is required")
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}

	s := r.s
	s.mu.Lock()
	now := s.now()
	for _, req := range reqs {
		if req.RoomID != nil {
			if _, ok := s.rooms[*req.RoomID]; !ok {
				s.mu.Unlock()
				return nil, apperrors.ForeignKey("Room not found.")
			}
		}
	}

	out := make([]*model.Job, 0, len(reqs))
	for _, req := range reqs {
		scheduledAt := now
		if req.ScheduledAt != nil {
			scheduledAt = req.ScheduledAt.UTC()
		}
		j := &model.Job{
			ID:          uuid.NewString(),
			Type:        req.Type,
			Status:      model.JobStatusQueued,
			Priority:    req.Type.Priority(),
			RoomID:      cloneString(req.RoomID),
			Payload:     append([]byte(nil), req.Payload...),
			MaxRetries:  req.EffectiveMaxRetries(),
			ScheduledAt: scheduledAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.jobs[j.ID] = j
		s.track(j.ID)
		out = append(out, j.Clone())
	}
	s.mu.Unlock()

	for _, j := range out {
		s.signals.notify(j.Type)
	}
	return out, nil
}

// GetByID returns a copy of the job.
func (r *JobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return j.Clone(), nil
}

// ListByRoom returns the room's jobs, oldest first.
func (r *JobRepo) ListByRoom(_ context.Context, roomID string) ([]*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Job
	for _, j := range r.s.jobs {
		if j.RoomIDValue() == roomID {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return r.s.order[out[a].ID] < r.s.order[out[b].ID]
	})
	return out, nil
}

// ListRunnable returns due runnable jobs by priority then scheduled_at.
func (r *JobRepo) ListRunnable(_ context.Context, params core.ListRunnableParams) ([]*model.Job, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 1
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := params.Now
	if now.IsZero() {
		now = r.s.now()
	}

	var out []*model.Job
	for _, j := range r.s.jobs {
		if !j.Status.Runnable() || j.ScheduledAt.After(now) {
			continue
		}
		if len(params.Types) > 0 && !slices.Contains(params.Types, j.Type) {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(a, b int) bool {
		ja, jb := out[a], out[b]
		if ja.Priority != jb.Priority {
			return ja.Priority < jb.Priority
		}
		if !ja.ScheduledAt.Equal(jb.ScheduledAt) {
			return ja.ScheduledAt.Before(jb.ScheduledAt)
		}
		return r.s.order[ja.ID] < r.s.order[jb.ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BeginExecution moves a due runnable job to running under the store lock.
func (r *JobRepo) BeginExecution(_ context.Context, params core.BeginExecutionParams) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[params.JobID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", params.JobID)
	}
	now := params.Now
	if now.IsZero() {
		now = r.s.now()
	}
	now = now.UTC()
	if !j.Status.Runnable() {
		return nil, apperrors.Newf(apperrors.ErrCodeJobAlreadyTaken, "job %s is already %s", j.ID, j.Status)
	}
	if j.ScheduledAt.After(now) {
		return nil, apperrors.Conflictf("job %s is not due until %s", j.ID, j.ScheduledAt.Format(time.RFC3339))
	}
	j.Status = model.JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.WorkerID = nil
	if params.WorkerID != "" {
		w := params.WorkerID
		j.WorkerID = &w
	}
	j.UpdatedAt = now
	return j.Clone(), nil
}

// Transition replaces the stored job when its status still equals from.
func (r *JobRepo) Transition(_ context.Context, job *model.Job, from model.JobStatus) (bool, error) {
	if job == nil {
		return false, apperrors.Validation("job is required")
	}
	r.s.mu.Lock()
	cur, ok := r.s.jobs[job.ID]
	if !ok || cur.Status != from {
		r.s.mu.Unlock()
		return false, nil
	}
	next := job.Clone()
	next.Type = cur.Type
	next.Priority = cur.Priority
	next.RoomID = cloneString(cur.RoomID)
	next.Payload = cur.Payload
	next.MaxRetries = cur.MaxRetries
	next.CreatedAt = cur.CreatedAt
	r.s.jobs[job.ID] = next
	r.s.mu.Unlock()

	if next.Status.Runnable() {
		r.s.signals.notify(next.Type)
	}
	return true, nil
}

// WaitForNotification blocks until a job of jobType is created or becomes runnable again.
func (r *JobRepo) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	ch := r.s.signals.channel(jobType)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns job counts per status.
func (r *JobRepo) Stats(_ context.Context) (*model.JobStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var st model.JobStats
	for _, j := range r.s.jobs {
		switch j.Status {
		case model.JobStatusQueued:
			st.Queued++
		case model.JobStatusRunning:
			st.Running++
		case model.JobStatusSucceeded:
			st.Succeeded++
		case model.JobStatusFailed:
			st.Failed++
		case model.JobStatusRetrying:
			st.Retrying++
		case model.JobStatusCancelled:
			st.Cancelled++
		}
	}
	return &st, nil
}

// DeleteTerminalBefore removes terminal jobs completed before params.Before, oldest first.
func (r *JobRepo) DeleteTerminalBefore(_ context.Context, params core.DeleteJobsParams) (int64, error) {
	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = []model.JobStatus{model.JobStatusSucceeded, model.JobStatusFailed, model.JobStatusCancelled}
	}
	for _, st := range statuses {
		if !st.Terminal() {
			return 0, apperrors.ValidationField("statuses", "only terminal jobs can be deleted")
		}
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDeleteBatch
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var victims []*model.Job
	for _, j := range r.s.jobs {
		if j.CompletedAt == nil || !j.CompletedAt.Before(params.Before) || !slices.Contains(statuses, j.Status) {
			continue
		}
		victims = append(victims, j)
	}
	sort.Slice(victims, func(a, b int) bool { return victims[a].CompletedAt.Before(*victims[b].CompletedAt) })
	if len(victims) > batch {
		victims = victims[:batch]
	}
	for _, j := range victims {
		delete(r.s.jobs, j.ID)
		delete(r.s.order, j.ID)
	}
	return int64(len(victims)), nil
}

// signals broadcasts job availability per type by closing and replacing a channel.
type signals struct {
	mu sync.Mutex
	ch map[model.JobType]chan struct{}
}

func newSignals() *signals {
	return &signals{ch: make(map[model.JobType]chan struct{})}
}

func (s *signals) channel(t model.JobType) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.ch[t]
	if !ok {
		ch = make(chan struct{})
		s.ch[t] = ch
	}
	return ch
}

func (s *signals) notify(t model.JobType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.ch[t]; ok {
		close(ch)
	}
	s.ch[t] = make(chan struct{})
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
