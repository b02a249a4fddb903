package core

import (
	"context"
	"time"

	"github.com/private-judge/judge-api/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces; internal/data provides the Postgres adapters and
// internal/data/memstore the in-memory ones.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	// CreateBatch creates all jobs or none.
	CreateBatch(ctx context.Context, reqs []*model.CreateJobRequest) ([]*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ListByRoom(ctx context.Context, roomID string) ([]*model.Job, error)
	// ListRunnable returns runnable jobs due at params.Now ordered by priority then
	// scheduled_at. It does not modify them.
	ListRunnable(ctx context.Context, params ListRunnableParams) ([]*model.Job, error)
	// BeginExecution moves a runnable job to running in one conditional write. It returns
	// an ErrCodeJobAlreadyTaken error when the job is no longer runnable.
	BeginExecution(ctx context.Context, params BeginExecutionParams) (*model.Job, error)
	// Transition persists the mutable fields of job if its stored status still equals
	// from. It reports false when another writer changed the status first.
	Transition(ctx context.Context, job *model.Job, from model.JobStatus) (bool, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Stats(ctx context.Context) (*model.JobStats, error)
	DeleteTerminalBefore(ctx context.Context, params DeleteJobsParams) (int64, error)
}

// ListRunnableParams groups parameters for JobRepository.ListRunnable.
type ListRunnableParams struct {
	Types []model.JobType
	Limit int
	Now   time.Time
}

// BeginExecutionParams groups parameters for JobRepository.BeginExecution.
type BeginExecutionParams struct {
	JobID    string
	WorkerID string
	Now      time.Time
}

// DeleteJobsParams groups parameters for JobRepository.DeleteTerminalBefore.
type DeleteJobsParams struct {
	Before    time.Time
	Statuses  []model.JobStatus
	BatchSize int
}

// RoomRepository defines the interface for room data operations.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) (*model.Room, error)
	GetByID(ctx context.Context, id string) (*model.Room, error)
	// Update persists the mutable fields of room if its stored status still equals from.
	// Submitted arguments are write-once: a stored argument is never overwritten.
	Update(ctx context.Context, room *model.Room, from model.RoomStatus) (bool, error)
	ListStalled(ctx context.Context, limit int) ([]*model.Room, error)
}

// MotionRepository defines the interface for motion data operations.
type MotionRepository interface {
	// Create fails with a conflict error when the room already has a non-deleted motion.
	Create(ctx context.Context, m *model.Motion) (*model.Motion, error)
	GetByID(ctx context.Context, id string) (*model.Motion, error)
	GetActiveByRoom(ctx context.Context, roomID string) (*model.Motion, error)
	// Update persists m if the stored history still has historyLen entries.
	Update(ctx context.Context, m *model.Motion, historyLen int) (bool, error)
	ListStale(ctx context.Context, params ListStaleMotionsParams) ([]*model.Motion, error)
}

// ListStaleMotionsParams selects non-terminal motions idle since IdleSince that have not
// been reminded about yet.
type ListStaleMotionsParams struct {
	IdleSince time.Time
	Limit     int
}

// DebateRepository defines the interface for debate round and turn data operations.
type DebateRepository interface {
	// CreateRound fails with a conflict error when the round number already exists.
	CreateRound(ctx context.Context, r *model.Round) (*model.Round, error)
	GetRound(ctx context.Context, id string) (*model.Round, error)
	ListRounds(ctx context.Context, roomID string) ([]*model.Round, error)
	UpdateRound(ctx context.Context, r *model.Round, from model.RoundStatus) (bool, error)
	// AppendTurn fails with a conflict error when the turn number is taken.
	AppendTurn(ctx context.Context, t *model.Turn) (*model.Turn, error)
	ListTurns(ctx context.Context, roundID string) ([]model.Turn, error)
}

// VerdictRepository defines the interface for judge, jury and verdict data operations.
type VerdictRepository interface {
	SaveJudgeDecision(ctx context.Context, d *model.JudgeDecision) (*model.JudgeDecision, error)
	GetJudgeDecision(ctx context.Context, roomID string) (*model.JudgeDecision, error)
	// SaveJuryVotes replaces the room's ballots.
	SaveJuryVotes(ctx context.Context, roomID string, votes []model.JuryVote) error
	ListJuryVotes(ctx context.Context, roomID string) ([]model.JuryVote, error)
	// CreateVerdict stores v unless the room already has a verdict, and returns the stored
	// verdict together with whether this call created it.
	CreateVerdict(ctx context.Context, v *model.Verdict) (*model.Verdict, bool, error)
	GetVerdict(ctx context.Context, roomID string) (*model.Verdict, error)
}
