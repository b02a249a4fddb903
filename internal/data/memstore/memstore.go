// Package memstore provides in-memory implementations of the core repository ports.
//
// Every repository returned by a Store shares one mutex, so conditional writes are
// compare-and-swap operations with the same outcomes as the PostgreSQL adapters:
// BeginExecution succeeds for exactly one caller, Transition and Update report false
// when the stored status moved on, and unique keys produce conflict errors.
package memstore

import (
	"sync"
	"time"

	"github.com/private-judge/judge-api/internal/core"
	"github.com/private-judge/judge-api/internal/domain/model"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configure a Store.
type Options struct {
	Clock Clock // Optional: defaults to the system clock
}

// Store holds all entities of the in-memory backend.
type Store struct {
	clock Clock

	mu        sync.Mutex
	rooms     map[string]*model.Room
	motions   map[string]*model.Motion
	jobs      map[string]*model.Job
	rounds    map[string]*model.Round
	turns     map[string][]model.Turn
	decisions map[string]*model.JudgeDecision
	votes     map[string][]model.JuryVote
	verdicts  map[string]*model.Verdict
	order     map[string]int64
	seq       int64

	signals *signals
}

// New creates an empty Store.
func New(opts Options) *Store {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Store{
		clock:     clock,
		rooms:     make(map[string]*model.Room),
		motions:   make(map[string]*model.Motion),
		jobs:      make(map[string]*model.Job),
		rounds:    make(map[string]*model.Round),
		turns:     make(map[string][]model.Turn),
		decisions: make(map[string]*model.JudgeDecision),
		votes:     make(map[string][]model.JuryVote),
		verdicts:  make(map[string]*model.Verdict),
		order:     make(map[string]int64),
		signals:   newSignals(),
	}
}

// Jobs returns the job repository.
func (s *Store) Jobs() *JobRepo { return &JobRepo{s: s} }

// Rooms returns the room repository.
func (s *Store) Rooms() *RoomRepo { return &RoomRepo{s: s} }

// Motions returns the motion repository.
func (s *Store) Motions() *MotionRepo { return &MotionRepo{s: s} }

// Debates returns the debate round repository.
func (s *Store) Debates() *DebateRepo { return &DebateRepo{s: s} }

// Verdicts returns the judge, jury and verdict repository.
func (s *Store) Verdicts() *VerdictRepo { return &VerdictRepo{s: s} }

func (s *Store) now() time.Time { return s.clock.Now().UTC() }

// track records the insertion order of id, used to break ties between equal timestamps.
func (s *Store) track(id string) {
	s.seq++
	s.order[id] = s.seq
}

var (
	_ core.JobRepository     = (*JobRepo)(nil)
	_ core.RoomRepository    = (*RoomRepo)(nil)
	_ core.MotionRepository  = (*MotionRepo)(nil)
	_ core.DebateRepository  = (*DebateRepo)(nil)
	_ core.VerdictRepository = (*VerdictRepo)(nil)
)
