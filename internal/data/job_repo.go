// Package data provides the PostgreSQL and Redis adapters behind the core ports.
package data

import (
	"database/sql"
	"log/slog"
)

// RepoConfig holds configuration options shared by the Postgres repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

func (c RepoConfig) timeProvider() TimeProvider {
	if c.TimeProvider == nil {
		return &RealTimeProvider{}
	}
	return c.TimeProvider
}

func (c RepoConfig) logger(component string) *slog.Logger {
	if c.Logger == nil {
		return nil
	}
	return c.Logger.With("component", component)
}

// JobRepo provides database operations for the job queue.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	return &JobRepo{
		DB:           db,
		timeProvider: cfg.timeProvider(),
		logger:       cfg.logger("job_repo"),
	}
}

const jobColumns = `
  id,
  type,
  status,
  priority,
  room_id,
  payload,
  result,
  error_message,
  retry_count,
  max_retries,
  progress,
  worker_id,
  scheduled_at,
  started_at,
  completed_at,
  created_at,
  updated_at
`
