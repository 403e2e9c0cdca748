package db

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus values stored in bulk_jobs.status. The finished values mirror the
// bulk job runner's outcomes.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusTimeout   = "timeout"
	JobStatusCancelled = "cancelled"
)

// Job is one journaled bulk job.
type Job struct {
	ID         uuid.UUID  `json:"id"`
	JobID      string     `json:"job_id"`
	ProjectID  string     `json:"project_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Processed  int        `json:"processed"`
	Total      int        `json:"total"`
	Message    *string    `json:"message,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration is the job's running time, up to now for unfinished jobs.
func (j *Job) Duration(now time.Time) time.Duration {
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

// JobFilters holds optional filters for listing jobs
type JobFilters struct {
	ProjectID string
	Kind      string
	Status    string
	Limit     int
}

// DefaultJobLimit caps ListJobs when no limit is given.
const DefaultJobLimit = 50
