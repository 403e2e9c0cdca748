package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrJobNotFound is returned when no journal row matches a job id.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `id, job_id, project_id, kind, status, processed, total, message, started_at, updated_at, finished_at`

// RecordStart inserts a running job. Restarting a known job id resets its row.
func (db *DB) RecordStart(ctx context.Context, jobID, projectID, kind string, total int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO bulk_jobs (id, job_id, project_id, kind, status, total)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (job_id) DO UPDATE
		 SET project_id = $3, kind = $4, status = $5, processed = 0, total = $6,
		     message = NULL, started_at = NOW(), updated_at = NOW(), finished_at = NULL`,
		uuid.New(), jobID, projectID, kind, JobStatusRunning, total,
	)
	if err != nil {
		return fmt.Errorf("failed to record job start %s: %w", jobID, err)
	}
	return nil
}

// RecordProgress stores the latest counters of a running job.
func (db *DB) RecordProgress(ctx context.Context, jobID string, processed, total int) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE bulk_jobs SET processed = $2, total = $3, updated_at = NOW()
		 WHERE job_id = $1 AND finished_at IS NULL`,
		jobID, processed, total,
	)
	if err != nil {
		return fmt.Errorf("failed to record job progress %s: %w", jobID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// RecordFinish marks a job finished with its outcome and message.
func (db *DB) RecordFinish(ctx context.Context, jobID, status, message string) error {
	var msg *string
	if message != "" {
		msg = &message
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE bulk_jobs SET status = $2, message = $3, updated_at = NOW(), finished_at = NOW()
		 WHERE job_id = $1`,
		jobID, status, msg,
	)
	if err != nil {
		return fmt.Errorf("failed to record job finish %s: %w", jobID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// GetJob retrieves a journaled job by its backend job id
func (db *DB) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM bulk_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves recent jobs, newest first, with optional filters.
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]Job, error) {
	query, args := listJobsQuery(filters)
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

func listJobsQuery(filters JobFilters) (string, []any) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultJobLimit
	}

	query := `SELECT ` + jobColumns + ` FROM bulk_jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argNum)
		args = append(args, filters.ProjectID)
		argNum++
	}
	if filters.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, filters.Kind)
		argNum++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)
	return query, args
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.JobID, &j.ProjectID, &j.Kind, &j.Status, &j.Processed, &j.Total,
		&j.Message, &j.StartedAt, &j.UpdatedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
