package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, description, mode, status, num_tasks, num_realizations, digest, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{}
	err := row.Scan(
		&job.ID,
		&job.Description,
		&job.Mode,
		&job.Status,
		&job.NumTasks,
		&job.NumRealizations,
		&job.Digest,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	return job, err
}

// Create stores a new job
func (s *PGStore) Create(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO hazard_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query,
		job.ID,
		job.Description,
		job.Mode,
		job.Status,
		job.NumTasks,
		job.NumRealizations,
		job.Digest,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobExists, job.ID)
	}
	return nil
}

// UpdateStatus moves a job to a new status. The current status is locked
// so concurrent updates cannot both pass the transition check.
func (s *PGStore) UpdateStatus(ctx context.Context, id string, update Update) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current Status
		err := tx.QueryRow(ctx, `SELECT status FROM hazard_jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to get job: %w", err)
		}
		if !current.CanTransition(update.Status) {
			return transitionError(id, current, update.Status)
		}

		_, err = tx.Exec(ctx, `
			UPDATE hazard_jobs
			SET status = $2, error = $3, digest = CASE WHEN $4 = '' THEN digest ELSE $4 END, updated_at = $5
			WHERE id = $1
		`, id, update.Status, update.Error, update.Digest, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
}

// SetCounts records the number of tasks and realizations of a job
func (s *PGStore) SetCounts(ctx context.Context, id string, numTasks, numRealizations int) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE hazard_jobs
		SET num_tasks = $2, num_realizations = $3, updated_at = $4
		WHERE id = $1
	`, id, numTasks, numRealizations, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// Get retrieves a job by ID
func (s *PGStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM hazard_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List returns all jobs, most recent first
func (s *PGStore) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM hazard_jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}
