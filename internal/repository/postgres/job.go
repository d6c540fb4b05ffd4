package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/talentsearch/internal/repository"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// JobRepo implements repository.JobRepository
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new job description repository
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `id, title, description, requirements, job_role, created_at`

// GetByID retrieves a job description by ID
func (r *JobRepo) GetByID(ctx context.Context, id int64) (*repository.JobDescription, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_descriptions
		WHERE id = $1
	`
	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job description: %w", err)
	}
	return job, nil
}

// List returns job descriptions, newest first
func (r *JobRepo) List(ctx context.Context, role string, limit int) ([]repository.JobDescription, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT ` + jobColumns + `
		FROM job_descriptions
		WHERE ($1 = '' OR job_role = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, role, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list job descriptions: %w", err)
	}
	defer rows.Close()

	var jobs []repository.JobDescription
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job description: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job descriptions: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*repository.JobDescription, error) {
	var job repository.JobDescription
	var requirements, role *string

	if err := row.Scan(&job.ID, &job.Title, &job.Description, &requirements, &role, &job.CreatedAt); err != nil {
		return nil, err
	}
	if requirements != nil {
		job.Requirements = *requirements
	}
	if role != nil {
		job.JobRole = *role
	}
	return &job, nil
}

// Ensure JobRepo implements repository.JobRepository
var _ repository.JobRepository = (*JobRepo)(nil)
