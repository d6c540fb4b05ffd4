// Package repository defines domain models and data access interfaces for
// stored job descriptions.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// JobDescription is a stored job posting that can be matched against the
// candidate pool.
type JobDescription struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Requirements string    `json:"requirements,omitempty"`
	JobRole      string    `json:"job_role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchText is the free-text query used to match candidates to the job.
func (j JobDescription) SearchText() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{j.Title, j.Description, j.Requirements} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// JobRepository defines read access to job descriptions
type JobRepository interface {
	// GetByID retrieves a job description by ID
	GetByID(ctx context.Context, id int64) (*JobDescription, error)

	// List returns job descriptions, newest first. An empty role lists all.
	List(ctx context.Context, role string, limit int) ([]JobDescription, error)
}
