// Package vectorstore provides nearest-neighbour search over the candidate
// profile index.
package vectorstore

import (
	"context"
)

// Candidate is one raw hit from the vector store. It stays inside the
// pipeline and is never returned to callers.
type Candidate struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// SearchRequest describes a single similarity query.
type SearchRequest struct {
	Vector []float32

	// Category restricts results to one job category when non-empty.
	Category string

	Limit     int
	Threshold float32
}

// Store defines the read operations the ranking pipeline needs from the
// vector store.
type Store interface {
	// Search returns up to req.Limit candidates scoring at least
	// req.Threshold.
	Search(ctx context.Context, req SearchRequest) ([]Candidate, error)

	// Ping reports whether the store is reachable and the profile
	// collection exists.
	Ping(ctx context.Context) error
}
