// Package reranker re-scores retrieved candidates with a relevance model that
// sees the query and the candidate text together.
//
// # Trade-offs
//
// Re-ranking is configured per deployment (RERANKER_BACKEND).
//
//   - Latency: one extra model call per search over the whole candidate pool
//   - Quality: better ordering when retrieval scores are close together
//
// When the model is unavailable or misbehaves, the Engine returns candidates
// in retrieval order with their raw similarity scores.
package reranker

import (
	"context"
	"errors"
	"strings"

	"github.com/knoguchi/talentsearch/internal/candidate"
	"github.com/knoguchi/talentsearch/internal/health"
)

// ErrScoreCount is returned when a scorer does not produce exactly one score
// per document.
var ErrScoreCount = errors.New("score count does not match document count")

// Scorer defines the relevance model backend.
type Scorer interface {
	// Score returns one relevance score per document, in document order.
	// Higher is more relevant.
	Score(ctx context.Context, query string, docs []string) ([]float32, error)

	// ModelName returns the model identifier for logging.
	ModelName() string
}

// Outcome describes how a Rerank call produced its ordering.
type Outcome struct {
	// Reranked is true when scores came from the relevance model.
	Reranked bool

	// Status is the model status observed by this call.
	Status health.Status

	// Skipped counts malformed candidates that were dropped.
	Skipped int
}

// DocumentText builds the text the relevance model scores for a profile:
// title, skills, experience, objective, qualifications, projects and
// location, in that order, blank parts omitted.
func DocumentText(p candidate.Profile) string {
	parts := []string{
		p.CurrentJobTitle,
		strings.Join(p.Skills, ", "),
		p.ExperienceSummary,
		p.Objective,
		p.QualificationsSummary,
		strings.Join(p.Projects, "; "),
		p.Location,
	}

	var sb strings.Builder
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(". ")
		}
		sb.WriteString(part)
	}
	return sb.String()
}
