package vectorstore

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

const (
	// DefaultTimeout bounds a single retrieval call.
	DefaultTimeout = 5 * time.Second

	// DefaultPoolSize is the number of candidates fetched for re-ranking.
	DefaultPoolSize = 40
)

// Retriever wraps a Store with the retrieval contract the pipeline relies
// on: bounded latency, no errors, results at or above the threshold, sorted
// by score descending, at most limit entries.
type Retriever struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	onError func(error)
}

// RetrieverOption is a functional option for configuring Retriever.
type RetrieverOption func(*Retriever)

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithErrorHook registers a callback invoked for every swallowed store error.
func WithErrorHook(fn func(error)) RetrieverOption {
	return func(r *Retriever) {
		r.onError = fn
	}
}

// NewRetriever creates a Retriever over store.
func NewRetriever(store Store, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:   store,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to limit candidates with score >= threshold, ordered
// by score descending with ties broken by ID. Store failures and timeouts
// yield an empty list.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, category string, limit int, threshold float32) []Candidate {
	if limit <= 0 || len(vector) == 0 {
		return []Candidate{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	raw, err := r.store.Search(ctx, SearchRequest{
		Vector:    vector,
		Category:  category,
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		r.logger.Warn("retrieval failed, returning no candidates",
			"error", err,
			"category", category,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		if r.onError != nil {
			r.onError(err)
		}
		return []Candidate{}
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})

	if len(out) > limit {
		out = out[:limit]
	}

	r.logger.Debug("retrieval complete",
		"candidates", len(out),
		"category", category,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// Ping reports store reachability.
func (r *Retriever) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.Ping(ctx)
}
