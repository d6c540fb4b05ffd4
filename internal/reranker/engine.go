package reranker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knoguchi/talentsearch/internal/candidate"
	"github.com/knoguchi/talentsearch/internal/health"
	"github.com/knoguchi/talentsearch/internal/vectorstore"
)

// DefaultTimeout bounds a single scoring call.
const DefaultTimeout = 15 * time.Second

// Loader constructs the Scorer. It is called at most once per Engine.
type Loader func(ctx context.Context) (Scorer, error)

// Engine orders retrieved candidates by model relevance.
type Engine struct {
	loader  Loader
	timeout time.Duration
	logger  *slog.Logger

	once   sync.Once
	scorer Scorer

	// last is readiness telemetry for Status; ranking never reads it.
	last atomic.Value
}

// EngineOption is a functional option for configuring Engine.
type EngineOption func(*Engine)

// WithTimeout sets the scoring deadline.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine. A nil loader disables model scoring and every
// call takes the pass-through path.
func NewEngine(loader Loader, opts ...EngineOption) *Engine {
	e := &Engine{
		loader:  loader,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "reranker"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Static returns a Loader that always yields s.
func Static(s Scorer) Loader {
	return func(context.Context) (Scorer, error) { return s, nil }
}

func (e *Engine) load(ctx context.Context) Scorer {
	e.once.Do(func() {
		if e.loader == nil {
			e.last.Store(health.Unavailable)
			return
		}
		s, err := e.loader(context.WithoutCancel(ctx))
		if err != nil || s == nil {
			e.logger.Error("relevance model load failed, re-ranking disabled until restart", "error", err)
			e.last.Store(health.Unavailable)
			return
		}
		e.scorer = s
		e.last.Store(health.Ready)
		e.logger.Info("relevance model loaded", "model", s.ModelName())
	})
	return e.scorer
}

// Status loads the scorer if needed and reports the status of the most
// recent call.
func (e *Engine) Status(ctx context.Context) health.Status {
	e.load(ctx)
	if s, ok := e.last.Load().(health.Status); ok {
		return s
	}
	return health.Unavailable
}

type decoded struct {
	profile candidate.Profile
	score   float32
}

// Rerank scores every decodable candidate against query and returns the top
// finalLimit, ranked 1..n. Malformed candidates are skipped. If scoring is
// unavailable or fails, the first finalLimit candidates are returned in
// their incoming order with their retrieval scores.
func (e *Engine) Rerank(ctx context.Context, query string, candidates []vectorstore.Candidate, finalLimit int) ([]candidate.Ranked, Outcome) {
	pool := make([]decoded, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		p, err := candidate.FromPayload(c.ID, c.Payload)
		if err != nil {
			e.logger.Warn("skipping malformed candidate", "id", c.ID, "error", err)
			skipped++
			continue
		}
		pool = append(pool, decoded{profile: p, score: c.Score})
	}

	if finalLimit <= 0 || len(pool) == 0 {
		return []candidate.Ranked{}, Outcome{Status: e.Status(ctx), Skipped: skipped}
	}

	scorer := e.load(ctx)
	if scorer == nil {
		return passThrough(pool, finalLimit), Outcome{Status: health.Unavailable, Skipped: skipped}
	}

	start := time.Now()
	scores, err := e.score(ctx, scorer, query, pool)
	if err != nil {
		e.logger.Warn("reranking_failed_using_retrieval_order",
			slog.String("error", err.Error()),
			slog.Int("candidate_count", len(pool)),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		e.last.Store(health.Degraded)
		return passThrough(pool, finalLimit), Outcome{Status: health.Degraded, Skipped: skipped}
	}
	e.last.Store(health.Ready)

	ranked := make([]candidate.Ranked, len(pool))
	for i, d := range pool {
		ranked[i] = candidate.Ranked{
			Score:          scores[i],
			RetrievalScore: d.score,
			Reranked:       true,
			Profile:        d.profile,
		}
	}

	// Stable: equal scores keep retrieval order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > finalLimit {
		ranked = ranked[:finalLimit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	e.logger.Debug("reranking_completed",
		slog.String("model", scorer.ModelName()),
		slog.Int("candidate_count", len(pool)),
		slog.Int("result_count", len(ranked)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return ranked, Outcome{Reranked: true, Status: health.Ready, Skipped: skipped}
}

func (e *Engine) score(ctx context.Context, scorer Scorer, query string, pool []decoded) ([]float32, error) {
	docs := make([]string, len(pool))
	for i, d := range pool {
		docs[i] = DocumentText(d.profile)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	scores, err := scorer.Score(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(docs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrScoreCount, len(scores), len(docs))
	}
	for i, s := range scores {
		if math.IsNaN(float64(s)) {
			return nil, fmt.Errorf("score %d is NaN", i)
		}
	}
	return scores, nil
}

func passThrough(pool []decoded, finalLimit int) []candidate.Ranked {
	n := min(len(pool), finalLimit)
	out := make([]candidate.Ranked, n)
	for i := 0; i < n; i++ {
		out[i] = candidate.Ranked{
			Rank:           i + 1,
			Score:          pool[i].score,
			RetrievalScore: pool[i].score,
			Profile:        pool[i].profile,
		}
	}
	return out
}
