package reranker

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/talentsearch/internal/candidate"
	"github.com/knoguchi/talentsearch/internal/health"
	"github.com/knoguchi/talentsearch/internal/vectorstore"
)

// scorerFunc adapts a function to Scorer.
type scorerFunc func(ctx context.Context, query string, docs []string) ([]float32, error)

func (f scorerFunc) Score(ctx context.Context, query string, docs []string) ([]float32, error) {
	return f(ctx, query, docs)
}

func (f scorerFunc) ModelName() string { return "test-scorer" }

func pool(scores ...float32) []vectorstore.Candidate {
	out := make([]vectorstore.Candidate, len(scores))
	for i, s := range scores {
		id := string(rune('a' + i))
		out[i] = vectorstore.Candidate{
			ID:    id,
			Score: s,
			Payload: map[string]any{
				candidate.KeyName:            "cand-" + id,
				candidate.KeyCurrentJobTitle: "Engineer " + id,
			},
		}
	}
	return out
}

func rankedIDs(rs []candidate.Ranked) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Profile.ID
	}
	return out
}

func assertContiguousRanks(t *testing.T, rs []candidate.Ranked) {
	t.Helper()
	for i, r := range rs {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestEngineRerank(t *testing.T) {
	ctx := context.Background()

	t.Run("orders by model score", func(t *testing.T) {
		e := NewEngine(Static(scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
			return []float32{0.1, 0.9, 0.5, 0.7}, nil
		})))

		got, out := e.Rerank(ctx, "go developer", pool(0.9, 0.8, 0.7, 0.6), 3)
		assert.Equal(t, []string{"b", "d", "c"}, rankedIDs(got))
		assertContiguousRanks(t, got)
		assert.True(t, out.Reranked)
		assert.Equal(t, health.Ready, out.Status)
		assert.Equal(t, float32(0.9), got[0].Score)
		assert.Equal(t, float32(0.8), got[0].RetrievalScore)
		assert.True(t, got[0].Reranked)
	})

	t.Run("ties keep retrieval order", func(t *testing.T) {
		e := NewEngine(Static(scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
			return []float32{0.5, 0.5, 0.5}, nil
		})))
		got, _ := e.Rerank(ctx, "q", pool(0.9, 0.8, 0.7), 3)
		assert.Equal(t, []string{"a", "b", "c"}, rankedIDs(got))
	})

	t.Run("scorer error falls back to retrieval order", func(t *testing.T) {
		e := NewEngine(Static(scorerFunc(func(context.Context, string, []string) ([]float32, error) {
			return nil, errors.New("model crashed")
		})))
		got, out := e.Rerank(ctx, "q", pool(0.9, 0.8, 0.7), 2)
		assert.Equal(t, []string{"a", "b"}, rankedIDs(got))
		assert.Equal(t, float32(0.9), got[0].Score)
		assert.False(t, got[0].Reranked)
		assertContiguousRanks(t, got)
		assert.False(t, out.Reranked)
		assert.Equal(t, health.Degraded, out.Status)
		assert.Equal(t, health.Degraded, e.Status(ctx))
	})

	t.Run("score count mismatch falls back", func(t *testing.T) {
		e := NewEngine(Static(scorerFunc(func(context.Context, string, []string) ([]float32, error) {
			return []float32{0.9}, nil
		})))
		got, out := e.Rerank(ctx, "q", pool(0.9, 0.8), 5)
		assert.Equal(t, []string{"a", "b"}, rankedIDs(got))
		assert.False(t, out.Reranked)
	})

	t.Run("no model is unavailable", func(t *testing.T) {
		e := NewEngine(nil)
		got, out := e.Rerank(ctx, "q", pool(0.9, 0.8, 0.7), 2)
		assert.Equal(t, []string{"a", "b"}, rankedIDs(got))
		assert.Equal(t, health.Unavailable, out.Status)
	})

	t.Run("load failure is unavailable", func(t *testing.T) {
		e := NewEngine(func(context.Context) (Scorer, error) { return nil, errors.New("no weights") })
		_, out := e.Rerank(ctx, "q", pool(0.9), 1)
		assert.Equal(t, health.Unavailable, out.Status)
	})

	t.Run("malformed candidates are skipped", func(t *testing.T) {
		var seen int
		e := NewEngine(Static(scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
			seen = len(docs)
			return make([]float32, len(docs)), nil
		})))
		cands := pool(0.9, 0.8)
		cands = append(cands, vectorstore.Candidate{ID: "bad", Score: 0.95, Payload: map[string]any{
			candidate.KeySkills: map[string]any{"oops": true},
		}})

		got, out := e.Rerank(ctx, "q", cands, 10)
		assert.Equal(t, 2, seen)
		assert.Len(t, got, 2)
		assert.Equal(t, 1, out.Skipped)
	})

	t.Run("empty input skips model", func(t *testing.T) {
		var calls atomic.Int32
		e := NewEngine(Static(scorerFunc(func(context.Context, string, []string) ([]float32, error) {
			calls.Add(1)
			return nil, nil
		})))
		got, _ := e.Rerank(ctx, "q", nil, 10)
		require.NotNil(t, got)
		assert.Empty(t, got)
		assert.Zero(t, calls.Load())
	})

	t.Run("output never exceeds limit", func(t *testing.T) {
		e := NewEngine(Static(scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
			return make([]float32, len(docs)), nil
		})))
		got, _ := e.Rerank(ctx, "q", pool(0.5, 0.5, 0.5, 0.5, 0.5), 2)
		assert.Len(t, got, 2)
	})

	t.Run("loads scorer once", func(t *testing.T) {
		var loads atomic.Int32
		s := scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
			return make([]float32, len(docs)), nil
		})
		e := NewEngine(func(context.Context) (Scorer, error) {
			loads.Add(1)
			return s, nil
		})
		for i := 0; i < 3; i++ {
			e.Rerank(ctx, "q", pool(0.5), 1)
		}
		assert.Equal(t, int32(1), loads.Load())
	})

	t.Run("failed load is not retried", func(t *testing.T) {
		var loads atomic.Int32
		e := NewEngine(func(context.Context) (Scorer, error) {
			if loads.Add(1) == 1 {
				return nil, errors.New("restarting")
			}
			return scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
				return make([]float32, len(docs)), nil
			}), nil
		})
		for i := 0; i < 3; i++ {
			_, out := e.Rerank(ctx, "q", pool(0.5), 1)
			assert.Equal(t, health.Unavailable, out.Status)
		}
		assert.Equal(t, int32(1), loads.Load())
	})

	t.Run("degraded call does not affect the next ranking", func(t *testing.T) {
		var fail atomic.Bool
		e := NewEngine(Static(scorerFunc(func(_ context.Context, _ string, docs []string) ([]float32, error) {
			if fail.Load() {
				return nil, errors.New("timeout")
			}
			return []float32{0.1, 0.9}, nil
		})))

		want, _ := e.Rerank(ctx, "q", pool(0.9, 0.8), 2)

		fail.Store(true)
		_, out := e.Rerank(ctx, "q", pool(0.9, 0.8), 2)
		assert.Equal(t, health.Degraded, out.Status)
		assert.Equal(t, health.Degraded, e.Status(ctx))

		fail.Store(false)
		got, out := e.Rerank(ctx, "q", pool(0.9, 0.8), 2)
		assert.Equal(t, health.Ready, out.Status)
		assert.Equal(t, rankedIDs(want), rankedIDs(got))
		assert.Equal(t, []string{"b", "a"}, rankedIDs(got))
	})
}

func TestDocumentText(t *testing.T) {
	p := candidate.Profile{
		CurrentJobTitle:   "Backend Engineer",
		Skills:            []string{"Go", "Postgres"},
		ExperienceSummary: "8 years",
		Location:          "Berlin",
	}
	assert.Equal(t, "Backend Engineer. Go, Postgres. 8 years. Berlin", DocumentText(p))
	assert.Empty(t, DocumentText(candidate.Profile{}))
}

func TestEngineRerankIsRepeatable(t *testing.T) {
	// Deterministic per-document scores with plenty of ties.
	hashed := scorerFunc(func(_ context.Context, query string, docs []string) ([]float32, error) {
		out := make([]float32, len(docs))
		for i, d := range docs {
			h := fnv.New32a()
			_, _ = h.Write([]byte(query + "|" + d))
			out[i] = float32(h.Sum32()%7) / 7
		}
		return out, nil
	})
	e := NewEngine(Static(hashed))

	scores := make([]float32, 40)
	for i := range scores {
		scores[i] = 0.9 - float32(i)*0.01
	}
	candidates := pool(scores...)

	first, out := e.Rerank(context.Background(), "go developer", candidates, 5)
	require.True(t, out.Reranked)
	require.Len(t, first, 5)

	for range 3 {
		again, _ := e.Rerank(context.Background(), "go developer", candidates, 5)
		assert.Equal(t, rankedIDs(first), rankedIDs(again))
		assertContiguousRanks(t, again)
	}
}
