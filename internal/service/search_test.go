package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/talentsearch/internal/candidate"
	"github.com/knoguchi/talentsearch/internal/embedder"
	"github.com/knoguchi/talentsearch/internal/enhancer"
	"github.com/knoguchi/talentsearch/internal/health"
	"github.com/knoguchi/talentsearch/internal/repository"
	"github.com/knoguchi/talentsearch/internal/reranker"
	"github.com/knoguchi/talentsearch/internal/vectorstore"
)

type fakeEnhancer struct {
	out   string
	calls int
}

func (f *fakeEnhancer) Enhance(_ context.Context, q string, _ map[string]any) enhancer.Result {
	f.calls++
	if f.out == "" {
		return enhancer.Result{Original: q, Enhanced: q, Strategy: enhancer.OpenAI}
	}
	return enhancer.Result{Original: q, Enhanced: f.out, Strategy: enhancer.OpenAI, Applied: true}
}

type recordingEmbedder struct {
	texts []string
	inner *embedder.HashEmbedder
}

func newRecordingEmbedder() *recordingEmbedder {
	return &recordingEmbedder{inner: embedder.NewHashEmbedder(8)}
}

func (r *recordingEmbedder) EmbedWithStatus(_ context.Context, text string) ([]float32, health.Status) {
	r.texts = append(r.texts, text)
	return r.inner.Vector(text), health.Ready
}

func (r *recordingEmbedder) ModelName() string { return "recording" }

type fakeStore struct {
	mu   sync.Mutex
	reqs []vectorstore.SearchRequest
	hits []vectorstore.Candidate
	err  error
}

func (f *fakeStore) Search(_ context.Context, req vectorstore.SearchRequest) ([]vectorstore.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.err }

// keywordScorer scores a document by how many query words it contains.
type keywordScorer struct{}

func (keywordScorer) Score(_ context.Context, query string, docs []string) ([]float32, error) {
	words := strings.Fields(strings.ToLower(query))
	out := make([]float32, len(docs))
	for i, d := range docs {
		d = strings.ToLower(d)
		for _, w := range words {
			if strings.Contains(d, w) {
				out[i]++
			}
		}
		out[i] /= float32(len(words))
	}
	return out, nil
}

func (keywordScorer) ModelName() string { return "keyword" }

type fakeJobs map[int64]*repository.JobDescription

func (f fakeJobs) GetByID(_ context.Context, id int64) (*repository.JobDescription, error) {
	if j, ok := f[id]; ok {
		return j, nil
	}
	return nil, repository.ErrNotFound
}

func (f fakeJobs) List(_ context.Context, role string, _ int) ([]repository.JobDescription, error) {
	var out []repository.JobDescription
	for _, j := range f {
		if role == "" || j.JobRole == role {
			out = append(out, *j)
		}
	}
	return out, nil
}

func hit(id string, score float32, payload map[string]any) vectorstore.Candidate {
	return vectorstore.Candidate{ID: id, Score: score, Payload: payload}
}

func profiles() []vectorstore.Candidate {
	return []vectorstore.Candidate{
		hit("a", 0.91, map[string]any{
			candidate.KeyName:            "Ann",
			candidate.KeyCurrentJobTitle: "Java Developer",
			candidate.KeySkills:          []any{"Java", "Spring"},
		}),
		hit("b", 0.82, map[string]any{
			candidate.KeyName:            "Bo",
			candidate.KeyCurrentJobTitle: "Backend Engineer",
			candidate.KeySkills:          []any{"Go", "Kubernetes", "Postgres"},
			candidate.KeyEmail:           "bo@example.com",
		}),
		hit("c", 0.74, map[string]any{
			candidate.KeyName:            "Cy",
			candidate.KeyCurrentJobTitle: "Go Developer",
			candidate.KeySkills:          "Go, Kubernetes",
		}),
		hit("d", 0.55, map[string]any{
			candidate.KeyName:  "Di",
			candidate.KeySkills: map[string]any{"bad": "shape"},
		}),
	}
}

func newPipeline(t *testing.T, store *fakeStore, enh QueryEnhancer, emb VectorEmbedder, opts ...SearchServiceOption) *SearchService {
	t.Helper()
	if enh == nil {
		enh = &fakeEnhancer{}
	}
	if emb == nil {
		emb = newRecordingEmbedder()
	}
	return NewSearchService(
		enh,
		emb,
		vectorstore.NewRetriever(store),
		reranker.NewEngine(reranker.Static(keywordScorer{})),
		opts...,
	)
}

func TestValidate(t *testing.T) {
	cases := map[string]SearchQuery{
		"empty query":       {Query: "  ", Limit: 5, Threshold: 0.5},
		"zero limit":        {Query: "go", Limit: 0, Threshold: 0.5},
		"negative limit":    {Query: "go", Limit: -1, Threshold: 0.5},
		"threshold too low": {Query: "go", Limit: 5, Threshold: -0.1},
		"threshold too big": {Query: "go", Limit: 5, Threshold: 1.01},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			emb := newRecordingEmbedder()
			s := newPipeline(t, store, nil, emb)

			_, err := s.Search(context.Background(), q)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			assert.Empty(t, emb.texts)
			assert.Empty(t, store.reqs)
		})
	}

	assert.NoError(t, Validate(SearchQuery{Query: "go", Limit: 1, Threshold: 0}))
	assert.NoError(t, Validate(SearchQuery{Query: "go", Limit: 1, Threshold: 1}))
}

func TestSearchEndToEnd(t *testing.T) {
	store := &fakeStore{hits: profiles()}
	s := newPipeline(t, store, nil, nil)

	resp, err := s.Search(context.Background(), SearchQuery{
		Query:     "go kubernetes",
		Category:  "Backend",
		Limit:     2,
		Threshold: 0.5,
	})
	require.NoError(t, err)

	require.Len(t, store.reqs, 1)
	assert.Equal(t, DefaultPoolSize, store.reqs[0].Limit)
	assert.Equal(t, "Backend", store.reqs[0].Category)
	assert.InDelta(t, 0.5, store.reqs[0].Threshold, 1e-6)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, "b", resp.Results[0].ID)
	assert.Equal(t, "c", resp.Results[1].ID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, 2, resp.Results[1].Rank)
	assert.True(t, resp.Results[0].Reranked)
	assert.InDelta(t, 0.82, resp.Results[0].RetrievalScore, 1e-6)
	assert.Equal(t, "bo@example.com", resp.Results[0].Email)
	assert.Equal(t, "Unknown", resp.Results[1].Email)

	assert.Equal(t, 2, resp.TotalResults)
	assert.NotEmpty(t, resp.SearchID)
	assert.Equal(t, "go kubernetes", resp.FinalQuery)
	assert.Equal(t, 4, resp.Metadata.Retrieved)
	assert.Equal(t, 1, resp.Metadata.Skipped)
	assert.True(t, resp.Metadata.Reranked)
	assert.Equal(t, health.Ready, resp.Metadata.RerankStatus)
	assert.Equal(t, health.Ready, resp.Metadata.EmbeddingStatus)
	assert.Equal(t, enhancer.None, resp.Metadata.EnhancementStrategy)
}

func TestSearchFullPool(t *testing.T) {
	// 40 candidates scoring 0.50..0.89; every third has both query skills,
	// and group IDs pair neighbours in rerank order.
	hits := make([]vectorstore.Candidate, 0, 40)
	for i := range 40 {
		skills := []any{"Rust"}
		switch i % 3 {
		case 0:
			skills = []any{"Go", "Kubernetes"}
		case 1:
			skills = []any{"Go"}
		}
		hits = append(hits, hit(fmt.Sprintf("id%02d", i), 0.5+float32(i)*0.01, map[string]any{
			candidate.KeySkills:           skills,
			candidate.KeyDuplicateGroupID: fmt.Sprintf("g%d", i/6),
		}))
	}
	store := &fakeStore{hits: hits}
	s := newPipeline(t, store, nil, nil)

	resp, err := s.Search(context.Background(), SearchQuery{Query: "go kubernetes", Limit: 5, Threshold: 0.5})
	require.NoError(t, err)

	assert.Equal(t, 40, resp.Metadata.Retrieved)
	require.NotEmpty(t, resp.Results)
	require.LessOrEqual(t, len(resp.Results), 5)

	groups := make(map[string]bool)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		assert.GreaterOrEqual(t, r.RetrievalScore, 0.5)
		assert.False(t, groups[r.DuplicateGroupID], "group %s appears twice", r.DuplicateGroupID)
		groups[r.DuplicateGroupID] = true
		if i > 0 {
			assert.LessOrEqual(t, r.Score, resp.Results[i-1].Score)
		}
	}

	ids := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"id39", "id33", "id27"}, ids)
	assert.Equal(t, 2, resp.Metadata.DuplicatesRemoved)
	assert.Equal(t, len(resp.Results), resp.TotalResults)
}

func TestSearchPoolNeverSmallerThanLimit(t *testing.T) {
	store := &fakeStore{}
	s := newPipeline(t, store, nil, nil, WithPoolSize(10))

	_, err := s.Search(context.Background(), SearchQuery{Query: "go", Limit: 25, Threshold: 0})
	require.NoError(t, err)
	require.Len(t, store.reqs, 1)
	assert.Equal(t, 25, store.reqs[0].Limit)
}

func TestSearchEnhancement(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled embeds original query", func(t *testing.T) {
		enh := &fakeEnhancer{out: "golang engineer"}
		emb := newRecordingEmbedder()
		s := newPipeline(t, &fakeStore{}, enh, emb)

		resp, err := s.Search(ctx, SearchQuery{Query: " go dev ", Limit: 5, Threshold: 0.5})
		require.NoError(t, err)
		assert.Zero(t, enh.calls)
		assert.Equal(t, []string{" go dev "}, emb.texts)
		assert.Equal(t, " go dev ", resp.FinalQuery)
		assert.False(t, resp.Metadata.EnhancementApplied)
	})

	t.Run("failed enhancement embeds original query", func(t *testing.T) {
		enh := &fakeEnhancer{}
		emb := newRecordingEmbedder()
		s := newPipeline(t, &fakeStore{}, enh, emb)

		resp, err := s.Search(ctx, SearchQuery{Query: "go dev", Limit: 5, Threshold: 0.5, Enhance: true})
		require.NoError(t, err)
		assert.Equal(t, 1, enh.calls)
		assert.Equal(t, []string{"go dev"}, emb.texts)
		assert.False(t, resp.Metadata.EnhancementApplied)
		assert.Equal(t, enhancer.OpenAI, resp.Metadata.EnhancementStrategy)
	})

	t.Run("applied enhancement feeds embedding and reranking", func(t *testing.T) {
		enh := &fakeEnhancer{out: "java spring"}
		emb := newRecordingEmbedder()
		s := newPipeline(t, &fakeStore{hits: profiles()}, enh, emb)

		resp, err := s.Search(ctx, SearchQuery{Query: "jvm dev", Limit: 1, Threshold: 0.5, Enhance: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"java spring"}, emb.texts)
		assert.Equal(t, "jvm dev", resp.Query)
		assert.Equal(t, "java spring", resp.FinalQuery)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "a", resp.Results[0].ID)
	})
}

func TestSearchDegradedStages(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieval failure yields empty results", func(t *testing.T) {
		s := newPipeline(t, &fakeStore{err: errors.New("qdrant down")}, nil, nil)

		resp, err := s.Search(ctx, SearchQuery{Query: "go", Limit: 5, Threshold: 0.5})
		require.NoError(t, err)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.Zero(t, resp.TotalResults)
	})

	t.Run("no scorer keeps retrieval order", func(t *testing.T) {
		noScorer := func(context.Context) (reranker.Scorer, error) { return nil, errors.New("model missing") }
		s := NewSearchService(
			&fakeEnhancer{},
			newRecordingEmbedder(),
			vectorstore.NewRetriever(&fakeStore{hits: profiles()}),
			reranker.NewEngine(noScorer),
		)

		resp, err := s.Search(ctx, SearchQuery{Query: "go kubernetes", Limit: 2, Threshold: 0.5})
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "a", resp.Results[0].ID)
		assert.Equal(t, "b", resp.Results[1].ID)
		assert.False(t, resp.Results[0].Reranked)
		assert.InDelta(t, 0.91, resp.Results[0].Score, 1e-6)
		assert.Equal(t, health.Unavailable, resp.Metadata.RerankStatus)
	})

	t.Run("embedding fallback still searches", func(t *testing.T) {
		store := &fakeStore{hits: profiles()}
		provider := embedder.NewProvider(func(context.Context) (embedder.Embedder, error) {
			return nil, errors.New("ollama unreachable")
		}, 16)
		s := NewSearchService(&fakeEnhancer{}, provider, vectorstore.NewRetriever(store),
			reranker.NewEngine(reranker.Static(keywordScorer{})))

		resp, err := s.Search(ctx, SearchQuery{Query: "go", Limit: 3, Threshold: 0.5})
		require.NoError(t, err)
		require.Len(t, store.reqs, 1)
		assert.Len(t, store.reqs[0].Vector, 16)
		assert.Equal(t, health.Unavailable, resp.Metadata.EmbeddingStatus)
		assert.Len(t, resp.Results, 3)
	})
}

func TestSearchCollapsesDuplicates(t *testing.T) {
	dup := func(id string, score float32, master bool) vectorstore.Candidate {
		return hit(id, score, map[string]any{
			candidate.KeySkills:           []any{"Go"},
			candidate.KeyDuplicateGroupID: "g1",
			candidate.KeyIsMaster:         master,
		})
	}
	store := &fakeStore{hits: []vectorstore.Candidate{
		dup("x", 0.9, true),
		dup("y", 0.8, false),
		hit("z", 0.7, map[string]any{candidate.KeySkills: []any{"Rust"}}),
	}}
	s := newPipeline(t, store, nil, nil)

	resp, err := s.Search(context.Background(), SearchQuery{Query: "go", Limit: 3, Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "x", resp.Results[0].ID)
	assert.Equal(t, "z", resp.Results[1].ID)
	assert.Equal(t, 2, resp.Results[1].Rank)
	assert.Equal(t, 1, resp.Metadata.DuplicatesRemoved)
}

func TestSearchByJob(t *testing.T) {
	ctx := context.Background()
	jobs := fakeJobs{
		3: {ID: 3, Title: "Go Developer", Description: "Kubernetes services", JobRole: "Backend"},
	}

	t.Run("uses job text and role", func(t *testing.T) {
		store := &fakeStore{hits: profiles()}
		emb := newRecordingEmbedder()
		s := newPipeline(t, store, nil, emb, WithJobRepository(jobs))

		resp, err := s.SearchByJob(ctx, 3, 2, 0.5, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"Go Developer\nKubernetes services"}, emb.texts)
		require.Len(t, store.reqs, 1)
		assert.Equal(t, "Backend", store.reqs[0].Category)
		assert.Len(t, resp.Results, 2)
	})

	t.Run("missing job", func(t *testing.T) {
		s := newPipeline(t, &fakeStore{}, nil, nil, WithJobRepository(jobs))
		_, err := s.SearchByJob(ctx, 99, 2, 0.5, false)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("repository not configured", func(t *testing.T) {
		s := newPipeline(t, &fakeStore{}, nil, nil)
		_, err := s.SearchByJob(ctx, 3, 2, 0.5, false)
		assert.ErrorIs(t, err, ErrJobsDisabled)
	})
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	jobs := fakeJobs{
		1: {ID: 1, Title: "Go Developer", JobRole: "Backend"},
		2: {ID: 2, Title: "Designer", JobRole: "Design"},
	}

	s := newPipeline(t, &fakeStore{}, nil, nil, WithJobRepository(jobs))
	got, err := s.ListJobs(ctx, "Design", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)

	got, err = s.ListJobs(ctx, "Sales", 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = newPipeline(t, &fakeStore{}, nil, nil).ListJobs(ctx, "", 10)
	assert.ErrorIs(t, err, ErrJobsDisabled)
}
