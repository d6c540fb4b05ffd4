package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoguchi/talentsearch/internal/health"
)

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	dim   int
	err   error
	calls atomic.Int32
	vec   func(text string) []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.vec != nil {
		return f.vec(text), nil
	}
	out := make([]float32, f.dim)
	out[0] = float32(len(text))
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(384)

	a := h.Vector("senior go developer")
	b := h.Vector("senior go developer")
	c := h.Vector("frontend react developer")

	require.Len(t, a, 384)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum float64
	for _, v := range a {
		require.False(t, math.IsNaN(float64(v)))
		require.LessOrEqual(t, v, float32(1))
		require.GreaterOrEqual(t, v, float32(-1))
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)

	t.Run("empty text", func(t *testing.T) {
		v := h.Vector("")
		assert.Len(t, v, 384)
	})

	t.Run("odd dimension", func(t *testing.T) {
		assert.Len(t, NewHashEmbedder(13).Vector("x"), 13)
	})
}

func TestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("no backend is unavailable", func(t *testing.T) {
		p := NewProvider(nil, 16)
		vec, status := p.EmbedWithStatus(ctx, "query")
		assert.Equal(t, health.Unavailable, status)
		assert.Equal(t, NewHashEmbedder(16).Vector("query"), vec)
		assert.Equal(t, health.Unavailable, p.Status(ctx))
		assert.Equal(t, HashModelName, p.ModelName())
	})

	t.Run("load error is unavailable", func(t *testing.T) {
		p := NewProvider(func(context.Context) (Embedder, error) {
			return nil, errors.New("model missing")
		}, 16)
		_, status := p.EmbedWithStatus(ctx, "query")
		assert.Equal(t, health.Unavailable, status)
	})

	t.Run("ready backend", func(t *testing.T) {
		backend := &fakeEmbedder{dim: 16}
		p := NewProvider(func(context.Context) (Embedder, error) { return backend, nil }, 16)
		vec, status := p.EmbedWithStatus(ctx, "abc")
		assert.Equal(t, health.Ready, status)
		assert.Equal(t, float32(3), vec[0])
		assert.Equal(t, "fake", p.ModelName())
	})

	t.Run("backend error degrades", func(t *testing.T) {
		backend := &fakeEmbedder{dim: 16, err: errors.New("timeout")}
		p := NewProvider(func(context.Context) (Embedder, error) { return backend, nil }, 16)
		vec, status := p.EmbedWithStatus(ctx, "abc")
		assert.Equal(t, health.Degraded, status)
		assert.Len(t, vec, 16)
		assert.Equal(t, health.Degraded, p.Status(ctx))
	})

	t.Run("wrong vector length degrades", func(t *testing.T) {
		backend := &fakeEmbedder{dim: 16, vec: func(string) []float32 { return make([]float32, 8) }}
		p := NewProvider(func(context.Context) (Embedder, error) { return backend, nil }, 16)
		vec, status := p.EmbedWithStatus(ctx, "abc")
		assert.Equal(t, health.Degraded, status)
		assert.Len(t, vec, 16)
	})

	t.Run("backend dimension mismatch at load", func(t *testing.T) {
		backend := &fakeEmbedder{dim: 768}
		p := NewProvider(func(context.Context) (Embedder, error) { return backend, nil }, 384)
		_, status := p.EmbedWithStatus(ctx, "abc")
		assert.Equal(t, health.Unavailable, status)
		assert.Zero(t, backend.calls.Load())
	})

	t.Run("loads once under concurrency", func(t *testing.T) {
		var loads atomic.Int32
		backend := &fakeEmbedder{dim: 16}
		p := NewProvider(func(context.Context) (Embedder, error) {
			loads.Add(1)
			return backend, nil
		}, 16)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, status := p.EmbedWithStatus(ctx, "q")
				assert.Equal(t, health.Ready, status)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), loads.Load())
		assert.Equal(t, int32(20), backend.calls.Load())
	})
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Prompt == "fail" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{0.1, 0.2, 0.3, 0.4}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL + "/", Model: "tiny", Dimension: 4})

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, vec)

	_, err = e.Embed(context.Background(), "fail")
	assert.Error(t, err)

	t.Run("dimension mismatch", func(t *testing.T) {
		wrong := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Model: "tiny", Dimension: 8})
		_, err := wrong.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("loader probes backend", func(t *testing.T) {
		backend, err := OllamaLoader(OllamaConfig{BaseURL: srv.URL, Model: "tiny", Dimension: 4})(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tiny", backend.ModelName())

		_, err = OllamaLoader(OllamaConfig{BaseURL: srv.URL, Model: "tiny", Dimension: 2})(context.Background())
		assert.Error(t, err)
	})

	t.Run("default dimension from model", func(t *testing.T) {
		assert.Equal(t, 768, NewOllamaEmbedder(OllamaConfig{Model: "nomic-embed-text"}).Dimension())
		assert.Equal(t, DefaultDimension, NewOllamaEmbedder(OllamaConfig{}).Dimension())
	})
}
