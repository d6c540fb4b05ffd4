package embedder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knoguchi/talentsearch/internal/health"
)

// Loader constructs the real embedding backend. It is called at most once
// per Provider.
type Loader func(ctx context.Context) (Embedder, error)

// DefaultLoadTimeout bounds the one-time backend load.
const DefaultLoadTimeout = 30 * time.Second

// Provider is the embedding entry point used by the search pipeline.
//
// The backend is loaded on first use behind a sync.Once barrier; concurrent
// first callers block until the load completes. When the backend is
// unavailable, fails, or returns a vector of the wrong length, the Provider
// answers with the HashEmbedder vector for the same text.
type Provider struct {
	loader      Loader
	loadTimeout time.Duration
	fallback    *HashEmbedder
	logger      *slog.Logger

	once    sync.Once
	backend Embedder

	// last holds the status of the most recent call. It feeds readiness
	// only; no embedding result depends on it.
	last atomic.Value
}

// ProviderOption is a functional option for configuring Provider.
type ProviderOption func(*Provider)

// WithLoadTimeout bounds the backend load.
func WithLoadTimeout(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d > 0 {
			p.loadTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Provider producing vectors of the given dimension.
// A nil loader means no real backend is configured.
func NewProvider(loader Loader, dimension int, opts ...ProviderOption) *Provider {
	p := &Provider{
		loader:      loader,
		loadTimeout: DefaultLoadTimeout,
		fallback:    NewHashEmbedder(dimension),
		logger:      slog.Default().With("component", "embedder"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) load(ctx context.Context) Embedder {
	p.once.Do(func() {
		if p.loader == nil {
			p.logger.Warn("no embedding backend configured, using fallback")
			p.last.Store(health.Unavailable)
			return
		}

		// The load outlives the triggering request's cancellation.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.loadTimeout)
		defer cancel()

		start := time.Now()
		backend, err := p.loader(loadCtx)
		if err != nil {
			p.logger.Error("embedding backend load failed, using fallback until restart", "error", err)
			p.last.Store(health.Unavailable)
			return
		}
		if backend.Dimension() != p.fallback.Dimension() {
			p.logger.Error("embedding backend dimension mismatch, using fallback",
				"model", backend.ModelName(),
				"backend_dimension", backend.Dimension(),
				"dimension", p.fallback.Dimension(),
			)
			p.last.Store(health.Unavailable)
			return
		}

		p.backend = backend
		p.last.Store(health.Ready)
		p.logger.Info("embedding backend loaded",
			"model", backend.ModelName(),
			"dimension", backend.Dimension(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
	return p.backend
}

// EmbedWithStatus returns a vector of the configured dimension and the
// status of this call. It never fails.
func (p *Provider) EmbedWithStatus(ctx context.Context, text string) ([]float32, health.Status) {
	backend := p.load(ctx)
	if backend == nil {
		return p.fallback.Vector(text), health.Unavailable
	}

	vec, err := backend.Embed(ctx, text)
	if err == nil && len(vec) != p.fallback.Dimension() {
		err = ErrDimensionMismatch
	}
	if err != nil {
		p.logger.Warn("embedding failed, using fallback", "error", err)
		p.last.Store(health.Degraded)
		return p.fallback.Vector(text), health.Degraded
	}

	p.last.Store(health.Ready)
	return vec, health.Ready
}

// Embed implements Embedder. The error is always nil.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _ := p.EmbedWithStatus(ctx, text)
	return vec, nil
}

// Status loads the backend if needed and reports the status of the most
// recent call.
func (p *Provider) Status(ctx context.Context) health.Status {
	p.load(ctx)
	if s, ok := p.last.Load().(health.Status); ok {
		return s
	}
	return health.Unavailable
}

// Dimension returns the dimensionality of the embedding vectors.
func (p *Provider) Dimension() int {
	return p.fallback.Dimension()
}

// ModelName loads the backend if needed and returns its model name, or the
// fallback name when no backend could be loaded.
func (p *Provider) ModelName() string {
	if backend := p.load(context.Background()); backend != nil {
		return backend.ModelName()
	}
	return p.fallback.ModelName()
}

var _ Embedder = (*Provider)(nil)
