// Package service wires the ranking stages into the search pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knoguchi/talentsearch/internal/assembler"
	"github.com/knoguchi/talentsearch/internal/candidate"
	"github.com/knoguchi/talentsearch/internal/enhancer"
	"github.com/knoguchi/talentsearch/internal/health"
	"github.com/knoguchi/talentsearch/internal/metrics"
	"github.com/knoguchi/talentsearch/internal/reranker"
	"github.com/knoguchi/talentsearch/internal/repository"
	"github.com/knoguchi/talentsearch/internal/vectorstore"
)

// ErrInvalidQuery is returned for caller input errors. No network call is
// made for an invalid query.
var ErrInvalidQuery = errors.New("invalid search query")

// ErrJobsDisabled is returned by SearchByJob when no job repository is set.
var ErrJobsDisabled = errors.New("job description lookup is not configured")

// DefaultPoolSize is the number of candidates retrieved for re-ranking.
const DefaultPoolSize = vectorstore.DefaultPoolSize

// SearchQuery is one ranking request.
type SearchQuery struct {
	Query    string
	Category string

	// Limit is the number of results wanted; must be positive.
	Limit int

	// Threshold is the minimum retrieval similarity, in [0, 1].
	Threshold float64

	// Enhance enables query rewriting before embedding.
	Enhance bool

	// Context is forwarded to the enhancement backend.
	Context map[string]any
}

// Metadata describes how a response was produced.
type Metadata struct {
	EnhancementStrategy enhancer.Strategy `json:"enhancement_strategy"`
	EnhancementApplied  bool              `json:"enhancement_applied"`
	EmbeddingModel      string            `json:"embedding_model"`
	EmbeddingStatus     health.Status     `json:"embedding_status"`
	RerankStatus        health.Status     `json:"rerank_status"`
	Reranked            bool              `json:"reranked"`
	PoolSize            int               `json:"pool_size"`
	Retrieved           int               `json:"candidates_retrieved"`
	Skipped             int               `json:"candidates_skipped"`
	DuplicatesRemoved   int               `json:"duplicates_removed"`
	ElapsedMs           int64             `json:"processing_time_ms"`
}

// SearchResponse is the result of one pipeline run.
type SearchResponse struct {
	SearchID     string             `json:"search_id"`
	Query        string             `json:"query"`
	FinalQuery   string             `json:"final_query"`
	Category     string             `json:"job_category,omitempty"`
	Threshold    float64            `json:"similarity_threshold"`
	TotalResults int                `json:"total_results"`
	Results      []assembler.Result `json:"results"`
	Metadata     Metadata           `json:"metadata"`
	Timestamp    time.Time          `json:"timestamp"`
}

// QueryEnhancer rewrites queries. Implemented by *enhancer.Service.
type QueryEnhancer interface {
	Enhance(ctx context.Context, query string, qctx map[string]any) enhancer.Result
}

// VectorEmbedder embeds queries. Implemented by *embedder.Provider.
type VectorEmbedder interface {
	EmbedWithStatus(ctx context.Context, text string) ([]float32, health.Status)
	ModelName() string
}

// CandidateRetriever fetches the candidate pool. Implemented by
// *vectorstore.Retriever.
type CandidateRetriever interface {
	Retrieve(ctx context.Context, vector []float32, category string, limit int, threshold float32) []vectorstore.Candidate
}

// CandidateReranker orders the pool. Implemented by *reranker.Engine.
type CandidateReranker interface {
	Rerank(ctx context.Context, query string, candidates []vectorstore.Candidate, finalLimit int) ([]candidate.Ranked, reranker.Outcome)
}

// SearchService runs the ranking pipeline: enhance, embed, retrieve,
// re-rank, assemble. Stages run sequentially; each one degrades to its
// fallback instead of failing the request.
type SearchService struct {
	enhancer  QueryEnhancer
	embedder  VectorEmbedder
	retriever CandidateRetriever
	reranker  CandidateReranker
	jobs      repository.JobRepository
	poolSize  int
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// SearchServiceOption is a functional option for configuring SearchService.
type SearchServiceOption func(*SearchService)

// WithPoolSize sets the retrieval pool size. The effective pool is never
// smaller than the requested limit.
func WithPoolSize(n int) SearchServiceOption {
	return func(s *SearchService) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

// WithJobRepository enables SearchByJob.
func WithJobRepository(repo repository.JobRepository) SearchServiceOption {
	return func(s *SearchService) {
		s.jobs = repo
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SearchServiceOption {
	return func(s *SearchService) {
		s.logger = logger
	}
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(tracer trace.Tracer) SearchServiceOption {
	return func(s *SearchService) {
		s.tracer = tracer
	}
}

// NewSearchService creates a SearchService
func NewSearchService(
	enh QueryEnhancer,
	emb VectorEmbedder,
	ret CandidateRetriever,
	rr CandidateReranker,
	opts ...SearchServiceOption,
) *SearchService {
	s := &SearchService{
		enhancer:  enh,
		embedder:  emb,
		retriever: ret,
		reranker:  rr,
		poolSize:  DefaultPoolSize,
		tracer:    otel.Tracer("github.com/knoguchi/talentsearch/internal/service"),
		logger:    slog.Default().With("component", "search"),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Validate checks caller input.
func Validate(q SearchQuery) error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, q.Limit)
	}
	if math.IsNaN(q.Threshold) || q.Threshold < 0 || q.Threshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be within [0, 1], got %v", ErrInvalidQuery, q.Threshold)
	}
	return nil
}

// Search runs the full pipeline for q.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	if err := Validate(q); err != nil {
		metrics.RecordSearch("invalid", 0)
		return nil, err
	}

	startTime := s.now()
	searchID := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, "search", trace.WithAttributes(
		attribute.String("search.id", searchID),
		attribute.String("search.category", q.Category),
		attribute.Int("search.limit", q.Limit),
		attribute.Float64("search.threshold", q.Threshold),
	))
	defer span.End()

	meta := Metadata{
		EnhancementStrategy: enhancer.None,
		PoolSize:            max(s.poolSize, q.Limit),
	}

	// Step 1: Enhance the query
	finalQuery := q.Query
	if q.Enhance {
		s.stage(ctx, "enhance", func(ctx context.Context) {
			res := s.enhancer.Enhance(ctx, q.Query, q.Context)
			finalQuery = res.Enhanced
			meta.EnhancementStrategy = res.Strategy
			meta.EnhancementApplied = res.Applied
		})
	}

	// Step 2: Embed
	var vector []float32
	s.stage(ctx, "embed", func(ctx context.Context) {
		vector, meta.EmbeddingStatus = s.embedder.EmbedWithStatus(ctx, finalQuery)
		meta.EmbeddingModel = s.embedder.ModelName()
	})
	metrics.RecordEmbedding(string(meta.EmbeddingStatus))

	// Step 3: Retrieve the candidate pool
	var pool []vectorstore.Candidate
	s.stage(ctx, "retrieve", func(ctx context.Context) {
		pool = s.retriever.Retrieve(ctx, vector, q.Category, meta.PoolSize, float32(q.Threshold))
	})
	meta.Retrieved = len(pool)

	// Step 4: Re-rank and truncate
	var ranked []candidate.Ranked
	s.stage(ctx, "rerank", func(ctx context.Context) {
		var outcome reranker.Outcome
		ranked, outcome = s.reranker.Rerank(ctx, finalQuery, pool, q.Limit)
		meta.Reranked = outcome.Reranked
		meta.RerankStatus = outcome.Status
		meta.Skipped = outcome.Skipped
	})
	metrics.RecordRerank(string(meta.RerankStatus))
	if meta.Skipped > 0 {
		metrics.RecordError("rerank", "malformed_candidate")
	}

	// Step 5: Assemble
	var results []assembler.Result
	s.stage(ctx, "assemble", func(context.Context) {
		results = assembler.Assemble(ranked)
	})
	meta.DuplicatesRemoved = len(ranked) - len(results)
	meta.ElapsedMs = s.now().Sub(startTime).Milliseconds()

	span.SetAttributes(
		attribute.Int("search.results", len(results)),
		attribute.Bool("search.reranked", meta.Reranked),
		attribute.String("search.embedding_status", string(meta.EmbeddingStatus)),
	)
	metrics.RecordSearch("ok", len(results))

	s.logger.Info("search_completed",
		slog.String("search_id", searchID),
		slog.String("category", q.Category),
		slog.Bool("enhanced", meta.EnhancementApplied),
		slog.String("embedding_status", string(meta.EmbeddingStatus)),
		slog.String("rerank_status", string(meta.RerankStatus)),
		slog.Int("retrieved", meta.Retrieved),
		slog.Int("results", len(results)),
		slog.Int64("elapsed_ms", meta.ElapsedMs),
	)

	return &SearchResponse{
		SearchID:     searchID,
		Query:        q.Query,
		FinalQuery:   finalQuery,
		Category:     q.Category,
		Threshold:    q.Threshold,
		TotalResults: len(results),
		Results:      results,
		Metadata:     meta,
		Timestamp:    startTime.UTC(),
	}, nil
}

// SearchByJob matches candidates against a stored job description. The
// job's role is used as the category filter.
func (s *SearchService) SearchByJob(ctx context.Context, jobID int64, limit int, threshold float64, enhance bool) (*SearchResponse, error) {
	if s.jobs == nil {
		return nil, ErrJobsDisabled
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("loading job %d: %w", jobID, err)
	}

	return s.Search(ctx, SearchQuery{
		Query:     job.SearchText(),
		Category:  job.JobRole,
		Limit:     limit,
		Threshold: threshold,
		Enhance:   enhance,
		Context:   map[string]any{"job_title": job.Title, "job_role": job.JobRole},
	})
}

// ListJobs returns stored job descriptions, newest first. An empty role
// lists every role.
func (s *SearchService) ListJobs(ctx context.Context, role string, limit int) ([]repository.JobDescription, error) {
	if s.jobs == nil {
		return nil, ErrJobsDisabled
	}
	jobs, err := s.jobs.List(ctx, role, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	if jobs == nil {
		jobs = []repository.JobDescription{}
	}
	return jobs, nil
}

// stage runs fn inside a child span and records its duration.
func (s *SearchService) stage(ctx context.Context, name string, fn func(ctx context.Context)) {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, fmt.Sprint(r))
			panic(r)
		}
		metrics.RecordStage(name, time.Since(start).Seconds())
	}()

	fn(ctx)
}
