package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knoguchi/talentsearch/internal/auth"
	"github.com/knoguchi/talentsearch/internal/config"
	"github.com/knoguchi/talentsearch/internal/embedder"
	"github.com/knoguchi/talentsearch/internal/enhancer"
	"github.com/knoguchi/talentsearch/internal/llm"
	"github.com/knoguchi/talentsearch/internal/metrics"
	"github.com/knoguchi/talentsearch/internal/repository"
	"github.com/knoguchi/talentsearch/internal/repository/postgres"
	"github.com/knoguchi/talentsearch/internal/reranker"
	"github.com/knoguchi/talentsearch/internal/server"
	"github.com/knoguchi/talentsearch/internal/service"
	"github.com/knoguchi/talentsearch/internal/vectorstore"
)

func main() {
	// Set up structured logging
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting talent search service",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize Qdrant vector store
	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		URL:           cfg.QdrantGRPCURL,
		APIKey:        cfg.QdrantAPIKey,
		UseTLS:        cfg.QdrantUseTLS,
		Collection:    cfg.QdrantCollection,
		CategoryField: cfg.QdrantCategoryField,
	})
	if err != nil {
		return fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	defer store.Close()

	retriever := vectorstore.NewRetriever(store,
		vectorstore.WithTimeout(cfg.RetrievalTimeout),
		vectorstore.WithErrorHook(func(error) { metrics.RecordError("retrieve", "vector_store") }),
	)

	// Embedding provider, loaded on first use
	var embedLoader embedder.Loader
	if cfg.EmbeddingBackend == config.EmbeddingOllama {
		cacheDB, err := embedder.OpenCacheStore(cfg.EmbeddingCacheDir, slog.Default())
		if err != nil {
			return fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer cacheDB.Close()

		ollama := embedder.OllamaLoader(embedder.OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     cfg.OllamaEmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
		embedLoader = func(ctx context.Context) (embedder.Embedder, error) {
			backend, err := ollama(ctx)
			if err != nil {
				return nil, err
			}
			return embedder.NewCachedEmbedder(backend,
				embedder.WithCacheSize(cfg.EmbeddingCacheSize),
				embedder.WithPersistentStore(cacheDB),
			)
		}
	}
	embed := embedder.NewProvider(embedLoader, cfg.EmbeddingDimension)

	// Re-ranking engine, loaded on first use
	var rerankLoader reranker.Loader
	switch cfg.RerankerBackend {
	case config.RerankerCrossEncoder:
		client := reranker.NewCrossEncoderClient(cfg.RerankerURL, cfg.RerankerModel, cfg.RerankTimeout, nil)
		rerankLoader = reranker.CrossEncoderLoader(client, 10*time.Second)
	case config.RerankerLLM:
		llmClient := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
		)
		rerankLoader = reranker.Static(reranker.NewLLMScorer(llmClient, reranker.WithModel(cfg.OllamaLLMModel)))
	}
	engine := reranker.NewEngine(rerankLoader, reranker.WithTimeout(cfg.RerankTimeout))

	// Query enhancement
	initial, err := enhancer.ParseStrategy(cfg.EnhancementStrategy)
	if err != nil {
		return fmt.Errorf("invalid ENHANCEMENT_STRATEGY: %w", err)
	}
	enh, err := enhancer.NewService(ctx, enhancer.NewFactory(enhancer.BackendConfig{
		OpenAIKey:     cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		GeminiKey:     cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		OllamaURL:     cfg.OllamaURL,
		OllamaModel:   cfg.OllamaLLMModel,
		CustomURL:     cfg.CustomEnhancerURL,
	}), initial,
		enhancer.WithTimeout(cfg.EnhancementTimeout),
		enhancer.WithOutcomeHook(func(s enhancer.Strategy, outcome string) {
			metrics.RecordEnhancement(string(s), outcome)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create enhancement service: %w", err)
	}

	opts := []service.SearchServiceOption{service.WithPoolSize(cfg.RetrievalPoolSize)}

	// Job descriptions are optional
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		slog.Info("connected to PostgreSQL")
		opts = append(opts, service.WithJobRepository(postgres.NewJobRepo(db)))
	}

	searchSvc := service.NewSearchService(enh, embed, retriever, engine, opts...)

	probe := server.NewProbe(retriever, map[string]server.StatusReporter{
		"embedder": embed,
		"reranker": engine,
	})

	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.JWTExpiry,
		Issuer: "talentsearch",
	})

	// Create gRPC server
	grpcServer, err := server.NewGRPCServer(server.GRPCServerConfig{
		Port:   cfg.GRPCPort,
		Logger: slog.Default(),
	}, probe)
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	// Create HTTP server
	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:             cfg.HTTPPort,
		Logger:           slog.Default(),
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		BatchWorkers:     cfg.BatchWorkers,
		DefaultLimit:     cfg.DefaultLimit,
		DefaultThreshold: cfg.DefaultThreshold,
	}, server.Handlers{
		Search:       searchSvc,
		Enhancement:  enh,
		Readiness:    probe,
		OperatorAuth: jwtManager.Middleware,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// Start servers
	errCh := make(chan error, 2)

	go func() {
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go grpcServer.WatchReadiness(ctx, server.DefaultHealthInterval)

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}
	cancel()

	// Graceful shutdown
	slog.Info("shutting down servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	slog.Info("servers stopped")
	return errors.Join(errs...)
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.JobRepository   = (*postgres.JobRepo)(nil)
	_ vectorstore.Store          = (*vectorstore.QdrantStore)(nil)
	_ server.Searcher            = (*service.SearchService)(nil)
	_ server.EnhancementControl  = (*enhancer.Service)(nil)
	_ service.VectorEmbedder     = (*embedder.Provider)(nil)
	_ service.CandidateRetriever = (*vectorstore.Retriever)(nil)
	_ service.CandidateReranker  = (*reranker.Engine)(nil)
	_ llm.LLM                    = (*llm.OllamaClient)(nil)
)
