// Package config loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Embedding backends.
const (
	EmbeddingOllama = "ollama"
	EmbeddingNone   = "none"
)

// Re-ranking backends.
const (
	RerankerCrossEncoder = "cross_encoder"
	RerankerLLM          = "llm"
	RerankerNone         = "none"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the ranking service
type Config struct {
	// Server
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"9090"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// PostgreSQL job descriptions. Empty disables job search.
	DatabaseURL string `env:"DATABASE_URL"`

	// Qdrant
	QdrantGRPCURL       string        `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantAPIKey        string        `env:"QDRANT_API_KEY"`
	QdrantUseTLS        bool          `env:"QDRANT_USE_TLS" envDefault:"false"`
	QdrantCollection    string        `env:"QDRANT_COLLECTION" envDefault:"employee_profiles"`
	QdrantCategoryField string        `env:"QDRANT_CATEGORY_FIELD" envDefault:"job_category"`
	RetrievalTimeout    time.Duration `env:"RETRIEVAL_TIMEOUT" envDefault:"5s"`
	RetrievalPoolSize   int           `env:"RETRIEVAL_POOL_SIZE" envDefault:"40"`

	// Request defaults
	DefaultLimit     int     `env:"DEFAULT_LIMIT" envDefault:"10"`
	DefaultThreshold float64 `env:"DEFAULT_THRESHOLD" envDefault:"0.5"`

	// Embeddings
	EmbeddingBackend     string `env:"EMBEDDING_BACKEND" envDefault:"ollama"`
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"all-minilm"`
	EmbeddingDimension   int    `env:"EMBEDDING_DIMENSION" envDefault:"384"`
	EmbeddingCacheSize   int    `env:"EMBEDDING_CACHE_SIZE" envDefault:"4096"`
	EmbeddingCacheDir    string `env:"EMBEDDING_CACHE_DIR"`

	// Re-ranking
	RerankerBackend string        `env:"RERANKER_BACKEND" envDefault:"cross_encoder"`
	RerankerURL     string        `env:"RERANKER_URL" envDefault:"http://localhost:8001"`
	RerankerModel   string        `env:"RERANKER_MODEL" envDefault:"cross-encoder/ms-marco-MiniLM-L-6-v2"`
	RerankTimeout   time.Duration `env:"RERANK_TIMEOUT" envDefault:"15s"`

	// Query enhancement
	EnhancementStrategy string        `env:"ENHANCEMENT_STRATEGY" envDefault:"none"`
	EnhancementTimeout  time.Duration `env:"ENHANCEMENT_TIMEOUT" envDefault:"10s"`
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIModel         string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL"`
	GeminiAPIKey        string        `env:"GEMINI_API_KEY"`
	GeminiModel         string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OllamaLLMModel      string        `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`
	CustomEnhancerURL   string        `env:"CUSTOM_ENHANCER_URL"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-this-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Serving
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	BatchWorkers   int     `env:"BATCH_WORKERS" envDefault:"4"`
}

// DefaultJWTSecret is the development signing secret. Production refuses it.
const DefaultJWTSecret = "change-this-in-production"

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.DefaultLimit > 0, "DEFAULT_LIMIT must be positive, got %d", c.DefaultLimit)
	check(c.DefaultThreshold >= 0 && c.DefaultThreshold <= 1, "DEFAULT_THRESHOLD must be within [0, 1], got %v", c.DefaultThreshold)
	check(c.RetrievalPoolSize > 0, "RETRIEVAL_POOL_SIZE must be positive, got %d", c.RetrievalPoolSize)
	check(c.EmbeddingDimension > 0, "EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	check(c.BatchWorkers > 0, "BATCH_WORKERS must be positive, got %d", c.BatchWorkers)
	check(c.RateLimitRPS > 0, "RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	check(c.RateLimitBurst > 0, "RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst)
	check(!c.IsProduction() || (c.JWTSecret != "" && c.JWTSecret != DefaultJWTSecret),
		"JWT_SECRET must be set to a non-default value in production")

	switch c.EmbeddingBackend {
	case EmbeddingOllama, EmbeddingNone:
	default:
		check(false, "unknown EMBEDDING_BACKEND %q", c.EmbeddingBackend)
	}
	switch c.RerankerBackend {
	case RerankerCrossEncoder, RerankerLLM, RerankerNone:
	default:
		check(false, "unknown RERANKER_BACKEND %q", c.RerankerBackend)
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
