package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/knoguchi/talentsearch/internal/enhancer"
	"github.com/knoguchi/talentsearch/internal/health"
	"github.com/knoguchi/talentsearch/internal/repository"
	"github.com/knoguchi/talentsearch/internal/service"
)

// Searcher runs the ranking pipeline. Implemented by *service.SearchService.
type Searcher interface {
	Search(ctx context.Context, q service.SearchQuery) (*service.SearchResponse, error)
	SearchByJob(ctx context.Context, jobID int64, limit int, threshold float64, enhance bool) (*service.SearchResponse, error)
	ListJobs(ctx context.Context, role string, limit int) ([]repository.JobDescription, error)
}

// EnhancementControl manages query enhancement. Implemented by
// *enhancer.Service.
type EnhancementControl interface {
	Current() enhancer.Strategy
	Switch(ctx context.Context, s enhancer.Strategy) error
	Enhance(ctx context.Context, query string, qctx map[string]any) enhancer.Result
	Try(ctx context.Context, s enhancer.Strategy, query string) (enhancer.Result, error)
}

// Handlers holds what the HTTP routes call into.
type Handlers struct {
	Search      Searcher
	Enhancement EnhancementControl
	Readiness   *Probe

	// OperatorAuth guards administrative routes.
	OperatorAuth func(http.Handler) http.Handler
}

// HTTPServer serves the JSON API
type HTTPServer struct {
	server   *http.Server
	router   *chi.Mux
	pool     *ants.Pool
	handlers Handlers
	logger   *slog.Logger
	limit    int
	thresh   float64
}

// HTTPServerConfig holds configuration for the HTTP server
type HTTPServerConfig struct {
	Port           int
	Logger         *slog.Logger
	AllowedOrigins []string // CORS allowed origins

	// Token bucket applied to search routes. Zero RPS disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// BatchWorkers bounds concurrent searches of one batch request.
	BatchWorkers int

	// Applied when a request omits limit or similarity_threshold.
	DefaultLimit     int
	DefaultThreshold float64
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg HTTPServerConfig, h Handlers) (*HTTPServer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if h.Search == nil || h.Enhancement == nil {
		return nil, errors.New("search and enhancement handlers are required")
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}

	pool, err := ants.NewPool(cfg.BatchWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch worker pool: %w", err)
	}

	s := &HTTPServer{
		pool:     pool,
		handlers: h,
		logger:   logger,
		limit:    cfg.DefaultLimit,
		thresh:   cfg.DefaultThreshold,
	}

	// Create chi router
	router := chi.NewRouter()

	// Add middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLoggingMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.Get("/healthz", healthCheckHandler())
	router.Get("/readyz", s.readinessCheckHandler())
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))))
		}
		r.Post("/search_profile", s.handleSearch)
		r.Post("/search_profile/batch", s.handleBatchSearch)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}/candidates", s.handleJobCandidates)
	})

	router.Route("/enhancement", func(r chi.Router) {
		r.Get("/status", s.handleEnhancementStatus)
		r.Get("/strategies", s.handleEnhancementStrategies)
		r.Post("/enhance", s.handleEnhance)
		r.Get("/test/{strategy}", s.handleEnhancementTest)
		r.Group(func(r chi.Router) {
			if h.OperatorAuth != nil {
				r.Use(h.OperatorAuth)
			}
			r.Post("/configure", s.handleEnhancementConfigure)
		})
	})

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	err := s.server.Shutdown(ctx)
	s.pool.Release()
	if err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Handler returns the router, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// requestLoggingMiddleware logs HTTP requests
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware handles CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware rejects requests once the shared bucket is empty.
func rateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// healthCheckHandler returns a handler for the /healthz endpoint
func healthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// readinessCheckHandler returns a handler for the /readyz endpoint
func (s *HTTPServer) readinessCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.handlers.Readiness == nil {
			writeJSON(w, http.StatusOK, Report{Status: health.Ready})
			return
		}
		report := s.handlers.Readiness.Check(r.Context())
		code := http.StatusOK
		if report.Status == health.Unavailable {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
