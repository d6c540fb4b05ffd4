package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/knoguchi/talentsearch/internal/enhancer"
	"github.com/knoguchi/talentsearch/internal/metrics"
	"github.com/knoguchi/talentsearch/internal/repository"
	"github.com/knoguchi/talentsearch/internal/service"
)

// maxBatchSize bounds the searches in one batch request.
const maxBatchSize = 20

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type searchRequest struct {
	Query        string         `json:"query"`
	JobCategory  string         `json:"job_category,omitempty"`
	Limit        *int           `json:"limit,omitempty"`
	Threshold    *float64       `json:"similarity_threshold,omitempty"`
	EnhanceQuery bool           `json:"enhance_query"`
	Context      map[string]any `json:"context,omitempty"`
}

type batchRequest struct {
	Searches []searchRequest `json:"searches"`
}

type batchItem struct {
	Index    int                     `json:"index"`
	Response *service.SearchResponse `json:"response,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

type enhanceRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

type configureRequest struct {
	Strategy string `json:"strategy"`
}

type statusResponse struct {
	CurrentStrategy     enhancer.Strategy   `json:"current_strategy"`
	AvailableStrategies []enhancer.Strategy `json:"available_strategies"`
}

func (s *HTTPServer) toQuery(req searchRequest) service.SearchQuery {
	q := service.SearchQuery{
		Query:     req.Query,
		Category:  strings.TrimSpace(req.JobCategory),
		Limit:     s.limit,
		Threshold: s.thresh,
		Enhance:   req.EnhanceQuery,
		Context:   req.Context,
	}
	if req.Limit != nil {
		q.Limit = *req.Limit
	}
	if req.Threshold != nil {
		q.Threshold = *req.Threshold
	}
	return q
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.handlers.Search.Search(r.Context(), s.toQuery(req))
	if err != nil {
		s.writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBatchSearch runs independent searches on the worker pool. Each
// item succeeds or fails on its own.
func (s *HTTPServer) handleBatchSearch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Searches) == 0 {
		writeError(w, http.StatusBadRequest, "searches must not be empty")
		return
	}
	if len(req.Searches) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d searches per batch", maxBatchSize))
		return
	}

	ctx := r.Context()
	items := make([]batchItem, len(req.Searches))
	var wg sync.WaitGroup
	for i, sr := range req.Searches {
		items[i].Index = i
		q := s.toQuery(sr)
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			resp, err := s.handlers.Search.Search(ctx, q)
			if err != nil {
				items[i].Error = err.Error()
				return
			}
			items[i].Response = resp
		})
		if err != nil {
			wg.Done()
			items[i].Error = err.Error()
			metrics.RecordError("batch_search", "pool_submit")
		}
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, batchResponse{Results: items})
}

func (s *HTTPServer) handleJobCandidates(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "job id must be a positive integer")
		return
	}

	limit, threshold := s.limit, s.thresh
	qs := r.URL.Query()
	if v := qs.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
	}
	if v := qs.Get("similarity_threshold"); v != "" {
		if threshold, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, http.StatusBadRequest, "similarity_threshold must be a number")
			return
		}
	}
	enhance, _ := strconv.ParseBool(qs.Get("enhance_query"))

	resp, err := s.handlers.Search.SearchByJob(r.Context(), id, limit, threshold, enhance)
	if err != nil {
		s.writeServiceError(w, "search_by_job", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	limit := 0
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := s.handlers.Search.ListJobs(r.Context(), qs.Get("role"), limit)
	if err != nil {
		s.writeServiceError(w, "list_jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *HTTPServer) handleEnhancementStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		CurrentStrategy:     s.handlers.Enhancement.Current(),
		AvailableStrategies: enhancer.Strategies(),
	})
}

func (s *HTTPServer) handleEnhancementStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"strategies": enhancer.Describe()})
}

func (s *HTTPServer) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	writeJSON(w, http.StatusOK, s.handlers.Enhancement.Enhance(r.Context(), req.Query, req.Context))
}

func (s *HTTPServer) handleEnhancementTest(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		query = "software engineer with python experience"
	}
	res, err := s.handlers.Enhancement.Try(r.Context(), enhancer.Strategy(chi.URLParam(r, "strategy")), query)
	if err != nil {
		s.writeServiceError(w, "enhancement_test", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleEnhancementConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ctx := r.Context()
	prev := s.handlers.Enhancement.Current()
	if err := s.handlers.Enhancement.Switch(ctx, enhancer.Strategy(req.Strategy)); err != nil {
		s.writeServiceError(w, "enhancement_configure", err)
		return
	}
	s.logger.Info("enhancement_strategy_configured",
		slog.String("from", string(prev)),
		slog.String("to", string(s.handlers.Enhancement.Current())),
	)
	writeJSON(w, http.StatusOK, statusResponse{
		CurrentStrategy:     s.handlers.Enhancement.Current(),
		AvailableStrategies: enhancer.Strategies(),
	})
}

// writeServiceError maps service errors onto HTTP status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuery), errors.Is(err, enhancer.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrJobsDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		s.logger.Error("request_failed", slog.String("operation", op), slog.String("error", err.Error()))
		metrics.RecordError(op, "internal")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
