package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type crossEncoderRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

type crossEncoderResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

type crossEncoderResponse struct {
	Results []crossEncoderResult `json:"results"`
	Model   string               `json:"model"`
}

// CrossEncoderClient scores documents through an HTTP cross-encoder service
// exposing POST /v1/rerank.
type CrossEncoderClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewCrossEncoderClient creates a client for the service at baseURL.
// If client is nil, a default http.Client with the given timeout is used.
func NewCrossEncoderClient(baseURL, model string, timeout time.Duration, client *http.Client) *CrossEncoderClient {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &CrossEncoderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
		logger:  slog.Default().With("component", "cross_encoder"),
	}
}

// Score implements Scorer. Every document must receive exactly one score.
func (c *CrossEncoderClient) Score(ctx context.Context, query string, docs []string) ([]float32, error) {
	if len(docs) == 0 {
		return []float32{}, nil
	}

	payload, err := json.Marshal(crossEncoderRequest{Query: query, Candidates: docs, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call rerank endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var decoded crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]float32, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range decoded.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("invalid result index %d for %d candidates", r.Index, len(docs))
		}
		if seen[r.Index] {
			return nil, fmt.Errorf("duplicate result index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	if len(decoded.Results) != len(docs) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrScoreCount, len(decoded.Results), len(docs))
	}

	return scores, nil
}

// ModelName returns the model identifier.
func (c *CrossEncoderClient) ModelName() string {
	return c.model
}

// Probe sends a one-document request to confirm the service answers.
func (c *CrossEncoderClient) Probe(ctx context.Context) error {
	_, err := c.Score(ctx, "probe", []string{"probe"})
	return err
}

// CrossEncoderLoader returns a Loader that probes the service once before
// enabling it.
func CrossEncoderLoader(c *CrossEncoderClient, probeTimeout time.Duration) Loader {
	return func(ctx context.Context) (Scorer, error) {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := c.Probe(ctx); err != nil {
			return nil, fmt.Errorf("cross-encoder probe: %w", err)
		}
		return c, nil
	}
}

var _ Scorer = (*CrossEncoderClient)(nil)
