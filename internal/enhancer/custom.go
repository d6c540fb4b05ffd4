package enhancer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type customRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context"`
}

type customResponse struct {
	EnhancedQuery string `json:"enhanced_query"`
}

// CustomAPIEnhancer posts {query, context} to an operator endpoint and
// expects {enhanced_query} back.
type CustomAPIEnhancer struct {
	url    string
	client *http.Client
}

// NewCustomAPIEnhancer creates an enhancer for url. A nil client uses
// http.DefaultClient; callers bound requests with the context.
func NewCustomAPIEnhancer(url string, client *http.Client) *CustomAPIEnhancer {
	if client == nil {
		client = http.DefaultClient
	}
	return &CustomAPIEnhancer{url: url, client: client}
}

// Enhance implements Enhancer.
func (c *CustomAPIEnhancer) Enhance(ctx context.Context, query string, qctx map[string]any) (string, error) {
	if qctx == nil {
		qctx = map[string]any{}
	}
	body, err := json.Marshal(customRequest{Query: query, Context: qctx})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("custom enhancer returned %d: %s", resp.StatusCode, string(msg))
	}

	var out customResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.EnhancedQuery, nil
}
