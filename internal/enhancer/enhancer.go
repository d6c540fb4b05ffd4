// Package enhancer rewrites free-text search queries into richer keyword
// queries before embedding.
//
// Enhancement is best-effort. Every failure mode (missing credentials,
// backend errors, timeouts, empty rewrites) yields the original query.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotConfigured is returned by enhancers whose credentials or endpoint
// are missing.
var ErrNotConfigured = errors.New("enhancement backend not configured")

// ErrEmptyRewrite is returned when a backend answers with no usable text.
var ErrEmptyRewrite = errors.New("enhancement returned empty query")

// Enhancer rewrites one query. Implementations report failures as errors;
// the Service turns them into the identity fallback.
type Enhancer interface {
	Enhance(ctx context.Context, query string, qctx map[string]any) (string, error)
}

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// identity is the None strategy.
type identity struct{}

func (identity) Enhance(_ context.Context, query string, _ map[string]any) (string, error) {
	return query, nil
}

// unconfigured stands in for a strategy whose prerequisites are missing.
type unconfigured struct {
	strategy Strategy
	reason   string
}

func (u unconfigured) Enhance(context.Context, string, map[string]any) (string, error) {
	return "", fmt.Errorf("%w: %s: %s", ErrNotConfigured, u.strategy, u.reason)
}

// PromptEnhancer asks a generative model to rewrite the query.
type PromptEnhancer struct {
	gen Generator
}

// NewPromptEnhancer creates an enhancer backed by gen.
func NewPromptEnhancer(gen Generator) *PromptEnhancer {
	return &PromptEnhancer{gen: gen}
}

// Enhance implements Enhancer.
func (p *PromptEnhancer) Enhance(ctx context.Context, query string, qctx map[string]any) (string, error) {
	out, err := p.gen.Generate(ctx, BuildPrompt(query, qctx))
	if err != nil {
		return "", err
	}
	return out, nil
}

// BuildPrompt renders the rewrite instructions for query. Context entries
// are appended as sorted "key: value" lines.
func BuildPrompt(query string, qctx map[string]any) string {
	var sb strings.Builder
	sb.WriteString("You are a resume search expert. Enhance the following search query to improve vector search results for finding relevant resumes.\n\n")
	fmt.Fprintf(&sb, "Original query: %q\n", query)

	if len(qctx) > 0 {
		keys := make([]string, 0, len(qctx))
		for k := range qctx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nSearch context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %v\n", k, qctx[k])
		}
	}

	sb.WriteString(`
Guidelines:
1. Expand abbreviations and acronyms
2. Add relevant synonyms and related terms
3. Include both technical and soft skills variations
4. Keep it concise but comprehensive
5. Focus on searchable keywords

Return only the enhanced query, no explanations.

Enhanced query:`)
	return sb.String()
}

// Clean normalizes a model rewrite: it trims whitespace, drops an echoed
// "Enhanced query:" label and strips one pair of wrapping quotes.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(strings.ToLower(s), "enhanced query:"); i == 0 {
		s = strings.TrimSpace(s[len("enhanced query:"):])
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
