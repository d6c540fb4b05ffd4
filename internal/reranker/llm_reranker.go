package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/knoguchi/talentsearch/internal/llm"
)

// maxDocChars caps each profile in the prompt, in runes, to stay inside the
// model's context window.
const maxDocChars = 500

// LLMScorer uses a generative model as a cross-encoder: the model sees the
// query and every profile together and returns a JSON score per profile.
type LLMScorer struct {
	llmClient llm.LLM
	model     string
}

// LLMScorerOption is a functional option for configuring LLMScorer.
type LLMScorerOption func(*LLMScorer)

// WithModel sets the model to use for scoring.
func WithModel(model string) LLMScorerOption {
	return func(r *LLMScorer) {
		r.model = model
	}
}

// NewLLMScorer creates a new LLM-based scorer.
func NewLLMScorer(llmClient llm.LLM, opts ...LLMScorerOption) *LLMScorer {
	r := &LLMScorer{
		llmClient: llmClient,
		model:     llm.DefaultModel,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float32 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Score implements Scorer. A response that omits any profile is an error so
// the Engine falls back instead of inventing scores.
func (r *LLMScorer) Score(ctx context.Context, query string, docs []string) ([]float32, error) {
	if len(docs) == 0 {
		return []float32{}, nil
	}

	response, err := r.llmClient.Generate(ctx, r.buildPrompt(query, docs), llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.0,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM reranking failed: %w", err)
	}

	return parseScores(response, len(docs))
}

// ModelName returns the model identifier.
func (r *LLMScorer) ModelName() string {
	return r.model
}

func (r *LLMScorer) buildPrompt(query string, docs []string) string {
	var sb strings.Builder

	sb.WriteString("You are a recruiting relevance scoring system. Score how well each candidate profile matches the job query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Candidates to score:\n")
	for i, doc := range docs {
		fmt.Fprintf(&sb, "[Candidate %d]: %s\n\n", i, truncate(doc, maxDocChars))
	}

	sb.WriteString(`Score each candidate from 0.0 to 1.0 based on fit for the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Include every candidate exactly once. Be strict: poor matches should score below 0.3, partial matches 0.3-0.7, strong matches above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseScores extracts one clamped score per document from the model output.
func parseScores(response string, numDocs int) ([]float32, error) {
	response = stripCodeFence(strings.TrimSpace(response))

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	scores := make([]float32, numDocs)
	seen := make([]bool, numDocs)
	count := 0
	for _, s := range parsed.Scores {
		if s.DocIndex < 0 || s.DocIndex >= numDocs || seen[s.DocIndex] {
			continue
		}
		seen[s.DocIndex] = true
		count++
		scores[s.DocIndex] = min(max(s.Score, 0), 1)
	}
	if count != numDocs {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrScoreCount, count, numDocs)
	}

	return scores, nil
}

// truncate cuts s to at most n runes, appending "..." when it cuts.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func stripCodeFence(s string) string {
	if idx := strings.Index(s, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	} else if idx := strings.Index(s, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	return s
}

var _ Scorer = (*LLMScorer)(nil)
