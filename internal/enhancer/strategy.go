package enhancer

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy names a query enhancement backend.
type Strategy string

const (
	// None returns the query unchanged.
	None Strategy = "none"

	// OpenAI rewrites the query with an OpenAI chat model.
	OpenAI Strategy = "openai"

	// Gemini rewrites the query with a Google Gemini model.
	Gemini Strategy = "gemini"

	// LocalLLM rewrites the query with a locally served Ollama model.
	LocalLLM Strategy = "local_llm"

	// CustomAPI delegates to an operator-provided HTTP endpoint.
	CustomAPI Strategy = "custom_api"
)

// ErrUnknownStrategy is returned for strategy names outside the known set.
var ErrUnknownStrategy = errors.New("unknown enhancement strategy")

var allStrategies = []Strategy{None, OpenAI, Gemini, LocalLLM, CustomAPI}

// Strategies returns every known strategy in display order.
func Strategies() []Strategy {
	out := make([]Strategy, len(allStrategies))
	copy(out, allStrategies)
	return out
}

// ParseStrategy validates a strategy name. Matching is case-insensitive.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range allStrategies {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w %q, available: %v", ErrUnknownStrategy, name, allStrategies)
}

// StrategyInfo describes a strategy for operators.
type StrategyInfo struct {
	Name         Strategy `json:"name"`
	Description  string   `json:"description"`
	Requirements string   `json:"requirements"`
	Performance  string   `json:"performance"`
}

// Describe returns operator-facing descriptions of every strategy.
func Describe() []StrategyInfo {
	return []StrategyInfo{
		{None, "No enhancement, returns original query", "None", "Instant"},
		{OpenAI, "OpenAI GPT-based query enhancement", "OPENAI_API_KEY environment variable", "~1-2 seconds per query"},
		{Gemini, "Google Gemini-based query enhancement", "GEMINI_API_KEY environment variable", "~1-2 seconds per query"},
		{LocalLLM, "Local model served by Ollama", "Ollama running at OLLAMA_URL with OLLAMA_LLM_MODEL pulled", "~2-5 seconds per query (first time slower)"},
		{CustomAPI, "Custom API endpoint for enhancement", "CUSTOM_ENHANCER_URL environment variable", "Depends on your API"},
	}
}
