package enhancer

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"

	"github.com/knoguchi/talentsearch/internal/llm"
)

const (
	maxRewriteTokens   = 150
	rewriteTemperature = 0.3
)

// langchainGenerator drives any langchaingo model, used for OpenAI.
type langchainGenerator struct {
	model llms.Model
}

// NewLangchainGenerator wraps a langchaingo model.
func NewLangchainGenerator(model llms.Model) Generator {
	return &langchainGenerator{model: model}
}

func (g *langchainGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt,
		llms.WithMaxTokens(maxRewriteTokens),
		llms.WithTemperature(rewriteTemperature),
	)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	return out, nil
}

// geminiGenerator calls the Gemini API.
type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator wraps a genai client.
func NewGeminiGenerator(client *genai.Client, model string) Generator {
	return &geminiGenerator{client: client, model: model}
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](rewriteTemperature),
		MaxOutputTokens: maxRewriteTokens,
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return resp.Text(), nil
}

// ollamaGenerator calls the local Ollama client.
type ollamaGenerator struct {
	client llm.LLM
}

// NewOllamaGenerator wraps an llm.LLM.
func NewOllamaGenerator(client llm.LLM) Generator {
	return &ollamaGenerator{client: client}
}

func (g *ollamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.Generate(ctx, prompt, llm.GenerateOptions{
		Temperature: rewriteTemperature,
		MaxTokens:   maxRewriteTokens,
	})
}
