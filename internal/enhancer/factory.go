package enhancer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"github.com/knoguchi/talentsearch/internal/llm"
)

// DefaultGeminiModel is used when BackendConfig.GeminiModel is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

// Builder constructs the Enhancer for a strategy.
type Builder interface {
	Build(ctx context.Context, s Strategy) (Enhancer, error)
}

// BackendConfig holds credentials and endpoints for every strategy.
type BackendConfig struct {
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string

	CustomURL string

	HTTPClient *http.Client
}

// Factory builds enhancers from BackendConfig. Strategies whose credentials
// are missing build successfully but always report ErrNotConfigured, so the
// Service answers with the original query.
type Factory struct {
	cfg BackendConfig
}

// NewFactory creates a Factory.
func NewFactory(cfg BackendConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Build implements Builder.
func (f *Factory) Build(ctx context.Context, s Strategy) (Enhancer, error) {
	switch s {
	case None:
		return identity{}, nil

	case OpenAI:
		if f.cfg.OpenAIKey == "" {
			return unconfigured{s, "OPENAI_API_KEY is not set"}, nil
		}
		opts := []openai.Option{openai.WithToken(f.cfg.OpenAIKey)}
		if f.cfg.OpenAIModel != "" {
			opts = append(opts, openai.WithModel(f.cfg.OpenAIModel))
		}
		if f.cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(f.cfg.OpenAIBaseURL))
		}
		if f.cfg.HTTPClient != nil {
			opts = append(opts, openai.WithHTTPClient(f.cfg.HTTPClient))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		return NewPromptEnhancer(NewLangchainGenerator(model)), nil

	case Gemini:
		if f.cfg.GeminiKey == "" {
			return unconfigured{s, "GEMINI_API_KEY is not set"}, nil
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     f.cfg.GeminiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: f.cfg.HTTPClient,
		})
		if err != nil {
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		model := f.cfg.GeminiModel
		if model == "" {
			model = DefaultGeminiModel
		}
		return NewPromptEnhancer(NewGeminiGenerator(client, model)), nil

	case LocalLLM:
		if f.cfg.OllamaURL == "" {
			return unconfigured{s, "OLLAMA_URL is not set"}, nil
		}
		opts := []llm.OllamaOption{llm.WithBaseURL(f.cfg.OllamaURL), llm.WithModel(f.cfg.OllamaModel)}
		if f.cfg.HTTPClient != nil {
			opts = append(opts, llm.WithHTTPClient(f.cfg.HTTPClient))
		}
		return NewPromptEnhancer(NewOllamaGenerator(llm.NewOllamaClient(opts...))), nil

	case CustomAPI:
		if f.cfg.CustomURL == "" {
			return unconfigured{s, "CUSTOM_ENHANCER_URL is not set"}, nil
		}
		return NewCustomAPIEnhancer(f.cfg.CustomURL, f.cfg.HTTPClient), nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownStrategy, s)
	}
}

var _ Builder = (*Factory)(nil)
