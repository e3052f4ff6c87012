package agent

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/tools"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DefaultOllamaURL = "http://localhost:11434"
)

type ModelConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

func NewModel(cfg ModelConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("could not create OpenAI client: %w", err)
		}
		return client, nil

	case ProviderOllama:
		// Ollama's native chat API takes neither tools nor tool messages, its
		// OpenAI compatible endpoint takes both.
		baseURL := strings.TrimSuffix(cmp.Or(cfg.BaseURL, DefaultOllamaURL), "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		client, err := openai.New(
			openai.WithToken(cmp.Or(cfg.APIKey, "ollama")),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(baseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("llm provider %q not supported", cfg.Provider)
	}
}

// DefaultTools is the toolset the service hands to the agent.
func DefaultTools() []tools.Tool {
	return []tools.Tool{tools.Calculator{}}
}
