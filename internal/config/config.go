package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pai-backend/internal/agent"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"data/pai.db"` // postgres:// URL or sqlite path
	Port        int    `env:"PORT" envDefault:"8000"`

	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`
	GuestSessionTTL time.Duration `env:"GUEST_SESSION_TTL" envDefault:"336h"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"false"`
	CorsOrigins     []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	LLMProvider   string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel      string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	LLMBaseURL    string `env:"LLM_BASE_URL"`
	AgentMaxSteps int    `env:"AGENT_MAX_STEPS" envDefault:"8"`
	SystemPrompt  string `env:"SYSTEM_PROMPT"`
}

func (c Config) Model() agent.ModelConfig {
	return agent.ModelConfig{
		Provider: c.LLMProvider,
		Model:    c.LLMModel,
		APIKey:   c.OpenAIKey,
		BaseURL:  c.LLMBaseURL,
	}
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case agent.ProviderOpenAI:
		if c.OpenAIKey == "" && c.LLMBaseURL == "" {
			return errors.New("OPENAI_API_KEY is required for the openai provider")
		}
	case agent.ProviderOllama:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.AgentMaxSteps < 1 {
		return fmt.Errorf("AGENT_MAX_STEPS must be positive, got %d", c.AgentMaxSteps)
	}
	if c.GuestSessionTTL <= 0 {
		return fmt.Errorf("GUEST_SESSION_TTL must be positive, got %s", c.GuestSessionTTL)
	}
	return nil
}

// Load reads the configuration from the environment. Call cmd.LoadEnvFile
// first to pick up values from a .env file.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	if len(cfg.CorsOrigins) == 1 && cfg.CorsOrigins[0] == "*" {
		log.Println("Warning: CORS_ORIGINS allows all origins, set it explicitly in production.")
	}

	return cfg, nil
}
