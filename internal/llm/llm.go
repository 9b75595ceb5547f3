// Package llm talks to the external text-completion service used to translate questions into
// placeholder queries and to summarize query results.
package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultMaxTokens = 2048

// Provider defines the interface for LLM integrations.
type Provider interface {
	// Complete sends a system instruction and a user payload and returns the model's text.
	Complete(ctx context.Context, req Request) (Completion, error)

	// Name returns the provider name for logging/debugging.
	Name() string
}

// Request is a single (system-instruction, user-payload) completion request.
type Request struct {
	System    string
	User      string
	MaxTokens int // 0 = provider default
}

// Completion is the raw model output.
type Completion struct {
	Text   string
	Tokens int // Tokens used (for cost tracking)
}

// Config holds LLM provider configuration.
type Config struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	Model     string
	BaseURL   string // OpenAI-compatible gateways (OpenRouter, polza.ai, ...)
	MaxTokens int
}

// ConfigFromEnv reads LLM configuration from environment variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Provider: strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))),
		APIKey:   firstEnv("LLM_API_KEY", "API_KEY"),
		Model:    os.Getenv("LLM_MODEL"),
		BaseURL:  firstEnv("LLM_BASE_URL", "POLZA_BASE_URL"),
	}
	if v, err := strconv.Atoi(os.Getenv("LLM_MAX_TOKENS")); err == nil && v > 0 {
		cfg.MaxTokens = v
	}
	return cfg
}

// NewProvider creates an LLM provider based on configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	switch cfg.Provider {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = "deepseek/deepseek-chat"
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.polza.ai/api/v1"
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, strings.TrimRight(cfg.BaseURL, "/"), cfg.MaxTokens), nil

	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = "claude-sonnet-4-20250514"
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, anthropic)", cfg.Provider)
	}
}

// NewProviderFromEnv creates an LLM provider from environment variables.
func NewProviderFromEnv() (Provider, error) {
	return NewProvider(ConfigFromEnv())
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
