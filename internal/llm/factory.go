package llm

import (
	"fmt"

	"github.com/scrypster/enhancedmem/internal/config"
)

// NewProvider creates the Provider selected by cfg, wrapped with a rate
// limiter when cfg.RequestsPerSecond is positive.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "openai", "":
		p = NewOpenAIClient(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	case "anthropic":
		p = NewAnthropicClient(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout})
	case "ollama":
		p = NewOllamaClient(OllamaConfig{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	return NewRateLimitedProvider(p, cfg.RequestsPerSecond, cfg.Burst), nil
}
