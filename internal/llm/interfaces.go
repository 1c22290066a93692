package llm

import (
	"context"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// Provider is the single chat capability the consolidation core consumes.
// It takes an ordered list of role/content messages (no tool bindings), a
// model identifier, and a sampling temperature, and returns the reply text or
// an error. An empty model selects the provider's configured default.
type Provider interface {
	Chat(ctx context.Context, messages []types.ChatMessage, model string, temperature float64) (string, error)
	GetModel() string
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, messages []types.ChatMessage, model string, temperature float64) (string, error)

// Chat calls f.
func (f ProviderFunc) Chat(ctx context.Context, messages []types.ChatMessage, model string, temperature float64) (string, error) {
	return f(ctx, messages, model, temperature)
}

// GetModel returns an empty string; function providers have no default model.
func (f ProviderFunc) GetModel() string { return "" }

// SystemAndUser builds the common two-message conversation.
func SystemAndUser(system, user string) []types.ChatMessage {
	return []types.ChatMessage{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleUser, Content: user},
	}
}

// UserOnly builds a single user-message conversation.
func UserOnly(prompt string) []types.ChatMessage {
	return []types.ChatMessage{{Role: types.RoleUser, Content: prompt}}
}
