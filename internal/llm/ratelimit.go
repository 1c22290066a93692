package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// RateLimitedProvider delays calls to the wrapped provider so that no more
// than the configured number of requests per second are issued.
type RateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps next with a token-bucket limiter. A
// non-positive rate returns next unchanged.
func NewRateLimitedProvider(next Provider, reqPerSec float64, burst int) Provider {
	if reqPerSec <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
	}
}

// Chat waits for a limiter token (or ctx cancellation) and then delegates.
func (p *RateLimitedProvider) Chat(ctx context.Context, messages []types.ChatMessage, model string, temperature float64) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limiter: %w", err)
	}
	return p.next.Chat(ctx, messages, model, temperature)
}

// GetModel returns the wrapped provider's model.
func (p *RateLimitedProvider) GetModel() string {
	return p.next.GetModel()
}
