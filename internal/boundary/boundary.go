// Package boundary decides whether newly arrived messages close the open
// conversation episode. Deterministic message and token ceilings force a split
// without consulting the LLM; otherwise a single judgment is requested with a
// bounded number of attempts, degrading to "wait" when no usable reply arrives.
package boundary

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/enhancedmem/internal/config"
	"github.com/scrypster/enhancedmem/internal/llm"
	"github.com/scrypster/enhancedmem/internal/tokens"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// Config holds the detector limits.
type Config struct {
	HardTokenLimit   int
	HardMessageLimit int
	CharsPerToken    int
	MaxAttempts      int
	Temperature      float64
}

// DefaultConfig returns the standard limits: 8192 tokens, 50 messages,
// 3 characters per token, 3 attempts at temperature 0.1.
func DefaultConfig() Config {
	return Config{
		HardTokenLimit:   8192,
		HardMessageLimit: 50,
		CharsPerToken:    tokens.DefaultCharsPerToken,
		MaxAttempts:      3,
		Temperature:      0.1,
	}
}

// FromConfig converts the loaded configuration section, filling zero values
// from DefaultConfig.
func FromConfig(c config.BoundaryConfig) Config {
	cfg := DefaultConfig()
	if c.HardTokenLimit > 0 {
		cfg.HardTokenLimit = c.HardTokenLimit
	}
	if c.HardMessageLimit > 0 {
		cfg.HardMessageLimit = c.HardMessageLimit
	}
	if c.CharsPerToken > 0 {
		cfg.CharsPerToken = c.CharsPerToken
	}
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.Temperature > 0 {
		cfg.Temperature = c.Temperature
	}
	return cfg
}

// Detector runs boundary detection with a fixed configuration.
type Detector struct {
	cfg       Config
	estimator tokens.Estimator
}

// NewDetector creates a detector. A nil estimator selects the character proxy
// with cfg.CharsPerToken.
func NewDetector(cfg Config, estimator tokens.Estimator) *Detector {
	if estimator == nil {
		estimator = tokens.CharEstimator{CharsPerToken: cfg.CharsPerToken}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Detector{cfg: cfg, estimator: estimator}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

var (
	waitDecision     = types.BoundaryDecision{End: false, Wait: true}
	continueDecision = types.BoundaryDecision{End: false, Wait: false}
)

// Detect decides whether newMsgs close the episode formed by history.
//
// An empty newMsgs yields not-end/wait. When the combined span reaches either
// hard ceiling and history holds at least two messages the episode is
// force-closed without calling the provider. An empty history yields
// not-end/not-wait. Otherwise up to MaxAttempts calls are made; the first
// reply containing a well-formed JSON object decides. Provider errors and
// unparseable replies are logged and the next attempt proceeds. When every
// attempt fails the result is not-end/wait.
func (d *Detector) Detect(ctx context.Context, provider llm.Provider, model string, history, newMsgs []types.Message) types.BoundaryDecision {
	if len(newMsgs) == 0 {
		return waitDecision
	}

	all := make([]types.Message, 0, len(history)+len(newMsgs))
	all = append(all, history...)
	all = append(all, newMsgs...)

	totalTokens := tokens.EstimateMessages(d.estimator, all)
	if totalTokens >= d.cfg.HardTokenLimit || len(all) >= d.cfg.HardMessageLimit {
		if len(history) >= 2 {
			log.Printf("Boundary: forced split (%d messages, ~%d tokens)", len(all), totalTokens)
			return types.BoundaryDecision{End: true, Wait: false, Summary: types.ForceSplitSummary}
		}
	}

	if len(history) == 0 {
		return continueDecision
	}

	prompt := llm.BoundaryDetectionPrompt(
		FormatMessages(history),
		TimeGapInfo(history, newMsgs),
		FormatMessages(newMsgs),
	)
	messages := llm.SystemAndUser(llm.BoundarySystemPrompt, prompt)

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			log.Printf("Boundary: WARNING - context done before attempt %d: %v", attempt, err)
			break
		}

		reply, err := provider.Chat(ctx, messages, model, d.cfg.Temperature)
		if err != nil {
			log.Printf("Boundary: WARNING - detection attempt %d failed: %v", attempt, err)
			continue
		}

		decision, ok := parseDecision(reply)
		if !ok {
			log.Printf("Boundary: WARNING - detection attempt %d returned no JSON object", attempt)
			continue
		}
		return decision
	}

	return waitDecision
}

// parseDecision reads should_end, should_wait, and topic_summary from the first
// JSON object in reply. Missing or malformed flags default to end=false and
// wait=true; end=true always clears wait.
func parseDecision(reply string) (types.BoundaryDecision, bool) {
	res, ok := llm.DecodeObject(strings.TrimSpace(reply))
	if !ok {
		return types.BoundaryDecision{}, false
	}

	decision := types.BoundaryDecision{
		End:  llm.BoolOr(res, "should_end", false),
		Wait: llm.BoolOr(res, "should_wait", true),
	}
	if decision.End {
		decision.Summary = strings.TrimSpace(res.Get("topic_summary").String())
	}
	if decision.End {
		decision.Wait = false
	}
	return decision, true
}

// FormatMessages renders messages one per line as
// "[YYYY-MM-DDTHH:MM] ROLE [tools: a, b]: content", skipping empty content.
func FormatMessages(messages []types.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		role := strings.ToUpper(string(m.Role))
		if role == "" {
			role = "UNKNOWN"
		}
		var tools string
		if len(m.ToolsUsed) > 0 {
			tools = fmt.Sprintf(" [tools: %s]", strings.Join(m.ToolsUsed, ", "))
		}
		lines = append(lines, fmt.Sprintf("[%s] %s%s: %s", prefix(m.Timestamp, 16), role, tools, m.Content))
	}
	return strings.Join(lines, "\n")
}

// TimeGapInfo describes the gap between the last history message and the
// first new message in one of four buckets: seconds (immediate reply),
// minutes, hours, or days (likely a new conversation).
func TimeGapInfo(history, newMsgs []types.Message) string {
	if len(history) == 0 || len(newMsgs) == 0 {
		return "No time gap information"
	}
	lastTS := history[len(history)-1].Timestamp
	firstTS := newMsgs[0].Timestamp
	if lastTS == "" || firstTS == "" {
		return "No timestamps"
	}
	last, ok1 := types.ParseTimestamp(lastTS)
	first, ok2 := types.ParseTimestamp(firstTS)
	if !ok1 || !ok2 {
		return "Time parsing failed"
	}

	diff := first.Sub(last).Seconds()
	switch {
	case diff < 60:
		return fmt.Sprintf("Gap of %d seconds (immediate reply)", int(diff))
	case diff < 3600:
		return fmt.Sprintf("Gap of %d minutes", int(diff/60))
	case diff < 86400:
		return fmt.Sprintf("Gap of %d hours", int(diff/3600))
	default:
		return fmt.Sprintf("Gap of %d days (likely a new conversation)", int(diff/86400))
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
