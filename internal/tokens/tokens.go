// Package tokens estimates how much raw text has accumulated in a span of
// messages. Estimates only drive forced segmentation, so they trade accuracy
// for speed and never call out to a provider.
package tokens

import (
	"log"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// DefaultCharsPerToken is the character-to-token proxy used when none is configured.
const DefaultCharsPerToken = 3

// Estimator estimates the token count of a piece of text.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator approximates tokens as characters divided by a fixed ratio.
// Every non-empty estimate is at least 1.
type CharEstimator struct {
	CharsPerToken int
}

// Estimate returns max(1, runes/CharsPerToken).
func (e CharEstimator) Estimate(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(text) / per
	if n < 1 {
		return 1
	}
	return n
}

// TiktokenEstimator counts tokens with a BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding (e.g. "cl100k_base").
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// Estimate returns the BPE token count, at least 1.
func (e *TiktokenEstimator) Estimate(text string) int {
	n := len(e.enc.Encode(text, nil, nil))
	if n < 1 {
		return 1
	}
	return n
}

// New returns the estimator named by kind ("chars" or "tiktoken"). Loading the
// tiktoken encoding may require network access; on failure it falls back to
// the character proxy.
func New(kind string, charsPerToken int) Estimator {
	if kind == "tiktoken" {
		est, err := NewTiktokenEstimator("cl100k_base")
		if err == nil {
			return est
		}
		log.Printf("tokens: WARNING - tiktoken unavailable, falling back to char estimate: %v", err)
	}
	return CharEstimator{CharsPerToken: charsPerToken}
}

// EstimateMessages sums the per-message estimate of content plus timestamp.
func EstimateMessages(e Estimator, messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += e.Estimate(m.Content + m.Timestamp)
	}
	return total
}
