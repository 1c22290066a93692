// Package engine orchestrates episodic memory consolidation: it selects the
// unconsolidated span of a session, asks the boundary detector whether the
// open episode has ended, and if so packages the span as a MemCell, assigns
// it to a cluster, runs the extraction pipeline, and folds the result into
// the long-term digest before advancing the session cursor.
package engine

import (
	"errors"
	"fmt"

	"github.com/scrypster/enhancedmem/internal/boundary"
	"github.com/scrypster/enhancedmem/internal/config"
	"github.com/scrypster/enhancedmem/internal/digest"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// ErrInvalidTransition is returned when the state machine attempts an
// undefined transition.
var ErrInvalidTransition = errors.New("engine: invalid state transition")

// Session is the collaborator that owns the raw messages and the
// consolidation cursor (an offset into Messages).
type Session interface {
	Messages() []types.Message
	LastConsolidated() int
	SetLastConsolidated(n int)
}

// Options control a single Consolidate call.
type Options struct {
	// ArchiveAll consolidates every remaining message with a forced boundary.
	ArchiveAll bool

	// MemoryWindow is the consolidation window; the most recent half of it
	// is left unconsolidated. Zero uses Config.MemoryWindow.
	MemoryWindow int

	// PendingUserMessage is a user message not yet appended to the session.
	// When set it is the "new" side of boundary detection.
	PendingUserMessage *types.Message
}

// Config holds configuration for the consolidator.
type Config struct {
	// MaxDigestChars is the soft cap of MEMORY.md (default: 6000).
	MaxDigestChars int

	// MemoryWindow is the default consolidation window (default: 50).
	MemoryWindow int

	// RecentEpisodes is the number of episodes in the memory context (default: 3).
	RecentEpisodes int

	// Boundary holds the boundary detector limits.
	Boundary boundary.Config
}

// DefaultConfig returns a Config with the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxDigestChars: digest.DefaultMaxChars,
		MemoryWindow:   50,
		RecentEpisodes: 3,
		Boundary:       boundary.DefaultConfig(),
	}
}

// ConfigFrom derives the consolidator configuration from the loaded config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	if cfg.Memory.MaxDigestChars > 0 {
		c.MaxDigestChars = cfg.Memory.MaxDigestChars
	}
	if cfg.Memory.Window > 0 {
		c.MemoryWindow = cfg.Memory.Window
	}
	if cfg.Memory.RecentEpisodes >= 0 {
		c.RecentEpisodes = cfg.Memory.RecentEpisodes
	}
	c.Boundary = boundary.FromConfig(cfg.Boundary)
	return c
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.MaxDigestChars < 1 {
		return fmt.Errorf("MaxDigestChars must be >= 1, got %d", c.MaxDigestChars)
	}
	if c.MemoryWindow < 0 {
		return fmt.Errorf("MemoryWindow must be >= 0, got %d", c.MemoryWindow)
	}
	if c.RecentEpisodes < 0 {
		return fmt.Errorf("RecentEpisodes must be >= 0, got %d", c.RecentEpisodes)
	}
	if c.Boundary.HardMessageLimit < 2 {
		return fmt.Errorf("Boundary.HardMessageLimit must be >= 2, got %d", c.Boundary.HardMessageLimit)
	}
	if c.Boundary.HardTokenLimit < 1 {
		return fmt.Errorf("Boundary.HardTokenLimit must be >= 1, got %d", c.Boundary.HardTokenLimit)
	}
	return nil
}
