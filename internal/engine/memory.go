package engine

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// ReadLongTerm returns the long-term digest, or "" when none has been written.
func (c *Consolidator) ReadLongTerm() (string, error) {
	return c.digests.ReadLongTerm()
}

// WriteLongTerm replaces the long-term digest wholesale.
func (c *Consolidator) WriteLongTerm(content string) error {
	return c.digests.WriteLongTerm(content)
}

// AppendHistory appends a free-text entry to the history file for the date
// named by the entry's "[YYYY-MM-DD" prefix, or today.
func (c *Consolidator) AppendHistory(entry string) error {
	return c.digests.AppendHistory(entry)
}

// ReadHistory returns the history file for the date of day.
func (c *Consolidator) ReadHistory(day time.Time) (string, error) {
	return c.digests.ReadHistory(day)
}

// RecentEpisodes returns the last n stored episodes, oldest first.
func (c *Consolidator) RecentEpisodes(n int) ([]types.Episode, error) {
	if n <= 0 {
		return nil, nil
	}
	return storage.ReadTail[types.Episode](c.episodes, n)
}

// MemoryContext renders the long-term digest and the most recent episodes
// for inclusion in a prompt. It returns "" when there is nothing to show.
func (c *Consolidator) MemoryContext() (string, error) {
	longTerm, err := c.ReadLongTerm()
	if err != nil {
		return "", err
	}

	var parts []string
	if longTerm != "" {
		parts = append(parts, "## Long-term Memory\n"+longTerm)
	}

	recent, err := c.RecentEpisodes(c.cfg.RecentEpisodes)
	if err != nil {
		log.Printf("Consolidate: WARNING - Failed to read recent episodes: %v", err)
	}
	if len(recent) > 0 {
		entries := make([]string, 0, len(recent))
		for _, ep := range recent {
			date := ""
			if !ep.Timestamp.IsZero() {
				date = ep.Timestamp.Format("2006-01-02")
			}
			entries = append(entries, fmt.Sprintf("**%s** (%s): %s", ep.Title, date, ep.Summary))
		}
		parts = append(parts, "## Recent Episodes\n"+strings.Join(entries, "\n\n"))
	}

	return strings.Join(parts, "\n\n"), nil
}
