// Package memcell packages a closed span of messages into an immutable MemCell.
package memcell

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// Builder creates MemCells. Now and NewID are injectable for tests.
type Builder struct {
	Now   func() time.Time
	NewID func() string
}

// NewBuilder returns a Builder using the wall clock and random UUIDs.
func NewBuilder() *Builder {
	return &Builder{
		Now:   time.Now,
		NewID: func() string { return uuid.New().String() },
	}
}

// Build packages messages into a MemCell. Messages with empty content are
// dropped from the payload, the representative timestamp is the last
// message's (current time when missing or unparseable), participants are the
// distinct roles in first-seen order, and an empty summary is replaced by the
// default placeholder. Build has no side effects.
func (b *Builder) Build(messages []types.Message, summary string) types.MemCell {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := func() string { return uuid.New().String() }
	if b.NewID != nil {
		newID = b.NewID
	}

	ts := now()
	if len(messages) > 0 {
		if parsed, ok := types.ParseTimestamp(messages[len(messages)-1].Timestamp); ok {
			ts = parsed
		}
	}

	data := make([]types.MemCellMessage, 0, len(messages))
	seen := make(map[types.Role]bool)
	participants := make([]types.Role, 0, 2)
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = types.RoleUser
		}
		if !seen[role] {
			seen[role] = true
			participants = append(participants, role)
		}
		if m.Content == "" {
			continue
		}
		data = append(data, types.MemCellMessage{
			Role:        role,
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			SpeakerName: strings.ToUpper(string(role)),
		})
	}

	if summary == "" {
		summary = types.DefaultMemCellSummary
	}

	return types.MemCell{
		EventID:      newID(),
		OriginalData: data,
		Timestamp:    ts,
		Summary:      summary,
		Participants: participants,
		Type:         types.MemCellType,
	}
}

// FormatTranscript renders a MemCell payload for the extractor prompts, one
// "[YYYY-MM-DDTHH:MM:SS] SPEAKER: content" line per non-empty message.
func FormatTranscript(data []types.MemCellMessage) string {
	lines := make([]string, 0, len(data))
	for _, m := range data {
		if m.Content == "" {
			continue
		}
		speaker := m.SpeakerName
		if speaker == "" {
			speaker = string(m.Role)
		}
		ts := m.Timestamp
		if len(ts) > 19 {
			ts = ts[:19]
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, speaker, m.Content))
	}
	return strings.Join(lines, "\n")
}
