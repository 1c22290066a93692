package types

import (
	"strings"
	"time"
)

// Role identifies the author of a session message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is a single raw turn owned by the session. The core never mutates it.
type Message struct {
	Role      Role     `json:"role"`
	Content   string   `json:"content,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"` // ISO-8601, may be missing or malformed
	ToolsUsed []string `json:"tools_used,omitempty"`
}

// ChatMessage is a role/content pair sent to an LLM provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// timestampLayouts are tried in order by ParseTimestamp. Layouts without a zone
// are interpreted in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp on a best-effort basis.
// A trailing "Z" is treated as UTC. It reports false when nothing matches.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MinuteStamp formats t to minute precision (YYYY-MM-DDTHH:MM).
func MinuteStamp(t time.Time) string {
	return t.Format("2006-01-02T15:04")
}

// SecondStamp formats t to second precision (YYYY-MM-DDTHH:MM:SS).
func SecondStamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}
