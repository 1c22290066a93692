package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DigestStore reads and writes the long-term digest (MEMORY.md) and appends
// to the date-partitioned history files.
type DigestStore struct {
	layout Layout
	now    func() time.Time
}

// NewDigestStore returns a store for layout. A nil now uses time.Now.
func NewDigestStore(layout Layout, now func() time.Time) *DigestStore {
	if now == nil {
		now = time.Now
	}
	return &DigestStore{layout: layout, now: now}
}

// ReadLongTerm returns MEMORY.md, or "" when it does not exist.
func (s *DigestStore) ReadLongTerm() (string, error) {
	data, err := os.ReadFile(s.layout.MemoryFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("storage: read long-term memory: %w", err)
	}
	return string(data), nil
}

// WriteLongTerm replaces MEMORY.md wholesale.
func (s *DigestStore) WriteLongTerm(content string) error {
	return writeFileAtomic(s.layout.MemoryFile(), []byte(content))
}

// AppendHistory appends entry to HISTORY.<YYMMDD>.md. The date comes from a
// leading "[YYYY-MM-DD" in the entry, falling back to today. Each entry is
// followed by a blank line.
func (s *DigestStore) AppendHistory(entry string) error {
	path := s.layout.HistoryFile(EntryDate(entry, s.now()))
	if err := os.MkdirAll(s.layout.MemoryDir, 0o755); err != nil {
		return fmt.Errorf("storage: create memory dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open history: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(strings.TrimRight(entry, " \t\r\n") + "\n\n"); err != nil {
		return fmt.Errorf("storage: append history: %w", err)
	}
	return nil
}

// ReadHistory returns the history file for the date of day, or "" when none exists.
func (s *DigestStore) ReadHistory(day time.Time) (string, error) {
	data, err := os.ReadFile(s.layout.HistoryFile(day))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("storage: read history: %w", err)
	}
	return string(data), nil
}

// EntryDate returns the date named by a leading "[YYYY-MM-DD" in entry, or
// fallback when the entry carries no parseable date.
func EntryDate(entry string, fallback time.Time) time.Time {
	e := strings.TrimSpace(entry)
	if !strings.HasPrefix(e, "[") || len(e) < 11 {
		return fallback
	}
	t, err := time.ParseInLocation("2006-01-02", e[1:11], fallback.Location())
	if err != nil {
		return fallback
	}
	return t
}
