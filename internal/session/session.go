// Package session provides a file-backed conversation session. A session
// file is JSON Lines: a metadata line carrying the consolidation cursor,
// followed by one message per line.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// metadataType tags the metadata line.
const metadataType = "metadata"

type metadata struct {
	Type             string    `json:"_type"`
	Key              string    `json:"key,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastConsolidated int       `json:"last_consolidated"`
}

// Session is an ordered message list plus a consolidation cursor, persisted
// to a single file.
type Session struct {
	path string
	meta metadata
	msgs []types.Message
}

// New returns an empty, unsaved session that will be written to path.
func New(path string) *Session {
	now := time.Now().UTC()
	key := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Session{
		path: path,
		meta: metadata{Type: metadataType, Key: key, CreatedAt: now, UpdatedAt: now},
	}
}

// Load reads the session at path. A missing file yields an empty session.
// Corrupt lines are logged and skipped.
func Load(path string) (*Session, error) {
	s := New(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Type string `json:"_type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			log.Printf("session: WARNING - skipping corrupt line %d of %s: %v", lineNo, filepath.Base(path), err)
			continue
		}
		if probe.Type == metadataType {
			if err := json.Unmarshal(line, &s.meta); err != nil {
				log.Printf("session: WARNING - ignoring corrupt metadata in %s: %v", filepath.Base(path), err)
			}
			continue
		}

		var m types.Message
		if err := json.Unmarshal(line, &m); err != nil {
			log.Printf("session: WARNING - skipping corrupt line %d of %s: %v", lineNo, filepath.Base(path), err)
			continue
		}
		s.msgs = append(s.msgs, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("session: scan %s: %w", path, err)
	}

	if s.meta.LastConsolidated < 0 || s.meta.LastConsolidated > len(s.msgs) {
		log.Printf("session: WARNING - cursor %d out of range for %d messages, clamping", s.meta.LastConsolidated, len(s.msgs))
		s.meta.LastConsolidated = clamp(s.meta.LastConsolidated, 0, len(s.msgs))
	}
	return s, nil
}

// Path returns the session file path.
func (s *Session) Path() string { return s.path }

// Key returns the session key, derived from the file name.
func (s *Session) Key() string { return s.meta.Key }

// Messages returns the session messages in order.
func (s *Session) Messages() []types.Message { return s.msgs }

// LastConsolidated returns the consolidation cursor.
func (s *Session) LastConsolidated() int { return s.meta.LastConsolidated }

// SetLastConsolidated moves the consolidation cursor.
func (s *Session) SetLastConsolidated(n int) {
	s.meta.LastConsolidated = clamp(n, 0, len(s.msgs))
}

// Append adds a message. A missing timestamp is set to the current time and
// an empty role defaults to user.
func (s *Session) Append(m types.Message) {
	if m.Role == "" {
		m.Role = types.RoleUser
	}
	if m.Timestamp == "" {
		m.Timestamp = time.Now().Format("2006-01-02T15:04:05.000000")
	}
	s.msgs = append(s.msgs, m)
}

// Save writes the whole session through a temporary file and rename.
func (s *Session) Save() error {
	s.meta.Type = metadataType
	s.meta.UpdatedAt = time.Now().UTC()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.meta); err != nil {
		return fmt.Errorf("session: encode metadata: %w", err)
	}
	for i, m := range s.msgs {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("session: encode message %d: %w", i, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("session: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: rename %s: %w", tmp, err)
	}
	return nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
