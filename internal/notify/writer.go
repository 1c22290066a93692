// Package notify publishes consolidation events to other processes sharing a
// workspace. Each event is a small JSON file dropped into the workspace's
// events directory; a Watcher consumes them with fsnotify.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event types.
const (
	// EventMemCellStored is published after a MemCell is appended to the log.
	EventMemCellStored = "memcell_stored"

	// EventConsolidated is published after the cursor has advanced past a
	// closed episode.
	EventConsolidated = "consolidated"
)

// EventsDirName is the events directory under the memory directory.
const EventsDirName = "events"

// Event is the payload written to an event file.
type Event struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	ClusterID string `json:"cluster_id,omitempty"`
	Time      int64  `json:"time"`
}

// Writer writes event files to a shared directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a writer that emits events to {memoryDir}/events/.
func NewWriter(memoryDir string) *Writer {
	return &Writer{dir: filepath.Join(memoryDir, EventsDirName), now: time.Now}
}

// Notify writes an event file. Safe to call concurrently.
func (w *Writer) Notify(eventType, eventID, clusterID string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:      eventType,
		EventID:   eventID,
		ClusterID: clusterID,
		Time:      w.now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	// Write under a temporary name so a watcher never sees a partial file.
	name := fmt.Sprintf("%d-%s-%s", evt.Time, eventType, sanitizeID(eventID))
	tmp := filepath.Join(w.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, filepath.Join(w.dir, name+".event"))
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := []byte(id)
	for i, c := range out {
		if c == '/' || c == ':' || c == '\\' {
			out[i] = '_'
		}
	}
	return string(out)
}
