package notify

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher consumes event files from an events directory and dispatches them
// to a callback. Each file is removed once read, so concurrent watchers
// share the stream rather than each seeing every event.
type Watcher struct {
	dir      string
	callback func(Event)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for {memoryDir}/events/.
func NewWatcher(memoryDir string, callback func(Event)) *Watcher {
	return &Watcher{
		dir:      filepath.Join(memoryDir, EventsDirName),
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start drains any existing event files, oldest first, then watches for new
// ones. Call Stop to clean up.
func (ew *Watcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainExisting()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	log.Printf("notify: watching %s for consolidation events", ew.dir)
	return nil
}

// Stop shuts down the watcher.
func (ew *Watcher) Stop() {
	if ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
}

func (ew *Watcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && isEventFile(evt.Name) {
				ew.processFile(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("notify: watcher error: %v", err)
		}
	}
}

func (ew *Watcher) drainExisting() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && isEventFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		ew.processFile(filepath.Join(ew.dir, name))
	}
}

func (ew *Watcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another watcher
	}
	_ = os.Remove(path)

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("notify: WARNING - invalid event file %s: %v", filepath.Base(path), err)
		return
	}
	if event.EventID != "" && ew.callback != nil {
		ew.callback(event)
	}
}

func isEventFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".event") && !strings.HasPrefix(base, ".")
}
