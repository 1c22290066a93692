package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// JSONLLog is an append-only log holding one JSON object per line.
// Entries are never rewritten.
type JSONLLog struct {
	path string
}

// NewJSONLLog returns a log backed by the file at path.
func NewJSONLLog(path string) *JSONLLog {
	return &JSONLLog{path: path}
}

// Path returns the backing file path.
func (l *JSONLLog) Path() string {
	return l.path
}

// Append encodes v as a single line and appends it to the log.
func (l *JSONLLog) Append(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s entry: %w", filepath.Base(l.path), err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("storage: create dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", l.path, err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("storage: append %s: %w", l.path, err)
	}
	return nil
}

// lines returns the non-blank lines of the log. A missing file has no lines.
func (l *JSONLLog) lines() ([][]byte, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", l.path, err)
	}

	var out [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", l.path, err)
	}
	return out, nil
}

// ReadAll decodes every entry of the log. Lines that fail to decode are
// logged and skipped.
func ReadAll[T any](l *JSONLLog) ([]T, error) {
	lines, err := l.lines()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(lines))
	for i, line := range lines {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			log.Printf("storage: WARNING - skipping corrupt line %d of %s: %v", i+1, filepath.Base(l.path), err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadTail decodes the last n well-formed entries, oldest first.
func ReadTail[T any](l *JSONLLog, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	lines, err := l.lines()
	if err != nil {
		return nil, err
	}

	rev := make([]T, 0, n)
	for i := len(lines) - 1; i >= 0 && len(rev) < n; i-- {
		var v T
		if err := json.Unmarshal(lines[i], &v); err != nil {
			continue
		}
		rev = append(rev, v)
	}

	out := make([]T, len(rev))
	for i := range rev {
		out[len(rev)-1-i] = rev[i]
	}
	return out, nil
}
