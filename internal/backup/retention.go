package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// List returns the snapshots under destDir, newest first. Directories whose
// names are not snapshot timestamps are ignored.
func List(destDir string) ([]Info, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ts, err := time.ParseInLocation(SnapshotLayout, entry.Name(), time.Local)
		if err != nil {
			continue
		}
		path := filepath.Join(destDir, entry.Name())
		snapshots = append(snapshots, Info{Path: path, Timestamp: ts, Size: dirSize(path)})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// Prune removes all but the keep most recent snapshots and returns how many
// were removed.
func Prune(destDir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	snapshots, err := List(destDir)
	if err != nil {
		return 0, err
	}
	if len(snapshots) <= keep {
		return 0, nil
	}

	removed := 0
	var lastErr error
	for _, s := range snapshots[keep:] {
		if err := os.RemoveAll(s.Path); err != nil {
			lastErr = err
			continue
		}
		removed++
	}
	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some snapshots: %w", lastErr)
	}
	return removed, nil
}
