package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File names inside the memory directory.
const (
	MemoryDirName    = "memory"
	MemoryFileName   = "MEMORY.md"
	MemCellsFileName = "memcells.jsonl"
	EpisodesFileName = "episodes.jsonl"
	ForesightsName   = "foresights.jsonl"
	ClusterStateName = "cluster_state.json"
	ClusterDBName    = "clusters.db"
	UserFileName     = "USER.md"
)

// Layout resolves every persisted path for one agent workspace. USER.md lives
// at the workspace root; everything else lives in the memory directory.
type Layout struct {
	Workspace string
	MemoryDir string
}

// NewLayout returns the layout rooted at workspace.
func NewLayout(workspace string) Layout {
	return Layout{
		Workspace: workspace,
		MemoryDir: filepath.Join(workspace, MemoryDirName),
	}
}

// Ensure creates the workspace and memory directories.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.MemoryDir, 0o755); err != nil {
		return fmt.Errorf("storage: create memory dir: %w", err)
	}
	return nil
}

func (l Layout) MemoryFile() string       { return filepath.Join(l.MemoryDir, MemoryFileName) }
func (l Layout) MemCellsFile() string     { return filepath.Join(l.MemoryDir, MemCellsFileName) }
func (l Layout) EpisodesFile() string     { return filepath.Join(l.MemoryDir, EpisodesFileName) }
func (l Layout) ForesightsFile() string   { return filepath.Join(l.MemoryDir, ForesightsName) }
func (l Layout) ClusterStateFile() string { return filepath.Join(l.MemoryDir, ClusterStateName) }
func (l Layout) ClusterDBFile() string    { return filepath.Join(l.MemoryDir, ClusterDBName) }
func (l Layout) UserFile() string         { return filepath.Join(l.Workspace, UserFileName) }

// HistoryFile returns the path of HISTORY.<YYMMDD>.md for the date of t.
func (l Layout) HistoryFile(t time.Time) string {
	return filepath.Join(l.MemoryDir, "HISTORY."+t.Format("060102")+".md")
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: atomic rename %s: %w", path, err)
	}
	return nil
}
