package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/enhancedmem/internal/storage"
)

// Snapshot copies the workspace described by layout into a new timestamped
// directory under cfg.DestDir, then prunes old snapshots down to cfg.Keep.
// The SQLite cluster index, when present, is copied with VACUUM INTO rather
// than byte-for-byte; its WAL side files are never copied.
func Snapshot(ctx context.Context, layout storage.Layout, cfg Config, now time.Time) (*Result, error) {
	if cfg.DestDir == "" {
		return nil, errors.New("backup: destination directory is required")
	}
	start := time.Now()

	dest := filepath.Join(cfg.DestDir, now.Format(SnapshotLayout))
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup: snapshot %s already exists", dest)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create snapshot dir: %w", err)
	}

	result := &Result{Path: dest}
	entries, err := os.ReadDir(layout.MemoryDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("backup: read memory dir: %w", err)
	}

	dbName := filepath.Base(layout.ClusterDBFile())
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, dbName) || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if err := copyFile(filepath.Join(layout.MemoryDir, name), filepath.Join(dest, name)); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, name)
	}

	if fileExists(layout.ClusterDBFile()) {
		target := filepath.Join(dest, dbName)
		if err := backupSQLite(ctx, layout.ClusterDBFile(), target); err != nil {
			return nil, fmt.Errorf("backup: cluster index: %w", err)
		}
		if cfg.Verify {
			if err := verifySQLite(ctx, target); err != nil {
				return nil, fmt.Errorf("backup: verify cluster index: %w", err)
			}
			result.Verified = true
		}
		result.Files = append(result.Files, dbName)
	}

	if fileExists(layout.UserFile()) {
		name := filepath.Base(layout.UserFile())
		if err := copyFile(layout.UserFile(), filepath.Join(dest, name)); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, name)
	}

	result.Size = dirSize(dest)

	if cfg.Keep > 0 {
		pruned, err := Prune(cfg.DestDir, cfg.Keep)
		if err != nil {
			log.Printf("backup: WARNING - retention failed: %v", err)
		}
		result.Pruned = pruned
	}

	result.Duration = time.Since(start)
	log.Printf("backup: snapshot %s (%d files, %d bytes)", dest, len(result.Files), result.Size)
	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: sync %s: %w", dst, err)
	}
	return out.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirSize(dir string) int64 {
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			total += info.Size()
		}
	}
	return total
}
