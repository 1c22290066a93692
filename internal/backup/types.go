// Package backup takes point-in-time snapshots of a memory workspace: the
// digest, the append-only logs, the history files, the profile document, and
// the cluster index, with integrity verification of the SQLite index and
// count-based retention.
package backup

import (
	"time"
)

// SnapshotLayout is the directory name format of a snapshot.
const SnapshotLayout = "20060102-150405"

// Config holds snapshot configuration.
type Config struct {
	// DestDir is the directory under which snapshots are created
	DestDir string

	// Keep is the number of most recent snapshots retained after a new
	// snapshot is taken; 0 keeps all.
	Keep int

	// Verify enables the SQLite integrity check of the copied cluster index
	// (default: true)
	Verify bool
}

// Info describes an existing snapshot.
type Info struct {
	// Path is the snapshot directory
	Path string

	// Timestamp is when the snapshot was taken, from its directory name
	Timestamp time.Time

	// Size is the total size of the snapshot's files in bytes
	Size int64
}

// Result contains the outcome of a snapshot.
type Result struct {
	Path     string        `json:"path"`
	Files    []string      `json:"files"`
	Size     int64         `json:"size"`
	Verified bool          `json:"verified"`
	Pruned   int           `json:"pruned"`
	Duration time.Duration `json:"duration"`
}
