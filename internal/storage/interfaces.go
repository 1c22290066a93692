// Package storage persists consolidation artifacts under an agent workspace.
//
// The storage layer is built from small, focused pieces that can be composed
// as needed: append-only JSONL logs for MemCells, episodes, and foresight
// items; a digest store for MEMORY.md and the dated history files; a profile
// store for USER.md; and a ClusterStore with file, SQLite, and PostgreSQL
// implementations.
package storage

import (
	"context"
	"errors"

	"github.com/scrypster/enhancedmem/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyEventID is returned when a cluster assignment has no event ID.
	ErrEmptyEventID = errors.New("storage: event id is required")
)

// ClusterStore persists the cluster index: event -> cluster, cluster -> count,
// and cluster -> most recent timestamp.
type ClusterStore interface {
	// Assign maps eventID to clusterID (overwriting any previous mapping),
	// increments the count for clusterID, and records ts as the cluster's
	// most recent timestamp. Counts track assignment calls, so assigning the
	// same event twice counts it twice.
	Assign(ctx context.Context, eventID, clusterID, ts string) error

	// Members returns the event IDs currently mapped to clusterID, sorted.
	Members(ctx context.Context, clusterID string) ([]string, error)

	// State returns a snapshot of the full cluster index.
	State(ctx context.Context) (*types.ClusterState, error)

	// Close releases any resources held by the store.
	Close() error
}
