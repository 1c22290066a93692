// Package cluster groups MemCells under coarse cluster keys.
//
// The current policy is a placeholder until similarity-based clustering is
// available: a MemCell's cluster is the calendar day of its timestamp, so
// MemCells from the same day always share a cluster.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// KeyLayout is the cluster key format (YYYY-MM-DD).
const KeyLayout = "2006-01-02"

// Key returns the calendar date of ts, in ts's own zone, as YYYY-MM-DD. An
// unparseable ts maps to the date of now.
func Key(ts string, now time.Time) string {
	if t, ok := types.ParseTimestamp(ts); ok {
		return t.Format(KeyLayout)
	}
	return now.Format(KeyLayout)
}

// Assigner maps MemCells to clusters and records the assignment in a store.
type Assigner struct {
	store storage.ClusterStore
	now   func() time.Time
}

// NewAssigner returns an assigner over store. A nil now uses time.Now.
func NewAssigner(store storage.ClusterStore, now func() time.Time) *Assigner {
	if now == nil {
		now = time.Now
	}
	return &Assigner{store: store, now: now}
}

// Assign derives the cluster key for ts, records eventID under it, and
// returns the key.
func (a *Assigner) Assign(ctx context.Context, eventID, ts string) (string, error) {
	clusterID := Key(ts, a.now())
	if err := a.store.Assign(ctx, eventID, clusterID, ts); err != nil {
		return "", fmt.Errorf("cluster: assign %s to %s: %w", eventID, clusterID, err)
	}
	return clusterID, nil
}

// Members returns the event IDs assigned to clusterID.
func (a *Assigner) Members(ctx context.Context, clusterID string) ([]string, error) {
	return a.store.Members(ctx, clusterID)
}

// State returns the full cluster index.
func (a *Assigner) State(ctx context.Context) (*types.ClusterState, error) {
	return a.store.State(ctx)
}
