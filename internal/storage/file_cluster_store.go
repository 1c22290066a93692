package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/scrypster/enhancedmem/pkg/types"
)

// FileClusterStore keeps the cluster index in a single JSON document that is
// loaded fresh and rewritten wholesale on every assignment. It takes no locks;
// callers must serialise consolidation per workspace.
type FileClusterStore struct {
	path string
}

// NewFileClusterStore returns a store backed by the JSON file at path.
func NewFileClusterStore(path string) *FileClusterStore {
	return &FileClusterStore{path: path}
}

// load reads the persisted state. A missing or corrupt file yields an empty state.
func (s *FileClusterStore) load() *types.ClusterState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("storage: WARNING - cannot read cluster state, starting empty: %v", err)
		}
		return types.NewClusterState()
	}

	state := types.NewClusterState()
	if err := json.Unmarshal(data, state); err != nil {
		log.Printf("storage: WARNING - corrupt cluster state, starting empty: %v", err)
		return types.NewClusterState()
	}
	state.Normalize()
	return state
}

func (s *FileClusterStore) save(state *types.ClusterState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode cluster state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Assign implements ClusterStore.
func (s *FileClusterStore) Assign(ctx context.Context, eventID, clusterID, ts string) error {
	if eventID == "" {
		return ErrEmptyEventID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	state := s.load()
	state.EventIDToCluster[eventID] = clusterID
	state.ClusterCounts[clusterID]++
	state.ClusterLastTS[clusterID] = ts
	return s.save(state)
}

// Members implements ClusterStore.
func (s *FileClusterStore) Members(ctx context.Context, clusterID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := s.load()
	members := make([]string, 0)
	for eventID, cid := range state.EventIDToCluster {
		if cid == clusterID {
			members = append(members, eventID)
		}
	}
	sort.Strings(members)
	return members, nil
}

// State implements ClusterStore.
func (s *FileClusterStore) State(ctx context.Context) (*types.ClusterState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(), nil
}

// Close implements ClusterStore.
func (s *FileClusterStore) Close() error { return nil }

// Compile-time assertion.
var _ ClusterStore = (*FileClusterStore)(nil)
