package engine

import (
	"context"
	"fmt"

	"github.com/scrypster/enhancedmem/internal/config"
	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/internal/storage/postgres"
	"github.com/scrypster/enhancedmem/internal/storage/sqlite"
	"github.com/scrypster/enhancedmem/internal/tokens"
)

// OpenClusterStore opens the cluster index backend named by cfg.
func OpenClusterStore(ctx context.Context, cfg config.StorageConfig, layout storage.Layout) (storage.ClusterStore, error) {
	switch cfg.ClusterBackend {
	case "", "json":
		return storage.NewFileClusterStore(layout.ClusterStateFile()), nil
	case "sqlite":
		if err := layout.Ensure(); err != nil {
			return nil, fmt.Errorf("engine: prepare workspace: %w", err)
		}
		return sqlite.NewClusterStore(ctx, layout.ClusterDBFile())
	case "postgres":
		return postgres.NewClusterStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("engine: unsupported cluster backend %q", cfg.ClusterBackend)
	}
}

// NewFromConfig builds a Consolidator for the workspace named by cfg. The
// returned close function releases the cluster store.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Consolidator, func() error, error) {
	layout := storage.NewLayout(cfg.Memory.Workspace)
	if err := layout.Ensure(); err != nil {
		return nil, nil, fmt.Errorf("engine: prepare workspace: %w", err)
	}

	clusters, err := OpenClusterStore(ctx, cfg.Storage, layout)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: open cluster store: %w", err)
	}

	estimator := tokens.New(cfg.Boundary.Estimator, cfg.Boundary.CharsPerToken)
	c, err := New(layout, clusters, ConfigFrom(cfg), estimator)
	if err != nil {
		_ = clusters.Close()
		return nil, nil, err
	}
	return c, clusters.Close, nil
}
