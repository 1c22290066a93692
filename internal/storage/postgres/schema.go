// Package postgres provides a PostgreSQL implementation of storage.ClusterStore
// for workspaces whose cluster index is shared through a database server.
package postgres

import "github.com/scrypster/enhancedmem/internal/storage"

// Migrations is the cluster index schema history.
var Migrations = []storage.Migration{
	{
		Version: 1,
		Name:    "cluster_index",
		Up: `
CREATE TABLE IF NOT EXISTS clusters (
    cluster_id TEXT PRIMARY KEY,
    event_count INTEGER NOT NULL DEFAULT 0,
    last_ts TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS cluster_events (
    event_id TEXT PRIMARY KEY,
    cluster_id TEXT NOT NULL REFERENCES clusters(cluster_id) DEFERRABLE INITIALLY DEFERRED,
    assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cluster_events_cluster ON cluster_events(cluster_id);
`,
		Down: `
DROP INDEX IF EXISTS idx_cluster_events_cluster;
DROP TABLE IF EXISTS cluster_events;
DROP TABLE IF EXISTS clusters;
`,
	},
}
