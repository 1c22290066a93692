// Package sqlite provides a SQLite implementation of storage.ClusterStore.
//
// Unlike the JSON file store, every assignment is a single transaction of two
// upserts, so no call rewrites the whole index.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/enhancedmem/internal/storage"
	"github.com/scrypster/enhancedmem/pkg/types"
)

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
    cluster_id TEXT NOT NULL,
    assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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

// ClusterStore implements storage.ClusterStore using SQLite.
type ClusterStore struct {
	db *sql.DB
}

// NewClusterStore opens (or creates) the cluster index at dsn with WAL
// self-healing. If the initial open fails due to stale WAL files left behind
// by a crashed process, it verifies no other process holds them and retries
// once after removing them.
func NewClusterStore(ctx context.Context, dsn string) (*ClusterStore, error) {
	store, err := openClusterStore(ctx, dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openClusterStore(ctx, dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func openClusterStore(ctx context.Context, dsn string) (*ClusterStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; this also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	mgr, err := storage.NewMigrationManager(ctx, db, storage.DialectSQLite, Migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := mgr.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: %w", err)
	}

	return &ClusterStore{db: db}, nil
}

// Assign implements storage.ClusterStore.
func (s *ClusterStore) Assign(ctx context.Context, eventID, clusterID, ts string) error {
	if eventID == "" {
		return storage.ErrEmptyEventID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin assignment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cluster_events (event_id, cluster_id) VALUES (?, ?)
		ON CONFLICT(event_id) DO UPDATE SET cluster_id = excluded.cluster_id, assigned_at = CURRENT_TIMESTAMP
	`, eventID, clusterID); err != nil {
		return fmt.Errorf("sqlite: map event %s: %w", eventID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO clusters (cluster_id, event_count, last_ts) VALUES (?, 1, ?)
		ON CONFLICT(cluster_id) DO UPDATE SET event_count = clusters.event_count + 1, last_ts = excluded.last_ts
	`, clusterID, ts); err != nil {
		return fmt.Errorf("sqlite: update cluster %s: %w", clusterID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit assignment: %w", err)
	}
	return nil
}

// Members implements storage.ClusterStore.
func (s *ClusterStore) Members(ctx context.Context, clusterID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT event_id FROM cluster_events WHERE cluster_id = ? ORDER BY event_id", clusterID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query members: %w", err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// State implements storage.ClusterStore.
func (s *ClusterStore) State(ctx context.Context) (*types.ClusterState, error) {
	state := types.NewClusterState()

	rows, err := s.db.QueryContext(ctx, "SELECT event_id, cluster_id FROM cluster_events")
	if err != nil {
		return nil, fmt.Errorf("sqlite: query events: %w", err)
	}
	for rows.Next() {
		var eventID, clusterID string
		if err := rows.Scan(&eventID, &clusterID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		state.EventIDToCluster[eventID] = clusterID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT cluster_id, event_count, last_ts FROM clusters")
	if err != nil {
		return nil, fmt.Errorf("sqlite: query clusters: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID, lastTS string
		var count int
		if err := rows.Scan(&clusterID, &count, &lastTS); err != nil {
			return nil, fmt.Errorf("sqlite: scan cluster: %w", err)
		}
		state.ClusterCounts[clusterID] = count
		state.ClusterLastTS[clusterID] = lastTS
	}
	return state, rows.Err()
}

// Close checkpoints the WAL and closes the database so that later processes
// can open it without encountering stale WAL state.
func (s *ClusterStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

// Compile-time assertion.
var _ storage.ClusterStore = (*ClusterStore)(nil)
