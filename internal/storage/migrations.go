package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ErrNoMigration indicates no migration has been applied yet.
var ErrNoMigration = errors.New("no migration")

// Migration is one versioned schema change. Down may be empty when the
// change cannot be reverted.
type Migration struct {
	Version uint
	Name    string
	Up      string
	Down    string
}

// Dialect selects the bind-parameter style of the target database.
type Dialect int

const (
	// DialectSQLite uses "?" placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses "$1" placeholders.
	DialectPostgres
)

func (d Dialect) placeholder() string {
	if d == DialectPostgres {
		return "$1"
	}
	return "?"
}

// MigrationManager applies compiled-in migrations in version order and
// tracks the current version in a schema_migrations table.
type MigrationManager struct {
	db         *sql.DB
	dialect    Dialect
	migrations []Migration
}

// NewMigrationManager creates a manager for db and ensures the tracking table exists.
func NewMigrationManager(ctx context.Context, db *sql.DB, dialect Dialect, migrations []Migration) (*MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("migrations: database connection is required")
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	mgr := &MigrationManager{db: db, dialect: dialect, migrations: sorted}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return nil, fmt.Errorf("migrations: failed to create schema table: %w", err)
	}
	return mgr, nil
}

// Up applies all pending migrations in ascending version order. Each
// migration and its version record are committed in one transaction.
func (mgr *MigrationManager) Up(ctx context.Context) error {
	current, err := mgr.Version(ctx)
	if err != nil && !errors.Is(err, ErrNoMigration) {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for _, m := range mgr.migrations {
		if m.Version <= current {
			continue
		}
		if err := mgr.apply(ctx, m.Up, "INSERT INTO schema_migrations (version) VALUES ("+mgr.dialect.placeholder()+")", m.Version); err != nil {
			return fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Down rolls back all applied migrations in descending version order.
func (mgr *MigrationManager) Down(ctx context.Context) error {
	current, err := mgr.Version(ctx)
	if errors.Is(err, ErrNoMigration) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrations: failed to get current version: %w", err)
	}

	for i := len(mgr.migrations) - 1; i >= 0; i-- {
		m := mgr.migrations[i]
		if m.Version > current {
			continue
		}
		if m.Down == "" {
			return fmt.Errorf("migrations: version %d (%s) cannot be rolled back", m.Version, m.Name)
		}
		if err := mgr.apply(ctx, m.Down, "DELETE FROM schema_migrations WHERE version = "+mgr.dialect.placeholder(), m.Version); err != nil {
			return fmt.Errorf("migrations: failed to roll back version %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (mgr *MigrationManager) apply(ctx context.Context, stmt, record string, version uint) error {
	tx, err := mgr.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		return err
	}
	return tx.Commit()
}

// Version returns the highest applied migration version, or ErrNoMigration
// when none has been applied.
func (mgr *MigrationManager) Version(ctx context.Context) (uint, error) {
	var version uint
	err := mgr.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrations: failed to query version: %w", err)
	}
	if version == 0 {
		return 0, ErrNoMigration
	}
	return version, nil
}
