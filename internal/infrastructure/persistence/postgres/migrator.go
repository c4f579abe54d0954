package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps any failure applying or reverting a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema step. AppliedAt and IsApplied are only
// filled in by Migrator.Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// GetMigrations returns the embedded migrations sorted by version.
func GetMigrations() []Migration {
	ms := []Migration{
		{Version: 1, Name: "create_directory", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_assessments", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_analytics_indexes", UpSQL: migration003Up, DownSQL: migration003Down},
	}
	slices.SortFunc(ms, func(a, b Migration) int { return a.Version - b.Version })
	return ms
}

func findMigration(ms []Migration, version int) (Migration, bool) {
	i := slices.IndexFunc(ms, func(m Migration) bool { return m.Version == version })
	if i < 0 {
		return Migration{}, false
	}
	return ms[i], true
}

const createMigrationTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies and reverts the embedded migrations, one transaction each.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over GetMigrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

type appliedRow struct {
	Version   int
	AppliedAt time.Time
}

// applied returns applied versions, creating the bookkeeping table first.
func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	if _, err := m.conn.Exec(ctx, createMigrationTable); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[appliedRow])
	if err != nil {
		return nil, fmt.Errorf("failed to scan applied migrations: %w", err)
	}

	out := make(map[int]time.Time, len(list))
	for _, r := range list {
		out[r.Version] = r.AppliedAt
	}
	return out, nil
}

// Migrate applies all pending migrations in version order.
func (m *Migrator) Migrate(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := pgx.BeginFunc(ctx, m.conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: up %d %s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the highest applied migration. It is a no-op on an empty schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}

	last := slices.Max(keys(applied))
	mig, ok := findMigration(m.migrations, last)
	if !ok {
		return fmt.Errorf("%w: unknown applied migration %d", ErrMigrationFailed, last)
	}

	err = pgx.BeginFunc(ctx, m.conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", last)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: down %d %s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
	}
	return nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := slices.Clone(m.migrations)
	for i := range out {
		out[i].AppliedAt, out[i].IsApplied = applied[out[i].Version]
	}
	return out, nil
}

func keys(m map[int]time.Time) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
