// Package migration applies versioned SQL files from an fs.FS.
//
// Files are named NNN_name.sql. The applied version is kept in a one-row
// schema_version table and each file runs in its own transaction together
// with the version bump.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitsync/internal/logger"
)

// ErrSchemaTooNew is returned when the database was migrated by a newer build
var ErrSchemaTooNew = errors.New("database schema is newer than this build supports")

// Dialect selects the bind parameter syntax of the driver
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) bind(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Migration is one versioned SQL file
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Runner applies migrations to one database
type Runner struct {
	db      *sql.DB
	fs      fs.FS
	dialect Dialect
	log     *log.Logger
}

// NewRunner creates a runner reading migration files from the root of fsys
func NewRunner(db *sql.DB, fsys fs.FS, dialect Dialect) *Runner {
	return &Runner{db: db, fs: fsys, dialect: dialect, log: logger.With("migration")}
}

func (r *Runner) ensureVersionTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_version table: %w", err)
	}
	return nil
}

// CurrentVersion returns the applied schema version, 0 for a fresh database
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	var version int
	err := r.db.QueryRowContext(ctx, "SELECT version FROM schema_version").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// SetVersion overwrites the recorded schema version
func (r *Runner) SetVersion(ctx context.Context, version int) error {
	if err := r.ensureVersionTable(ctx); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := r.writeVersion(ctx, tx, version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *Runner) writeVersion(ctx context.Context, tx *sql.Tx, version int) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_version"); err != nil {
		return fmt.Errorf("failed to clear version: %w", err)
	}
	q := "INSERT INTO schema_version (version) VALUES (" + r.dialect.bind(1) + ")"
	if _, err := tx.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("failed to set version %d: %w", version, err)
	}
	return nil
}

// Migrations reads and parses every migration file, sorted by version
func (r *Runner) Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(r.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("invalid migration filename %s (expected NNN_name.sql)", e.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid version number in filename %s: %w", e.Name(), err)
		}
		if version < 1 {
			return nil, fmt.Errorf("invalid version number in filename %s: version must be at least 1", e.Name())
		}
		content, err := fs.ReadFile(r.fs, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: strings.TrimSuffix(rest, ".sql"), SQL: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", out[i].Version)
		}
	}
	return out, nil
}

// LatestVersion is the highest version available in the migration files
func (r *Runner) LatestVersion() (int, error) {
	ms, err := r.Migrations()
	if err != nil || len(ms) == 0 {
		return 0, err
	}
	return ms[len(ms)-1].Version, nil
}

// Apply runs every migration newer than the current version and returns how
// many were applied
func (r *Runner) Apply(ctx context.Context) (int, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return 0, err
	}
	ms, err := r.Migrations()
	if err != nil {
		return 0, err
	}
	if len(ms) == 0 {
		return 0, nil
	}
	if latest := ms[len(ms)-1].Version; current > latest {
		return 0, fmt.Errorf("%w: database at %d, build supports %d", ErrSchemaTooNew, current, latest)
	}

	applied := 0
	for _, m := range ms {
		if m.Version <= current {
			continue
		}
		if err := r.applyOne(ctx, m); err != nil {
			return applied, err
		}
		applied++
		r.log.Debug("applied migration", "version", m.Version, "name", m.Name)
	}
	if applied > 0 {
		r.log.Info("schema migrated", "from", current, "to", ms[len(ms)-1].Version)
	}
	return applied, nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %d: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
	}
	if err := r.writeVersion(ctx, tx, m.Version); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// Validate fails when the database schema is newer than the migration files
func (r *Runner) Validate(ctx context.Context) error {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	latest, err := r.LatestVersion()
	if err != nil {
		return err
	}
	if current > latest {
		return fmt.Errorf("%w: database at %d, build supports %d", ErrSchemaTooNew, current, latest)
	}
	return nil
}
