package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/migration"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/migrations"
)

// ErrNotInitialized is returned by Load and Save before Init
var ErrNotInitialized = errors.New("storage not initialized, run 'habitsync init' first")

type Store struct {
	path string
	db   *sql.DB
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.db = db
	return nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	_, err = migration.NewRunner(db, subFS, migration.SQLite).Apply(ctx)
	return err
}

func (s *Store) Load(ctx context.Context) (models.QueueState, error) {
	if s.db == nil {
		return models.QueueState{}, ErrNotInitialized
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE namespace = ?", constants.QueueNamespace).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueueState{}, nil
	}
	if err != nil {
		return models.QueueState{}, fmt.Errorf("failed to read queue state: %w", err)
	}

	var state models.QueueState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return models.QueueState{}, fmt.Errorf("failed to parse queue state: %w", err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state models.QueueState) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode queue state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		constants.QueueNamespace, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save queue state: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Location() string {
	return s.path
}

// DB exposes the underlying handle for tests
func (s *Store) DB() *sql.DB {
	return s.db
}
