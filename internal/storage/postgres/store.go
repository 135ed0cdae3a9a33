package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/migration"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/migrations"
)

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
	ErrNotInitialized          = errors.New("storage not initialized")
)

type Store struct {
	connStr string
	db      *sql.DB
}

func New(connStr string) *Store {
	return &Store{connStr: withSearchPath(connStr)}
}

// withSearchPath pins the connection to the application schema unless the
// caller already chose one
func withSearchPath(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return connStr
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
		}
		return u.String()
	}
	if hasParam(connStr, "search_path") {
		return connStr
	}
	return strings.TrimSpace(connStr) + " search_path=" + constants.AppName
}

// hasParam reports whether a key=value DSN sets key (case-insensitive)
func hasParam(connStr, key string) bool {
	for _, part := range strings.Fields(connStr) {
		k, _, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// hasSSLMode checks URL-style and DSN-style strings for an sslmode key
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	return hasParam(connStr, "sslmode")
}

// ValidateConnString checks that connStr is a PostgreSQL URI or DSN
// without an embedded password. Passwords belong in the keyring or .pgpass.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := u.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return true, nil
	}

	if hasParam(connStr, "password") {
		return false, ErrEmbeddedCredentials
	}
	return true, nil
}

func (s *Store) Init(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.connStr) {
			return fmt.Errorf("failed to connect to database: %w (hint: try adding ?sslmode=disable to your connection string)", err)
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(constants.AppName)); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	if _, err := migration.NewRunner(db, subFS, migration.Postgres).Apply(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Load(ctx context.Context) (models.QueueState, error) {
	if s.db == nil {
		return models.QueueState{}, ErrNotInitialized
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE namespace = $1", constants.QueueNamespace).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueueState{}, nil
	}
	if err != nil {
		return models.QueueState{}, fmt.Errorf("failed to read queue state: %w", err)
	}
	var state models.QueueState
	if err := json.Unmarshal(raw, &state); err != nil {
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
		INSERT INTO kv (namespace, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (namespace) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		constants.QueueNamespace, string(raw))
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

// Location returns a non-sensitive identifier instead of the connection string
func (s *Store) Location() string {
	return "postgresql"
}
