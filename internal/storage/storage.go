// Package storage persists the offline queue under a single key-value
// namespace. The backend is chosen from the DSN: a *.json path is a plain
// file, postgres:// is PostgreSQL, anything else is a SQLite database path.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage/postgres"
	"github.com/julianstephens/habitsync/internal/storage/sqlite"
)

// Store is a queue persister with a lifecycle
type Store interface {
	// Init creates or migrates the backing store. It is safe to call on an
	// already initialized store.
	Init(ctx context.Context) error
	Load(ctx context.Context) (models.QueueState, error)
	Save(ctx context.Context, state models.QueueState) error
	Close() error
	// Location is a printable identifier that never contains credentials
	Location() string
}

// IsPostgres reports whether dsn names a PostgreSQL database
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// IsJSON reports whether dsn names a JSON file
func IsJSON(dsn string) bool {
	return strings.HasSuffix(strings.ToLower(dsn), ".json")
}

// HasEmbeddedCredentials reports whether a PostgreSQL DSN carries a password
func HasEmbeddedCredentials(dsn string) bool {
	_, err := postgres.ValidateConnString(dsn)
	return errors.Is(err, postgres.ErrEmbeddedCredentials)
}

// Open returns the store for dsn without touching it. Call Init before use.
// PostgreSQL DSNs with an embedded password are rejected.
func Open(dsn string) (Store, error) {
	return open(dsn, false)
}

// OpenTrusted is Open for DSNs read from the OS keyring, which may embed a password.
func OpenTrusted(dsn string) (Store, error) {
	return open(dsn, true)
}

func open(dsn string, trusted bool) (Store, error) {
	switch {
	case strings.TrimSpace(dsn) == "":
		return nil, fmt.Errorf("queue location cannot be empty")
	case IsPostgres(dsn):
		if _, err := postgres.ValidateConnString(dsn); err != nil {
			if !trusted || !errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, err
			}
		}
		return postgres.New(dsn), nil
	case IsJSON(dsn):
		return NewJSONFile(dsn), nil
	default:
		return sqlite.New(dsn), nil
	}
}
