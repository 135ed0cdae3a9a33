// Package pgdoc is a Gateway backed by a PostgreSQL table of JSONB documents.
package pgdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/migration"
	"github.com/julianstephens/habitsync/migrations"
)

// NewPool opens a pgx connection pool for databaseURL
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, config)
}

// Store implements gateway.Gateway and gateway.Pinger
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// Migrate creates the documents table
func (s *Store) Migrate(ctx context.Context) error {
	subFS, err := fs.Sub(migrations.FS, "pgdoc")
	if err != nil {
		return fmt.Errorf("failed to access pgdoc migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(s.Pool)
	defer db.Close()
	if _, err := migration.NewRunner(db, subFS, migration.Postgres).Apply(ctx); err != nil {
		return fmt.Errorf("failed to migrate documents: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, collection string, record gateway.Record) (string, error) {
	owner, _ := record[gateway.OwnerField].(string)
	body, err := encodeBody(record)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO documents (collection, id, owner_id, body) VALUES ($1, $2, $3, $4::jsonb)`,
		collection, id, owner, body)
	if err != nil {
		return "", fmt.Errorf("failed to create %s document: %w", collection, err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch gateway.Record) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	body, err := encodeBody(patch)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE documents SET body = body || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, body)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", gateway.ErrNotFound, collection, id)
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection, ownerID string) ([]gateway.Record, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id::text, body FROM documents WHERE collection = $1 AND owner_id = $2 ORDER BY created_at, id`,
		collection, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	out := make([]gateway.Record, 0)
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		rec, err := decodeBody(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// encodeBody serializes a record for the body column; ids live in their own column
func encodeBody(rec gateway.Record) (string, error) {
	data, err := json.Marshal(rec.Without("id"))
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(data), nil
}

func decodeBody(id string, body []byte) (gateway.Record, error) {
	rec := gateway.Record{}
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	rec["id"] = id
	return rec, nil
}
