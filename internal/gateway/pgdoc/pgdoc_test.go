package pgdoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/habitsync/internal/gateway"
)

var _ gateway.Gateway = (*Store)(nil)
var _ gateway.Pinger = (*Store)(nil)

func TestEncodeBodyDropsID(t *testing.T) {
	body, err := encodeBody(gateway.Record{"id": "x", "name": "Read"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Read"}`, body)
}

func TestDecodeBodySetsID(t *testing.T) {
	rec, err := decodeBody("abc", []byte(`{"name":"Read","streak":3}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", rec["id"])
	assert.EqualValues(t, 3, rec["streak"])

	_, err = decodeBody("abc", []byte(`not json`))
	assert.Error(t, err)
}

func setupTestStore(t *testing.T) (*Store, func()) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	config, err := pgxpool.ParseConfig(databaseURL)
	require.NoError(t, err)
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	if err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}
	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	return s, func() {
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	}
}

func TestStore_Integration(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	id, err := s.Create(ctx, "habits", gateway.Record{"owner_id": "u1", "name": "Read", "streak": 0})
	require.NoError(t, err)
	_, err = s.Create(ctx, "habits", gateway.Record{"owner_id": "u2", "name": "Other"})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, "habits", id, gateway.Record{"streak": 4}))

	docs, err := s.List(ctx, "habits", "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0]["id"])
	assert.Equal(t, "Read", docs[0]["name"])
	assert.EqualValues(t, 4, docs[0]["streak"])

	require.NoError(t, s.Delete(ctx, "habits", id))
	err = s.Delete(ctx, "habits", id)
	assert.True(t, errors.Is(err, gateway.ErrNotFound))

	err = s.Update(ctx, "habits", "not-a-uuid", gateway.Record{"streak": 1})
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}
