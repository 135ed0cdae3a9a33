package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	return db, func() { db.Close() }
}

func files(m map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range m {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	return n == 1
}

func TestCurrentVersion(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runner := NewRunner(db, files(map[string]string{"001_kv.sql": "CREATE TABLE kv (k TEXT);"}), SQLite)

	version, err := runner.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0, got %d", version)
	}

	if err := runner.SetVersion(ctx, 5); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	version, err = runner.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 5 {
		t.Errorf("expected version 5, got %d", version)
	}
}

func TestMigrationsSorted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	runner := NewRunner(db, files(map[string]string{
		"003_index.sql": "CREATE INDEX idx ON kv (k);",
		"001_kv.sql":    "CREATE TABLE kv (k TEXT);",
		"002_value.sql": "ALTER TABLE kv ADD COLUMN v TEXT;",
		"README.md":     "ignored",
	}), SQLite)

	ms, err := runner.Migrations()
	if err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(ms))
	}
	want := []string{"kv", "value", "index"}
	for i, m := range ms {
		if m.Version != i+1 || m.Name != want[i] {
			t.Errorf("migration %d: got version %d name %q", i, m.Version, m.Name)
		}
	}
}

func TestApplyFromScratchAndIncremental(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	fsys := files(map[string]string{"001_kv.sql": "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT);"})
	runner := NewRunner(db, fsys, SQLite)

	n, err := runner.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 migration applied, got %d", n)
	}
	if !tableExists(t, db, "kv") {
		t.Error("kv table was not created")
	}

	fsys["002_meta.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE meta (k TEXT);")}
	n, err = runner.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply (2nd) failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 more migration applied, got %d", n)
	}

	n, err = runner.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply (3rd) failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no-op, got %d applied", n)
	}

	version, _ := runner.CurrentVersion(ctx)
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestApplyRollsBackFailedMigration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runner := NewRunner(db, files(map[string]string{
		"001_kv.sql": "CREATE TABLE kv (k TEXT);\nTHIS IS INVALID SQL;",
	}), SQLite)

	if _, err := runner.Apply(ctx); err == nil {
		t.Fatal("Apply should have failed with invalid SQL")
	}
	version, err := runner.CurrentVersion(ctx)
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 after failed migration, got %d", version)
	}
	if tableExists(t, db, "kv") {
		t.Error("table should not exist after failed migration")
	}
}

func TestNewerDatabaseRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	runner := NewRunner(db, files(map[string]string{"001_kv.sql": "CREATE TABLE kv (k TEXT);"}), SQLite)
	if err := runner.SetVersion(ctx, 10); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}

	if err := runner.Validate(ctx); !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("Validate error = %v, want ErrSchemaTooNew", err)
	}
	if _, err := runner.Apply(ctx); !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("Apply error = %v, want ErrSchemaTooNew", err)
	}
}

func TestInvalidFilenames(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{name: "no underscore", files: map[string]string{"001kv.sql": ""}, want: "expected NNN_name.sql"},
		{name: "zero version", files: map[string]string{"000_kv.sql": ""}, want: "version must be at least 1"},
		{name: "duplicate", files: map[string]string{"001_a.sql": "", "001_b.sql": ""}, want: "duplicate migration version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRunner(db, files(tt.files), SQLite).Migrations()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Migrations() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestDialectBind(t *testing.T) {
	if got := SQLite.bind(1); got != "?" {
		t.Errorf("SQLite.bind(1) = %q", got)
	}
	if got := Postgres.bind(2); got != "$2" {
		t.Errorf("Postgres.bind(2) = %q", got)
	}
}
