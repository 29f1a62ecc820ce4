package client

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudchat/internal/client/models"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		t.Fatalf("tableExists query failed: %v", err)
	}
	return n > 0
}

func TestInitDatabase_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	db, err := InitDatabase(ctx, dsn)
	if err != nil {
		t.Fatalf("InitDatabase error: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("db.PingContext failed: %v", err)
	}

	for _, name := range []string{"goose_db_version", "metadata", "accounts"} {
		if !tableExists(t, db, name) {
			t.Fatalf("expected %s table to exist after migrations", name)
		}
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations (first) error: %v", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations (second) should be idempotent, got error: %v", err)
	}

	if !tableExists(t, db, "accounts") {
		t.Fatalf("expected accounts table to exist after repeated migrations")
	}
}

func TestNewRepositories_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := InitDatabase(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("InitDatabase error: %v", err)
	}
	defer db.Close()

	repos := NewRepositories(db)

	if err := repos.Metadata.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("metadata set: %v", err)
	}
	v, err := repos.Metadata.Get(ctx, "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("metadata get: %q, %v", v, err)
	}

	acc := &models.SealedAccount{ID: "a1", Name: "home", Sealed: []byte{1}, Nonce: []byte{2}, UpdatedAt: time.Now().UTC()}
	if err := repos.Accounts.Upsert(ctx, acc); err != nil {
		t.Fatalf("accounts upsert: %v", err)
	}
	got, err := repos.Accounts.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("accounts get: %v", err)
	}
	if got.Name != "home" {
		t.Fatalf("unexpected account name: %q", got.Name)
	}
}

func TestInitDatabase_BadPath(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "missing", "dir", "app.db")

	if _, err := InitDatabase(ctx, dsn); err == nil {
		t.Fatalf("expected error for unopenable database path")
	}
}
