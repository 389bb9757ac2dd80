package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"poolscope/internal/storage"
)

// Set POOLSCOPE_TEST_PG_DSN to run these against a real database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POOLSCOPE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("POOLSCOPE_TEST_PG_DSN not set")
	}
	store, err := NewStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.pool.Exec(context.Background(), `DELETE FROM cache_entries WHERE key LIKE 'test:%'`)
		_ = store.Close()
	})
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Get(ctx, "test:missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "test:pools", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "test:pools", []byte("v2"), 0); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := store.Get(ctx, "test:pools")
	if err != nil || string(got) != "v2" {
		t.Fatalf("get: %q %v", got, err)
	}
}

func TestStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Set(ctx, "test:short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	if _, err := store.Get(ctx, "test:short"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected expired row to read as ErrNotFound, got %v", err)
	}
	removed, err := store.purgeExpired(ctx)
	if err != nil || removed < 1 {
		t.Fatalf("expected purge to remove the expired row, removed=%d err=%v", removed, err)
	}
}

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
