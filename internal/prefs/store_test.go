package prefs

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/loqalabs/aacharya/internal/config"
	"github.com/redis/go-redis/v9"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, KeyLanguage); err != nil || ok {
		t.Fatalf("expected empty slot, ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, KeyLanguage, "kn"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, KeyLanguage, "hi"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, ok, err := store.Get(ctx, KeyLanguage)
	if err != nil || !ok || value != "hi" {
		t.Fatalf("expected hi, got %q ok=%v err=%v", value, ok, err)
	}
	if err := store.Delete(ctx, KeyLanguage); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, KeyLanguage); ok {
		t.Fatal("expected slot removed")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs", "prefs.db")
	store, err := OpenSQLite(context.Background(), path, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")
	first, err := OpenSQLite(ctx, path, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, KeyLanguage, "en"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = first.Close()

	second, err := Open(ctx, config.PreferencesConfig{Backend: "sqlite", Path: path}, newLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	value, ok, err := second.Get(ctx, KeyLanguage)
	if err != nil || !ok || value != "en" {
		t.Fatalf("expected persisted en, got %q ok=%v err=%v", value, ok, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.PreferencesConfig{Backend: "etcd"}, newLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisStoreDefaultsHashKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	if got := newRedisStore(client, "").key; got != "aacharya:prefs" {
		t.Fatalf("unexpected default key %q", got)
	}
}
