package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/aacharya/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openJournal(t *testing.T, cfg config.EventStoreConfig) *Journal {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestEphemeralJournalKeepsNothing(t *testing.T) {
	j := openJournal(t, config.EventStoreConfig{RetentionMode: "ephemeral"})
	ctx := context.Background()
	if err := j.BeginSession(ctx, "s1", "en"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	entries, err := j.Entries(ctx, "s1", 10)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected no entries, got %v (%v)", entries, err)
	}
}

func TestSessionLifecycleEntries(t *testing.T) {
	j := openJournal(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	if err := j.BeginSession(ctx, "s1", "kn"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := j.Record(ctx, "s1", KindChatFailed, "POST /api/chat returned 502"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.EndSession(ctx, "s1"); err != nil {
		t.Fatalf("end: %v", err)
	}

	entries, err := j.Entries(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	kinds := make([]string, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	want := []string{KindSessionStarted, KindChatFailed, KindSessionClosed}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected kinds %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("entry %d: got %s want %s", i, kinds[i], want[i])
		}
	}
	if entries[0].Detail != "kn" {
		t.Fatalf("expected language detail, got %q", entries[0].Detail)
	}
}

func TestRecordBeforeBeginCreatesSession(t *testing.T) {
	j := openJournal(t, config.EventStoreConfig{RetentionMode: "persistent"})
	if err := j.Record(context.Background(), "orphan", KindConfigurationError, ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	entries, err := j.Entries(context.Background(), "orphan", 0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %v (%v)", entries, err)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	j := openJournal(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	j.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := j.BeginSession(ctx, "old-session", "en"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	j.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := j.BeginSession(ctx, "new-session", "hi"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := j.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	old, err := j.Entries(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected old session pruned, got %v", old)
	}
	fresh, _ := j.Entries(ctx, "new-session", 10)
	if len(fresh) != 1 {
		t.Fatalf("expected new session kept, got %v", fresh)
	}
}
