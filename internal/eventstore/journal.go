package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loqalabs/aacharya/internal/config"
	_ "modernc.org/sqlite"
)

// Kinds of diagnostics entries. Entries never carry conversation text.
const (
	KindSessionStarted     = "session.started"
	KindSessionClosed      = "session.closed"
	KindChatFailed         = "chat.failed"
	KindCaptureError       = "capture.error"
	KindAlertsFetchFailed  = "alerts.fetch_failed"
	KindPlaybackFailed     = "playback.failed"
	KindConfigurationError = "config.missing_language"
)

// Entry is one row of the diagnostics timeline.
type Entry struct {
	ID        int64
	SessionID string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Journal is a SQLite-backed timeline of session lifecycle events and
// recovered errors. In ephemeral mode it keeps nothing.
type Journal struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
	mu    sync.Mutex
}

func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Journal, error) {
	log = log.With(slog.String("component", "journal"))
	if cfg.RetentionMode == "ephemeral" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(2000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    language TEXT,
    started_at INTEGER NOT NULL,
    ended_at INTEGER
);
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    detail TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_entries_session_created ON entries(session_id, created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) enabled() bool {
	return j != nil && j.db != nil
}

func (j *Journal) Close() error {
	if !j.enabled() {
		return nil
	}
	return j.db.Close()
}

// BeginSession registers sessionID and records a session.started entry.
func (j *Journal) BeginSession(ctx context.Context, sessionID, language string) error {
	if !j.enabled() {
		return nil
	}
	now := j.clock().UTC()
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, language, started_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET language=excluded.language`,
		sessionID, language, now.UnixMilli()); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return j.Record(ctx, sessionID, KindSessionStarted, language)
}

// EndSession stamps the session as closed.
func (j *Journal) EndSession(ctx context.Context, sessionID string) error {
	if !j.enabled() {
		return nil
	}
	if _, err := j.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		j.clock().UTC().UnixMilli(), sessionID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return j.Record(ctx, sessionID, KindSessionClosed, "")
}

// Record appends an entry. Unknown sessions are created on the fly so
// recovered errors before BeginSession are not lost.
func (j *Journal) Record(ctx context.Context, sessionID, kind, detail string) error {
	if !j.enabled() {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.clock().UTC().UnixMilli()
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, started_at) VALUES(?, ?) ON CONFLICT(session_id) DO NOTHING`,
		sessionID, now); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO entries(session_id, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		sessionID, kind, detail, now); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}

// Entries lists up to limit entries for a session, oldest first.
func (j *Journal) Entries(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if !j.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, kind, COALESCE(detail, ''), created_at
		 FROM entries WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune applies the configured retention window and session cap.
func (j *Journal) Prune(ctx context.Context) (err error) {
	if !j.enabled() {
		return nil
	}
	if j.cfg.RetentionMode != "persistent" && j.cfg.RetentionMode != "session" {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).UTC().UnixMilli()
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if j.cfg.MaxSessions > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxSessions); err != nil {
			return err
		}
	}
	return tx.Commit()
}
