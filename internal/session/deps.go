package session

import (
	"context"
	"log/slog"

	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/loqalabs/aacharya/internal/stt"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Store is the durable preference slot store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Gateway interface {
	Send(ctx context.Context, query, language string) (string, error)
}

// AlertFetcher never fails; unavailability is an empty list.
type AlertFetcher interface {
	FetchAlerts(ctx context.Context) []protocol.Alert
}

// Player is fire-and-forget speech playback.
type Player interface {
	Speak(ctx context.Context, text, locale string)
	Cancel()
	Active() bool
}

// Journal records lifecycle events and recovered errors.
type Journal interface {
	BeginSession(ctx context.Context, sessionID, language string) error
	EndSession(ctx context.Context, sessionID string) error
	Record(ctx context.Context, sessionID, kind, detail string) error
}

// Deps are the collaborators of a Controller. Store and Gateway are required;
// everything else falls back to an inert implementation.
type Deps struct {
	Store   Store
	Gateway Gateway
	Alerts  AlertFetcher
	Capture stt.Capture
	Player  Player
	Journal Journal
	Logger  *slog.Logger
	Meter   metric.Meter
	Tracer  trace.Tracer

	// SessionID names the session in logs and the journal; empty means a
	// random UUID.
	SessionID string
	// AutoSpeak reads every successful reply aloud.
	AutoSpeak bool
	// MaxAlerts caps Alerts(); zero means 5.
	MaxAlerts int
}

type noopPlayer struct{}

func (noopPlayer) Speak(context.Context, string, string) {}
func (noopPlayer) Cancel()                               {}
func (noopPlayer) Active() bool                          { return false }

type noopJournal struct{}

func (noopJournal) BeginSession(context.Context, string, string) error   { return nil }
func (noopJournal) EndSession(context.Context, string) error             { return nil }
func (noopJournal) Record(context.Context, string, string, string) error { return nil }
