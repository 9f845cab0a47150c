package alerts

import (
	"context"
	"log/slog"

	"github.com/loqalabs/aacharya/internal/protocol"
)

// Source is the backend call that returns the current broadcast alerts.
type Source interface {
	GetAlerts(ctx context.Context) ([]protocol.Alert, error)
}

// Fetcher performs one-shot alert retrieval. Failures are logged and reported
// as an empty list, so callers never need to handle them.
type Fetcher struct {
	source Source
	log    *slog.Logger
	onFail func(error)
}

func NewFetcher(source Source, log *slog.Logger) *Fetcher {
	return &Fetcher{source: source, log: log.With(slog.String("component", "alerts"))}
}

// OnFailure registers fn to be told about recovered fetch errors.
func (f *Fetcher) OnFailure(fn func(error)) {
	f.onFail = fn
}

func (f *Fetcher) FetchAlerts(ctx context.Context) []protocol.Alert {
	alerts, err := f.source.GetAlerts(ctx)
	if err != nil {
		f.log.Warn("failed to fetch alerts", slog.String("error", err.Error()))
		if f.onFail != nil {
			f.onFail(err)
		}
		return []protocol.Alert{}
	}
	if alerts == nil {
		alerts = []protocol.Alert{}
	}
	f.log.Debug("alerts fetched", slog.Int("count", len(alerts)))
	return alerts
}
