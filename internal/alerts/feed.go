package alerts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Bus is the part of the NATS client used for live alerts.
type Bus interface {
	Subscribe(subject string, handler func(subject string, data []byte)) (*nats.Subscription, error)
	PublishJSON(subject string, v any) error
}

// Handler receives live alert traffic.
type Handler interface {
	IngestAlert(protocol.Alert)
	ClearAlerts()
}

// Feed relays alerts.broadcast and alerts.cleared messages to a Handler.
type Feed struct {
	bus  Bus
	log  *slog.Logger
	subs []*nats.Subscription
}

func NewFeed(bus Bus, log *slog.Logger) *Feed {
	return &Feed{bus: bus, log: log.With(slog.String("component", "alert-feed"))}
}

func (f *Feed) Start(h Handler) error {
	broadcast, err := f.bus.Subscribe(protocol.SubjectAlertBroadcast, func(_ string, data []byte) {
		var msg protocol.AlertBroadcast
		if err := sonic.Unmarshal(data, &msg); err != nil {
			f.log.Warn("failed to decode alert broadcast", slog.String("error", err.Error()))
			return
		}
		if msg.Alert.Message == "" {
			return
		}
		h.IngestAlert(msg.Alert)
	})
	if err != nil {
		return err
	}
	cleared, err := f.bus.Subscribe(protocol.SubjectAlertsCleared, func(string, []byte) {
		h.ClearAlerts()
	})
	if err != nil {
		_ = broadcast.Unsubscribe()
		return err
	}
	f.subs = []*nats.Subscription{broadcast, cleared}
	return nil
}

func (f *Feed) Close() {
	for _, sub := range f.subs {
		_ = sub.Unsubscribe()
	}
	f.subs = nil
}

// Announce publishes a freshly posted alert to live subscribers.
func Announce(bus Bus, alert protocol.Alert) error {
	if err := bus.PublishJSON(protocol.SubjectAlertBroadcast, protocol.AlertBroadcast{
		Alert:     alert,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("announce alert: %w", err)
	}
	return nil
}

// AnnounceCleared tells live subscribers that all alerts were removed.
func AnnounceCleared(bus Bus) error {
	if err := bus.PublishJSON(protocol.SubjectAlertsCleared, protocol.StatusResponse{Status: "cleared"}); err != nil {
		return fmt.Errorf("announce clear: %w", err)
	}
	return nil
}
