package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/bus"
	"github.com/loqalabs/aacharya/internal/config"
	"github.com/loqalabs/aacharya/internal/natsserver"
	"github.com/loqalabs/aacharya/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchAlertsFromBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != protocol.PathGetAlerts {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id":1,"message":"Boil water","timestamp":"2024-06-01T10:00:00"},{"id":2,"message":"Dengue camp"}]`))
	}))
	defer srv.Close()

	alerts := NewFetcher(api.NewWithHTTPClient(srv.URL, srv.Client()), testLogger()).FetchAlerts(context.Background())
	if len(alerts) != 2 || alerts[0].Message != "Boil water" || alerts[1].ID != 2 {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
}

type failingSource struct{}

func (failingSource) GetAlerts(context.Context) ([]protocol.Alert, error) {
	return nil, errors.New("connection refused")
}

func TestFetchFailureYieldsEmpty(t *testing.T) {
	f := NewFetcher(failingSource{}, testLogger())
	var reported error
	f.OnFailure(func(err error) { reported = err })

	alerts := f.FetchAlerts(context.Background())
	if alerts == nil || len(alerts) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", alerts)
	}
	if reported == nil {
		t.Fatal("expected failure callback")
	}
}

func TestFetchServerErrorYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if got := NewFetcher(api.NewWithHTTPClient(srv.URL, srv.Client()), testLogger()).FetchAlerts(context.Background()); len(got) != 0 {
		t.Fatalf("expected no alerts, got %+v", got)
	}
}

type recordingHandler struct {
	mu       sync.Mutex
	alerts   []protocol.Alert
	clears   int
	notified chan struct{}
}

func (h *recordingHandler) IngestAlert(a protocol.Alert) {
	h.mu.Lock()
	h.alerts = append(h.alerts, a)
	h.mu.Unlock()
	h.notified <- struct{}{}
}

func (h *recordingHandler) ClearAlerts() {
	h.mu.Lock()
	h.clears++
	h.mu.Unlock()
	h.notified <- struct{}{}
}

func TestFeedRelaysBroadcastAndClear(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, testLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	client, err := bus.Connect(context.Background(), config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, testLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	h := &recordingHandler{notified: make(chan struct{}, 4)}
	feed := NewFeed(client, testLogger())
	if err := feed.Start(h); err != nil {
		t.Fatalf("start feed: %v", err)
	}
	t.Cleanup(feed.Close)
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := Announce(client, protocol.Alert{ID: 7, Message: "Heatwave advisory"}); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := AnnounceCleared(client); err != nil {
		t.Fatalf("announce cleared: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-h.notified:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for feed")
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.alerts) != 1 || h.alerts[0].ID != 7 || h.clears != 1 {
		t.Fatalf("unexpected relay alerts=%+v clears=%d", h.alerts, h.clears)
	}
}
