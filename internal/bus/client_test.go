package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/aacharya/internal/config"
	"github.com/loqalabs/aacharya/internal/natsserver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, testLogger())
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, testLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	received := make(chan string, 1)
	if _, err := client.Subscribe("alerts.>", func(subject string, data []byte) {
		received <- subject + " " + string(data)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.PublishJSON("alerts.broadcast", map[string]int{"id": 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got != `alerts.broadcast {"id":3}` {
			t.Fatalf("unexpected delivery %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, testLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}
