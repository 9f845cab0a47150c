package runtime

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSessionStreamPushesSnapshots(t *testing.T) {
	rt := testRuntime(t)
	var turn atomic.Int64
	changes := make(chan struct{}, 1)
	rt.ServeSession(func() any { return map[string]int64{"turn": turn.Load()} })
	rt.StreamSession(func() (<-chan struct{}, func()) { return changes, func() {} })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+rt.Addr()+"/session/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	if _, data, err := conn.ReadMessage(); err != nil || string(data) != `{"turn":0}` {
		t.Fatalf("initial snapshot %q err=%v", data, err)
	}
	turn.Store(1)
	changes <- struct{}{}
	if _, data, err := conn.ReadMessage(); err != nil || string(data) != `{"turn":1}` {
		t.Fatalf("updated snapshot %q err=%v", data, err)
	}
}

func TestSessionStreamWithoutSession(t *testing.T) {
	rt := testRuntime(t)
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+rt.Addr()+"/session/stream", nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func TestSessionStreamClosedOnShutdown(t *testing.T) {
	rt := testRuntime(t)
	rt.ServeSession(func() any { return map[string]string{} })
	rt.StreamSession(func() (<-chan struct{}, func()) { return make(chan struct{}), func() {} })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+rt.Addr()+"/session/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("initial snapshot: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
