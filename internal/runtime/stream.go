package runtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// StreamSession pushes a fresh /session snapshot over GET /session/stream
// every time subscribe's channel fires.
func (r *Runtime) StreamSession(subscribe func() (<-chan struct{}, func())) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = subscribe
}

func (r *Runtime) handleSessionStream(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	snapshot, subscribe := r.session, r.updates
	r.mu.RUnlock()
	if snapshot == nil || subscribe == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("session stream upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	changes, cancel := subscribe()
	defer cancel()

	// the stream is one-way; reading only surfaces the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() bool {
		data, err := sonic.Marshal(snapshot())
		if err != nil {
			r.logger.Error("encode session snapshot", slog.String("error", err.Error()))
			return false
		}
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-changes:
			if !send() {
				return
			}
		case <-closed:
			return
		case <-r.stopping:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
