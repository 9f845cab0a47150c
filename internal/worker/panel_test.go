package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/prefs"
	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/nats-io/nats.go"
)

type fakeBackend struct {
	mu        sync.Mutex
	token     string
	items     map[string]int
	broadcast []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{token: "tok-1", items: map[string]int{"ORS packets": 40}}
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	authed := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+b.token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
			return false
		}
		return true
	}
	mux.HandleFunc(protocol.PathWorkerLogin, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"password":"secret"`) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Incorrect username or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"` + b.token + `","token_type":"bearer"}`))
	})
	mux.HandleFunc(protocol.PathBroadcastAlert, func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.broadcast = append(b.broadcast, string(body))
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	mux.HandleFunc(protocol.PathGetInventory, func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"item_name":"ORS packets","quantity":40}]`))
	})
	mux.HandleFunc(protocol.PathUpdateInventory, func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	mux.HandleFunc(protocol.PathClearAlerts, func(w http.ResponseWriter, r *http.Request) {
		if !authed(w, r) {
			return
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	return mux
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordingBus) Subscribe(string, func(string, []byte)) (*nats.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) PublishJSON(subject string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func newPanel(t *testing.T) (*Panel, *fakeBackend, prefs.Store, *recordingBus) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)
	store := prefs.NewMemory()
	bus := &recordingBus{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPanel(api.NewWithHTTPClient(srv.URL, srv.Client()), store, bus, log), backend, store, bus
}

func TestActionsRequireLogin(t *testing.T) {
	panel, _, _, _ := newPanel(t)
	ctx := context.Background()
	if err := panel.Broadcast(ctx, "boil water"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := panel.Inventory(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if err := panel.ClearAlerts(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestLoginStoresToken(t *testing.T) {
	panel, _, store, _ := newPanel(t)
	ctx := context.Background()

	err := panel.Login(ctx, "asha", "wrong")
	var status *api.StatusError
	if !errors.As(err, &status) || status.Detail != "Incorrect username or password" {
		t.Fatalf("expected backend detail, got %v", err)
	}
	if panel.LoggedIn(ctx) {
		t.Fatal("failed login stored a token")
	}

	if err := panel.Login(ctx, "asha", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	token, ok, _ := store.Get(ctx, prefs.KeyAccessToken)
	if !ok || token != "tok-1" {
		t.Fatalf("unexpected stored token %q", token)
	}

	if err := panel.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if panel.LoggedIn(ctx) {
		t.Fatal("token survived logout")
	}
}

func TestBroadcastAnnouncesOnBus(t *testing.T) {
	panel, backend, _, bus := newPanel(t)
	ctx := context.Background()
	if err := panel.Login(ctx, "asha", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := panel.Broadcast(ctx, "   "); !errors.Is(err, ErrEmptyAlert) {
		t.Fatalf("expected ErrEmptyAlert, got %v", err)
	}
	if err := panel.Broadcast(ctx, "Free vaccination camp on Sunday"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := panel.ClearAlerts(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(backend.broadcast) != 1 || !strings.Contains(backend.broadcast[0], "vaccination") {
		t.Fatalf("backend did not receive alert: %v", backend.broadcast)
	}
	if len(bus.subjects) != 2 || bus.subjects[0] != protocol.SubjectAlertBroadcast || bus.subjects[1] != protocol.SubjectAlertsCleared {
		t.Fatalf("unexpected bus traffic %v", bus.subjects)
	}
}

func TestInventoryRoundTrip(t *testing.T) {
	panel, _, _, _ := newPanel(t)
	ctx := context.Background()
	if err := panel.Login(ctx, "asha", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	items, err := panel.Inventory(ctx)
	if err != nil || len(items) != 1 || items[0].ItemName != "ORS packets" || items[0].Quantity != 40 {
		t.Fatalf("unexpected inventory %+v (%v)", items, err)
	}
	if err := panel.UpdateInventory(ctx, "", 3); !errors.Is(err, ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
	if err := panel.UpdateInventory(ctx, "Paracetamol", 120); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestUnauthorizedDropsToken(t *testing.T) {
	panel, _, store, _ := newPanel(t)
	ctx := context.Background()
	if err := store.Set(ctx, prefs.KeyAccessToken, "stale"); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	_, err := panel.Inventory(ctx)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if panel.LoggedIn(ctx) {
		t.Fatal("expected token removed after 401")
	}
}
