package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/aacharya/internal/api"
	"github.com/loqalabs/aacharya/internal/config"
)

func newHTTPGateway(t *testing.T, handler http.HandlerFunc) Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(api.NewWithHTTPClient(srv.URL, srv.Client()))
}

func TestHTTPGatewayReturnsReply(t *testing.T) {
	gw := newHTTPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"Rest and hydrate."}`))
	})
	reply, err := gw.Send(context.Background(), "fever please help", "en")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != "Rest and hydrate." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestHTTPGatewayFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"An error occurred"}`))
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"empty reply": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"response":"  "}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			gw := newHTTPGateway(t, handler)
			_, err := gw.Send(context.Background(), "x", "hi")
			if !errors.Is(err, ErrRequestFailure) {
				t.Fatalf("expected ErrRequestFailure, got %v", err)
			}
		})
	}
}

func TestHTTPGatewayNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gw := NewHTTPGateway(api.NewWithHTTPClient(url, nil))
	if _, err := gw.Send(context.Background(), "x", "en"); !errors.Is(err, ErrRequestFailure) {
		t.Fatalf("expected ErrRequestFailure, got %v", err)
	}
}

func TestHTTPGatewaySingleRoundTrip(t *testing.T) {
	calls := 0
	gw := newHTTPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})
	_, _ = gw.Send(context.Background(), "x", "en")
	if calls != 1 {
		t.Fatalf("expected exactly one round trip, got %d", calls)
	}
}

func TestOpenAIGatewayPinsLanguage(t *testing.T) {
	var system string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) > 0 {
			system = body.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ಹೆಚ್ಚು ನೀರು ಕುಡಿಯಿರಿ"}}]}`))
	}))
	defer srv.Close()

	gw := NewOpenAIGateway(config.GatewayConfig{OpenAIKey: "sk-test", OpenAIBaseURL: srv.URL, OpenAIModel: "test-model"}, srv.Client())
	reply, err := gw.Send(context.Background(), "fever", "kn")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != "ಹೆಚ್ಚು ನೀರು ಕುಡಿಯಿರಿ" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !strings.Contains(system, "Kannada") {
		t.Fatalf("expected system prompt to pin Kannada, got %q", system)
	}
}

func TestOpenAIGatewayNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	gw := NewOpenAIGateway(config.GatewayConfig{OpenAIKey: "sk-test", OpenAIBaseURL: srv.URL, OpenAIModel: "m"}, srv.Client())
	if _, err := gw.Send(context.Background(), "x", "en"); !errors.Is(err, ErrRequestFailure) {
		t.Fatalf("expected ErrRequestFailure, got %v", err)
	}
}

func TestNewSelectsMode(t *testing.T) {
	if _, err := New(config.GatewayConfig{Mode: "mock"}, config.APIConfig{TimeoutMS: 10}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := New(config.GatewayConfig{Mode: "smtp"}, config.APIConfig{}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
