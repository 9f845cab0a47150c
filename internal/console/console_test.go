package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/aacharya/internal/gateway"
	"github.com/loqalabs/aacharya/internal/prefs"
	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/loqalabs/aacharya/internal/session"
	"github.com/loqalabs/aacharya/internal/stt"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixedAlerts []protocol.Alert

func (f fixedAlerts) FetchAlerts(context.Context) []protocol.Alert { return f }

func newSession(t *testing.T, code string, capture stt.Capture) *session.Controller {
	t.Helper()
	return newSessionWith(t, code, capture, gateway.NewMockGateway())
}

func newSessionWith(t *testing.T, code string, capture stt.Capture, gw session.Gateway) *session.Controller {
	t.Helper()
	store := prefs.NewMemory()
	if err := store.Set(context.Background(), prefs.KeyLanguage, code); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c, err := session.New(context.Background(), session.Deps{
		Store:   store,
		Gateway: gw,
		Alerts:  fixedAlerts{{ID: 1, Message: "Dengue cases rising, use mosquito nets"}},
		Capture: capture,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	<-c.AlertsLoaded()
	return c
}

func run(t *testing.T, s Session, input string) string {
	t.Helper()
	out := &syncBuffer{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := New(strings.NewReader(input), out, s).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

// liveConsole drives a running console line by line.
type liveConsole struct {
	out  *syncBuffer
	in   *io.PipeWriter
	done chan error
}

func startConsole(t *testing.T, s Session) *liveConsole {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	pr, pw := io.Pipe()
	l := &liveConsole{out: &syncBuffer{}, in: pw, done: make(chan error, 1)}
	go func() { l.done <- New(pr, l.out, s).Run(ctx) }()
	return l
}

func (l *liveConsole) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(l.in, line+"\n"); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func (l *liveConsole) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(l.out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("%q never rendered:\n%s", want, l.out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (l *liveConsole) finish(t *testing.T) string {
	t.Helper()
	_ = l.in.Close()
	if err := <-l.done; err != nil {
		t.Fatalf("run: %v", err)
	}
	return l.out.String()
}

func TestConversationTranscript(t *testing.T) {
	s := newSession(t, "en", nil)
	l := startConsole(t, s)
	l.send(t, "what is malaria")
	l.waitFor(t, "#3 [aacharya]")
	for _, line := range []string{"/speak 2", "/speak 7", "/listen", "/quit"} {
		l.send(t, line)
	}
	out := l.finish(t)

	for _, want := range []string{
		"! Dengue cases rising, use mosquito nets",
		"#1 [aacharya] Hello! I am Aacharya",
		"Type your question here...",
		"#2 [you] what is malaria",
		"#3 [aacharya] [mock reply (en) for what is malaria]",
		"only assistant messages can be read aloud",
		"no message #7",
		"speech input is not available",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestLanguageSwitchAndUnknownCommand(t *testing.T) {
	s := newSession(t, "en", nil)
	out := run(t, s, "/lang hi\n/lang fr\n/bogus\n")
	if !strings.Contains(out, "अपना सवाल यहाँ टाइप करें...") {
		t.Fatalf("expected hindi placeholder:\n%s", out)
	}
	if !strings.Contains(out, `unsupported language "fr"`) || !strings.Contains(out, "unknown command /bogus") {
		t.Fatalf("missing error lines:\n%s", out)
	}
	if s.Snapshot().Language != "hi" {
		t.Fatalf("language not switched: %s", s.Snapshot().Language)
	}
}

// heldGateway answers only once released.
type heldGateway struct{ release chan struct{} }

func (g heldGateway) Send(ctx context.Context, _, _ string) (string, error) {
	select {
	case <-g.release:
		return "rest and drink fluids", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestConsoleStaysResponsiveWhileAwaitingReply(t *testing.T) {
	capture := stt.NewRecognizerCapture(stt.NewSilenceSource(16000, 1, 10*time.Millisecond),
		stt.NewMockRecognizer("and a cough"), time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	gw := heldGateway{release: make(chan struct{})}
	s := newSessionWith(t, "en", capture, gw)

	l := startConsole(t, s)
	l.send(t, "fever please help")
	l.waitFor(t, "#2 [you] fever please help")
	l.send(t, "/listen")
	l.waitFor(t, "listening...")
	l.waitFor(t, "draft: and a cough")
	if !s.Snapshot().AwaitingReply {
		t.Fatal("reply arrived before release")
	}
	if strings.Contains(l.out.String(), "#3 [aacharya]") {
		t.Fatalf("reply rendered before release:\n%s", l.out.String())
	}

	close(gw.release)
	l.waitFor(t, "#3 [aacharya] rest and drink fluids")
	l.finish(t)
	if got := s.Snapshot().PendingInput; got != "and a cough" {
		t.Fatalf("draft lost while reply landed: %q", got)
	}
}

func TestListenFillsDraftThenSend(t *testing.T) {
	capture := stt.NewRecognizerCapture(stt.NewSilenceSource(16000, 1, 10*time.Millisecond),
		stt.NewMockRecognizer("chest pain"), time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s := newSession(t, "en", capture)

	out := &syncBuffer{}
	pr, pw := io.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- New(pr, out, s).Run(ctx) }()

	_, _ = io.WriteString(pw, "/listen\n")
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "draft: chest pain") {
		if time.Now().After(deadline) {
			t.Fatalf("draft never rendered:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, _ = io.WriteString(pw, "/send\n")
	_ = pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "#2 [you] chest pain") {
		t.Fatalf("draft not submitted:\n%s", out.String())
	}
}
