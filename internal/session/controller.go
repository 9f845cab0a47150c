package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/aacharya/internal/eventstore"
	"github.com/loqalabs/aacharya/internal/language"
	"github.com/loqalabs/aacharya/internal/prefs"
	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/loqalabs/aacharya/internal/stt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrConfigurationMissing means no supported language has been selected.
	// Callers should send the user to language selection.
	ErrConfigurationMissing = errors.New("no language selected")
	ErrCaptureUnsupported   = stt.ErrUnsupported
	ErrNotAssistantMessage  = errors.New("only assistant messages can be spoken")
	ErrMessageIndex         = errors.New("message index out of range")
)

const defaultMaxAlerts = 5

// Controller owns one conversation. All state changes go through its methods;
// adapters report back only via callbacks that re-enter the controller.
type Controller struct {
	id        string
	store     Store
	gateway   Gateway
	fetcher   AlertFetcher
	capture   stt.Capture
	player    Player
	journal   Journal
	log       *slog.Logger
	tracer    trace.Tracer
	autoSpeak bool
	maxAlerts int

	chatRequests    metric.Int64Counter
	chatLatency     metric.Float64Histogram
	captureSessions metric.Int64Counter

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	alertsLoaded chan struct{}

	mu         sync.Mutex
	profile    language.Profile
	messages   []Message
	pending    string
	awaiting   bool
	capturing  bool
	captureGen uint64
	alerts     []protocol.Alert
	closed     bool
	subs       map[chan struct{}]struct{}
}

// New starts a session in the stored language. It returns
// ErrConfigurationMissing when no supported language is stored.
func New(ctx context.Context, deps Deps) (*Controller, error) {
	if deps.Store == nil || deps.Gateway == nil {
		return nil, errors.New("session requires a preference store and a gateway")
	}
	id := deps.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	c := &Controller{
		id:           id,
		store:        deps.Store,
		gateway:      deps.Gateway,
		fetcher:      deps.Alerts,
		capture:      deps.Capture,
		player:       deps.Player,
		journal:      deps.Journal,
		log:          deps.Logger,
		tracer:       deps.Tracer,
		autoSpeak:    deps.AutoSpeak,
		maxAlerts:    deps.MaxAlerts,
		alertsLoaded: make(chan struct{}),
		subs:         make(map[chan struct{}]struct{}),
	}
	c.applyDefaults(deps.Meter)
	c.log = c.log.With(slog.String("component", "session"), slog.String("session_id", c.id))

	code, ok, err := c.store.Get(ctx, prefs.KeyLanguage)
	if err != nil {
		return nil, fmt.Errorf("read language preference: %w", err)
	}
	if !ok || strings.TrimSpace(code) == "" {
		c.recordError(ctx, eventstore.KindConfigurationError, "")
		return nil, ErrConfigurationMissing
	}
	profile, err := language.Lookup(code)
	if err != nil {
		c.recordError(ctx, eventstore.KindConfigurationError, code)
		return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
	}

	c.profile = profile
	c.messages = []Message{{Role: RoleAssistant, Text: profile.Welcome}}
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := c.journal.BeginSession(ctx, c.id, string(profile.Code)); err != nil {
		c.log.Warn("failed to journal session start", slogError(err))
	}
	c.log.Info("session started", slog.String("language", string(profile.Code)))

	c.wg.Add(1)
	go c.loadAlerts()
	return c, nil
}

func (c *Controller) applyDefaults(meter metric.Meter) {
	if c.fetcher == nil {
		c.fetcher = emptyFetcher{}
	}
	if c.capture == nil {
		c.capture = stt.Unsupported()
	}
	if c.player == nil {
		c.player = noopPlayer{}
	}
	if c.journal == nil {
		c.journal = noopJournal{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = tracenoop.NewTracerProvider().Tracer("session")
	}
	if c.maxAlerts <= 0 {
		c.maxAlerts = defaultMaxAlerts
	}
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("session")
	}
	var err error
	if c.chatRequests, err = meter.Int64Counter("aacharya.chat.requests",
		metric.WithDescription("Chat round trips by outcome")); err != nil {
		c.chatRequests, _ = metricnoop.NewMeterProvider().Meter("session").Int64Counter("aacharya.chat.requests")
	}
	if c.chatLatency, err = meter.Float64Histogram("aacharya.chat.latency_ms",
		metric.WithDescription("Chat round trip latency"), metric.WithUnit("ms")); err != nil {
		c.chatLatency, _ = metricnoop.NewMeterProvider().Meter("session").Float64Histogram("aacharya.chat.latency_ms")
	}
	if c.captureSessions, err = meter.Int64Counter("aacharya.capture.sessions",
		metric.WithDescription("Speech capture sessions by outcome")); err != nil {
		c.captureSessions, _ = metricnoop.NewMeterProvider().Meter("session").Int64Counter("aacharya.capture.sessions")
	}
}

func (c *Controller) ID() string { return c.id }

// SubmitText sends text to the gateway. Blank text, or a call while a reply is
// outstanding, is ignored. The user message is visible before the round trip
// starts and exactly one assistant message follows it.
func (c *Controller) SubmitText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || c.awaiting || c.closed {
		c.mu.Unlock()
		return
	}
	c.messages = append(c.messages, Message{Role: RoleUser, Text: text})
	c.pending = ""
	c.awaiting = true
	lang := string(c.profile.Code)
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()
	c.notify()

	// Close abandons the round trip
	ctx, abandon := context.WithCancel(ctx)
	defer abandon()
	defer context.AfterFunc(c.ctx, abandon)()

	ctx, span := c.tracer.Start(ctx, "session.submit", trace.WithAttributes(
		attribute.String("session.id", c.id),
		attribute.String("session.language", lang),
	))
	defer span.End()

	started := time.Now()
	reply, err := c.gateway.Send(ctx, text, lang)
	elapsed := float64(time.Since(started).Microseconds()) / 1000

	outcome := "success"
	c.mu.Lock()
	if err != nil {
		outcome = "failure"
		// fallback follows the language in effect now, not at request time
		c.messages = append(c.messages, Message{Role: RoleAssistant, Text: c.profile.Fallback})
	} else {
		c.messages = append(c.messages, Message{Role: RoleAssistant, Text: reply})
	}
	c.awaiting = false
	locale := c.profile.SpeechLocale
	c.mu.Unlock()
	c.notify()

	attrs := metric.WithAttributes(attribute.String("outcome", outcome), attribute.String("language", lang))
	c.chatRequests.Add(ctx, 1, attrs)
	c.chatLatency.Record(ctx, elapsed, attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat request failed")
		c.log.Warn("chat request failed", slogError(err), slog.Float64("latency_ms", elapsed))
		c.recordError(context.WithoutCancel(ctx), eventstore.KindChatFailed, err.Error())
		return
	}
	c.log.Debug("chat reply received", slog.Float64("latency_ms", elapsed))
	if c.autoSpeak {
		c.player.Speak(ctx, reply, locale)
	}
}

// SetInput replaces the draft.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.pending = text
	c.mu.Unlock()
	c.notify()
}

// Submit sends the current draft.
func (c *Controller) Submit(ctx context.Context) {
	c.mu.Lock()
	draft := c.pending
	c.mu.Unlock()
	c.SubmitText(ctx, draft)
}

// SetLanguage switches the session language and stores the choice. Existing
// messages are left untouched.
func (c *Controller) SetLanguage(ctx context.Context, code string) error {
	profile, err := language.Lookup(code)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, prefs.KeyLanguage, string(profile.Code)); err != nil {
		return fmt.Errorf("store language preference: %w", err)
	}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	c.notify()
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	speaking := c.player.Active()
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		SessionID:       c.id,
		Language:        string(c.profile.Code),
		Placeholder:     c.profile.Placeholder,
		Messages:        append([]Message(nil), c.messages...),
		PendingInput:    c.pending,
		AwaitingReply:   c.awaiting,
		CapturingSpeech: c.capturing,
		Speaking:        speaking,
		Alerts:          c.visibleAlerts(),
	}
}

// Subscribe returns a channel that receives a value after every state change
// and a function that releases it. Notifications coalesce.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subs, ch)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops capture and playback, waits for background work and journals
// the end of the session.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.StopSpeechCapture()
	c.player.Cancel()
	c.cancel()
	c.wg.Wait()
	if err := c.journal.EndSession(ctx, c.id); err != nil {
		c.log.Warn("failed to journal session end", slogError(err))
	}
	c.log.Info("session closed")
}

func (c *Controller) recordError(ctx context.Context, kind, detail string) {
	if err := c.journal.Record(ctx, c.id, kind, detail); err != nil {
		c.log.Warn("failed to journal event", slog.String("kind", kind), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
