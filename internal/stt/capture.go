package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/aacharya/internal/config"
)

var (
	// ErrUnsupported means the platform has no speech capture capability.
	ErrUnsupported = errors.New("speech capture unsupported")
	// ErrNoSpeech is reported when the recognizer heard nothing usable.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrBusy is returned by Start while a capture is already running.
	ErrBusy = errors.New("speech capture already active")
)

type EventKind int

const (
	EventTranscript EventKind = iota
	EventError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is delivered to the Start callback. Every capture produces at most one
// transcript or error event followed by exactly one end event.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Capture is a single-shot speech recognizer session.
type Capture interface {
	Supported() bool
	Start(ctx context.Context, locale string, emit func(Event)) error
	Stop()
}

// NewCapture assembles the capture adapter described by cfg. Disabled STT
// yields an adapter that reports no capability.
func NewCapture(cfg config.STTConfig, frames FrameSubscriber, log *slog.Logger) (Capture, error) {
	if !cfg.Enabled {
		return Unsupported(), nil
	}
	var (
		recognizer Recognizer
		err        error
	)
	switch cfg.Mode {
	case "", "mock":
		recognizer = NewMockRecognizer("")
	case "exec":
		recognizer, err = NewExecRecognizer(cfg)
	default:
		err = fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	source, err := NewSource(cfg, frames, log)
	if err != nil {
		return nil, err
	}
	return NewRecognizerCapture(source, recognizer, time.Duration(cfg.TimeoutMS)*time.Millisecond, log), nil
}

type unsupportedCapture struct{}

func Unsupported() Capture { return unsupportedCapture{} }

func (unsupportedCapture) Supported() bool { return false }

func (unsupportedCapture) Start(context.Context, string, func(Event)) error {
	return ErrUnsupported
}

func (unsupportedCapture) Stop() {}

type captureRun struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
}

type recognizerCapture struct {
	source     AudioSource
	recognizer Recognizer
	timeout    time.Duration
	log        *slog.Logger

	mu     sync.Mutex
	active *captureRun
}

// NewRecognizerCapture records one utterance from source and transcribes it.
func NewRecognizerCapture(source AudioSource, recognizer Recognizer, timeout time.Duration, log *slog.Logger) Capture {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &recognizerCapture{
		source:     source,
		recognizer: recognizer,
		timeout:    timeout,
		log:        log.With(slog.String("component", "stt")),
	}
}

func (c *recognizerCapture) Supported() bool { return true }

func (c *recognizerCapture) Start(ctx context.Context, locale string, emit func(Event)) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	run := &captureRun{cancel: cancel}
	c.active = run
	c.mu.Unlock()

	go c.run(runCtx, run, locale, emit)
	return nil
}

func (c *recognizerCapture) run(ctx context.Context, run *captureRun, locale string, emit func(Event)) {
	result, err := c.listen(ctx, locale)
	run.cancel()

	c.mu.Lock()
	if c.active == run {
		c.active = nil
	}
	c.mu.Unlock()

	switch {
	case run.stopped.Load():
		// stopped by the caller, nothing to report
	case err != nil:
		c.log.Warn("speech capture failed", slogError(err))
		emit(Event{Kind: EventError, Err: err})
	default:
		emit(Event{Kind: EventTranscript, Text: result})
	}
	emit(Event{Kind: EventEnd})
}

func (c *recognizerCapture) listen(ctx context.Context, locale string) (string, error) {
	u, err := c.source.Record(ctx)
	if err != nil {
		return "", fmt.Errorf("record audio: %w", err)
	}
	u.Locale = locale
	res, err := c.recognizer.Transcribe(ctx, u)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	c.log.Debug("transcript ready", slog.String("locale", locale), slog.Float64("confidence", res.Confidence))
	return text, nil
}

func (c *recognizerCapture) Stop() {
	c.mu.Lock()
	run := c.active
	c.active = nil
	c.mu.Unlock()
	if run == nil {
		return
	}
	run.stopped.Store(true)
	run.cancel()
}
