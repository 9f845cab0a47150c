package session

import (
	"context"
	"errors"

	"github.com/loqalabs/aacharya/internal/eventstore"
	"github.com/loqalabs/aacharya/internal/stt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StartSpeechCapture begins single-shot recognition in the session locale. It
// is a no-op while a capture is running and returns ErrCaptureUnsupported when
// the platform has no recognizer. A transcript only fills the draft.
func (c *Controller) StartSpeechCapture(ctx context.Context) error {
	if !c.capture.Supported() {
		c.recordError(ctx, eventstore.KindCaptureError, stt.ErrUnsupported.Error())
		return ErrCaptureUnsupported
	}

	c.mu.Lock()
	if c.capturing || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.captureGen++
	gen := c.captureGen
	c.capturing = true
	locale := c.profile.SpeechLocale
	c.mu.Unlock()
	c.notify()

	err := c.capture.Start(c.ctx, locale, func(ev stt.Event) {
		c.onCaptureEvent(gen, ev)
	})
	if err == nil {
		return nil
	}

	c.mu.Lock()
	if c.captureGen == gen {
		c.capturing = false
	}
	c.mu.Unlock()
	c.notify()
	c.countCapture(ctx, "start_failed")
	c.log.Warn("speech capture did not start", slogError(err))
	c.recordError(ctx, eventstore.KindCaptureError, err.Error())
	if errors.Is(err, stt.ErrUnsupported) {
		return ErrCaptureUnsupported
	}
	return err
}

// StopSpeechCapture ends an active capture without applying a transcript.
// Calling it when idle does nothing.
func (c *Controller) StopSpeechCapture() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	// events still in flight from the stopped capture are dropped
	c.captureGen++
	c.mu.Unlock()

	c.capture.Stop()
	c.countCapture(context.Background(), "stopped")
	c.notify()
}

func (c *Controller) onCaptureEvent(gen uint64, ev stt.Event) {
	c.mu.Lock()
	if gen != c.captureGen || !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	if ev.Kind == stt.EventTranscript {
		c.pending = ev.Text
	}
	c.mu.Unlock()
	c.notify()

	switch ev.Kind {
	case stt.EventTranscript:
		c.countCapture(c.ctx, "transcript")
	case stt.EventError:
		c.countCapture(c.ctx, "error")
		if ev.Err == nil {
			ev.Err = errors.New("capture error")
		}
		c.log.Info("speech capture ended with error", slogError(ev.Err))
		c.recordError(c.ctx, eventstore.KindCaptureError, ev.Err.Error())
	case stt.EventEnd:
		c.countCapture(c.ctx, "ended")
	}
}

func (c *Controller) countCapture(ctx context.Context, outcome string) {
	c.captureSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Speak reads the assistant message at index aloud, replacing anything that
// is already playing.
func (c *Controller) Speak(ctx context.Context, index int) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.messages) {
		c.mu.Unlock()
		return ErrMessageIndex
	}
	msg := c.messages[index]
	locale := c.profile.SpeechLocale
	c.mu.Unlock()

	if msg.Role != RoleAssistant {
		return ErrNotAssistantMessage
	}
	c.player.Cancel()
	c.player.Speak(ctx, msg.Text, locale)
	return nil
}

// StopSpeaking cancels playback. It is a no-op when nothing plays.
func (c *Controller) StopSpeaking() {
	c.player.Cancel()
}
