package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/aacharya/internal/config"
)

// Player speaks one utterance at a time. A new Speak cancels whatever is
// playing, so the last request wins.
type Player struct {
	synth   Synthesizer
	sink    Sink
	timeout time.Duration
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	current   *utterance
	onFailure func(utteranceID string, err error)
}

type utterance struct {
	id     string
	cancel context.CancelFunc
}

// New builds the player described by cfg. Disabled TTS yields a player whose
// Speak is a no-op.
func New(parent context.Context, cfg config.TTSConfig, log *slog.Logger) (*Player, error) {
	if !cfg.Enabled {
		return NewPlayer(parent, nil, Discard(), log), nil
	}
	var synth Synthesizer
	switch cfg.Mode {
	case "", "mock":
		synth = NewMockSynth(cfg.SampleRate, cfg.Channels)
	case "exec":
		s, err := NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, err
		}
		synth = s
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
	sink := Discard()
	if cfg.OutputDir != "" {
		s, err := NewWAVSink(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		sink = s
	}
	return NewPlayer(parent, synth, sink, log), nil
}

func NewPlayer(parent context.Context, synth Synthesizer, sink Sink, log *slog.Logger) *Player {
	ctx, cancel := context.WithCancel(parent)
	return &Player{
		synth:   synth,
		sink:    sink,
		timeout: 2 * time.Minute,
		log:     log.With(slog.String("component", "tts")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnFailure registers fn to run when an utterance fails for a reason other
// than cancellation.
func (p *Player) OnFailure(fn func(utteranceID string, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailure = fn
}

func (p *Player) fail(log *slog.Logger, id, msg string, err error) {
	log.Warn(msg, slogError(err))
	p.mu.Lock()
	fn := p.onFailure
	p.mu.Unlock()
	if fn != nil {
		fn(id, fmt.Errorf("%s: %w", msg, err))
	}
}

// Supported reports whether a synthesizer is configured.
func (p *Player) Supported() bool { return p.synth != nil }

// Speak cancels the current utterance and starts text in locale. It returns
// immediately; failures are logged and passed to the OnFailure hook.
func (p *Player) Speak(ctx context.Context, text, locale string) {
	text = strings.TrimSpace(text)
	if p.synth == nil || text == "" || p.ctx.Err() != nil {
		return
	}

	playCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	stop := context.AfterFunc(p.ctx, cancel)
	u := &utterance{id: uuid.NewString(), cancel: cancel}

	p.mu.Lock()
	if p.current != nil {
		p.current.cancel()
	}
	p.current = u
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer stop()
		defer cancel()
		p.play(playCtx, u, text, locale)

		p.mu.Lock()
		if p.current == u {
			p.current = nil
		}
		p.mu.Unlock()
	}()
}

func (p *Player) play(ctx context.Context, u *utterance, text, locale string) {
	log := p.log.With(slog.String("utterance_id", u.id), slog.String("locale", locale))
	chunks, errs := p.synth.Synthesize(ctx, SynthRequest{UtteranceID: u.id, Text: text, Locale: locale})

	var track Track
	defer func() {
		if track != nil {
			if err := track.Close(); err != nil {
				log.Warn("failed to close audio track", slogError(err))
			}
		}
	}()

	for chunk := range chunks {
		if track == nil {
			t, err := p.sink.Begin(u.id, chunk.SampleRate, chunk.Channels)
			if err != nil {
				p.fail(log, u.id, "failed to open audio track", err)
				return
			}
			track = t
		}
		if err := track.Write(chunk.PCM); err != nil {
			p.fail(log, u.id, "failed to write audio", err)
			return
		}
	}
	if err := <-errs; err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("utterance cancelled")
			return
		}
		p.fail(log, u.id, "speech synthesis failed", err)
		return
	}
	log.Debug("utterance finished")
}

// Cancel stops the current utterance. It is a no-op when nothing plays.
func (p *Player) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.cancel()
		p.current = nil
	}
}

// Active reports whether an utterance is playing.
func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Wait blocks until every started utterance has ended.
func (p *Player) Wait() {
	p.wg.Wait()
}

func (p *Player) Close() {
	p.cancel()
	p.wg.Wait()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
