package stt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-audio/wav"
	"github.com/loqalabs/aacharya/internal/config"
	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/nats-io/nats.go"
)

// AudioSource yields one utterance of microphone audio per call.
type AudioSource interface {
	Record(ctx context.Context) (Utterance, error)
}

// FrameSubscriber is the slice of the bus client the bus source needs.
type FrameSubscriber interface {
	Subscribe(subject string, handler func(subject string, data []byte)) (*nats.Subscription, error)
}

// NewSource builds the source selected by cfg.Input.
func NewSource(cfg config.STTConfig, frames FrameSubscriber, log *slog.Logger) (AudioSource, error) {
	switch cfg.Input {
	case "", "silence":
		return NewSilenceSource(cfg.SampleRate, cfg.Channels, 500*time.Millisecond), nil
	case "wav":
		return NewWAVSource(cfg.Source), nil
	case "bus":
		if frames == nil {
			return nil, fmt.Errorf("stt input bus requires a bus connection")
		}
		return NewBusSource(frames, cfg.Source, log), nil
	default:
		return nil, fmt.Errorf("unsupported stt input %q", cfg.Input)
	}
}

type silenceSource struct {
	sampleRate int
	channels   int
	length     time.Duration
}

// NewSilenceSource returns length worth of zeroed samples.
func NewSilenceSource(sampleRate, channels int, length time.Duration) AudioSource {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &silenceSource{sampleRate: sampleRate, channels: channels, length: length}
}

func (s *silenceSource) Record(ctx context.Context) (Utterance, error) {
	if err := ctx.Err(); err != nil {
		return Utterance{}, err
	}
	samples := int(s.length.Seconds() * float64(s.sampleRate*s.channels))
	return Utterance{
		PCM:        make([]byte, samples*2),
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	}, nil
}

type wavSource struct {
	path string
}

// NewWAVSource reads the whole file at path on every Record.
func NewWAVSource(path string) AudioSource {
	return &wavSource{path: path}
}

func (s *wavSource) Record(ctx context.Context) (Utterance, error) {
	if err := ctx.Err(); err != nil {
		return Utterance{}, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return Utterance{}, fmt.Errorf("open wav source: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Utterance{}, fmt.Errorf("%s is not a valid wav file", s.path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Utterance{}, fmt.Errorf("decode wav source: %w", err)
	}
	return Utterance{
		PCM:        samplesToPCM(buf.Data, int(dec.BitDepth)),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

type busSource struct {
	frames  FrameSubscriber
	subject string
	log     *slog.Logger
}

// NewBusSource collects audio frames published by a microphone bridge on
// audio.frame.<stream> until one is marked final. An empty stream listens to
// every bridge.
func NewBusSource(frames FrameSubscriber, stream string, log *slog.Logger) AudioSource {
	subject := protocol.SubjectAudioFramePrefix + ".>"
	if stream != "" {
		subject = protocol.SubjectAudioFramePrefix + "." + stream
	}
	return &busSource{frames: frames, subject: subject, log: log}
}

func (s *busSource) Record(ctx context.Context) (Utterance, error) {
	var (
		mu    sync.Mutex
		utter Utterance
		owner string
		done  = make(chan struct{})
		once  sync.Once
	)

	sub, err := s.frames.Subscribe(s.subject, func(_ string, data []byte) {
		var frame protocol.AudioFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			s.log.Warn("failed to decode audio frame", slogError(err))
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if owner == "" {
			owner = frame.SessionID
			utter.SampleRate = frame.SampleRate
			utter.Channels = frame.Channels
		}
		// frames from other bridges sharing a wildcard subject are ignored
		if frame.SessionID != owner {
			return
		}
		pcm, err := decodeFrame(frame)
		if err != nil {
			s.log.Warn("dropping audio frame", slog.Int("sequence", frame.Sequence), slogError(err))
		} else {
			utter.PCM = append(utter.PCM, pcm...)
		}
		if frame.Final {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return Utterance{}, err
	}
	defer sub.Unsubscribe()

	select {
	case <-done:
	case <-ctx.Done():
		return Utterance{}, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return utter, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
