package tts

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sink receives synthesized audio, one Track per utterance.
type Sink interface {
	Begin(utteranceID string, sampleRate, channels int) (Track, error)
}

// Track is closed exactly once, whether playback finished or was cancelled.
type Track interface {
	Write(pcm []byte) error
	Close() error
}

type discardSink struct{}

// Discard drops all audio.
func Discard() Sink { return discardSink{} }

func (discardSink) Begin(string, int, int) (Track, error) { return discardTrack{}, nil }

type discardTrack struct{}

func (discardTrack) Write([]byte) error { return nil }
func (discardTrack) Close() error       { return nil }

type wavSink struct {
	dir string
}

// NewWAVSink writes each utterance to <dir>/<utterance id>.wav.
func NewWAVSink(dir string) (Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tts output dir: %w", err)
	}
	return &wavSink{dir: dir}, nil
}

func (s *wavSink) Begin(utteranceID string, sampleRate, channels int) (Track, error) {
	f, err := os.Create(filepath.Join(s.dir, utteranceID+".wav"))
	if err != nil {
		return nil, fmt.Errorf("create wav track: %w", err)
	}
	return &wavTrack{
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, 16, channels, 1),
		format:  &audio.Format{NumChannels: channels, SampleRate: sampleRate},
	}, nil
}

type wavTrack struct {
	file    *os.File
	encoder *wav.Encoder
	format  *audio.Format
}

func (t *wavTrack) Write(pcm []byte) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return t.encoder.Write(&audio.IntBuffer{Format: t.format, Data: samples, SourceBitDepth: 16})
}

func (t *wavTrack) Close() error {
	encErr := t.encoder.Close()
	fileErr := t.file.Close()
	if encErr != nil {
		return fmt.Errorf("close wav encoder: %w", encErr)
	}
	return fileErr
}
