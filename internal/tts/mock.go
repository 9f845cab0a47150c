package tts

import (
	"context"
	"time"
	"unicode/utf8"
)

const mockChunkInterval = 20 * time.Millisecond

type mockSynth struct {
	sampleRate int
	channels   int
}

// NewMockSynth emits one chunk of silence per 16 characters of text, paced
// like real playback.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		count := utf8.RuneCountInString(req.Text)/16 + 1
		samples := int(mockChunkInterval.Seconds() * float64(m.sampleRate*m.channels))
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case <-time.After(mockChunkInterval):
			}
			chunk := SynthChunk{
				Sequence:   i,
				SampleRate: m.sampleRate,
				Channels:   m.channels,
				PCM:        make([]byte, samples*2),
				Final:      i == count-1,
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}
