package tts

import "context"

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	UtteranceID string
	Text        string
	Locale      string
}

// SynthChunk carries 16-bit little-endian PCM for part of an utterance.
type SynthChunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio. Both channels are closed
// when synthesis ends; cancelling ctx stops it early.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}
