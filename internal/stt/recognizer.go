package stt

import (
	"context"
)

// Utterance is one captured stretch of 16-bit little-endian PCM.
type Utterance struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Locale     string
}

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, u Utterance) (TranscriptResult, error)
}
