package stt

import (
	"fmt"

	"github.com/loqalabs/aacharya/internal/protocol"
	"github.com/zaf/g711"
)

// decodeFrame returns the frame payload as 16-bit little-endian PCM.
func decodeFrame(frame protocol.AudioFrame) ([]byte, error) {
	switch frame.Encoding {
	case "", protocol.EncodingPCM16:
		if len(frame.PCM)%2 != 0 {
			return nil, fmt.Errorf("pcm16 payload has odd length %d", len(frame.PCM))
		}
		return frame.PCM, nil
	case protocol.EncodingMuLaw:
		return g711.DecodeUlaw(frame.PCM), nil
	case protocol.EncodingALaw:
		return g711.DecodeAlaw(frame.PCM), nil
	default:
		return nil, fmt.Errorf("unsupported frame encoding %q", frame.Encoding)
	}
}
