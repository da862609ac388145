package stt

import (
	"context"

	"github.com/voicescribe/voice-relay/internal/protocol"
)

// Transcriber converts a finished audio clip into text. Implementations are
// stateless aside from reading the API key per call.
type Transcriber interface {
	// Transcribe sends one clip to the speech-to-text endpoint and returns
	// the transcribed text.
	Transcribe(ctx context.Context, apiKey string, clip protocol.AudioClip) (string, error)
}
