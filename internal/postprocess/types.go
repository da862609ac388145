package postprocess

import "context"

// PostProcessor reformats a raw transcript. Implementations are stateless
// aside from reading the API key per call.
type PostProcessor interface {
	// Process sends the transcript to the chat-completion endpoint and
	// returns the cleaned-up text.
	Process(ctx context.Context, apiKey, transcript string) (string, error)
}
