package stt

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/voicescribe/voice-relay/internal/config"
	"github.com/voicescribe/voice-relay/internal/protocol"
)

// OpenAIClient implements Transcriber against the OpenAI audio
// transcription endpoint. One multipart request per clip, no retries.
type OpenAIClient struct {
	baseURL     string
	model       string
	language    string
	temperature float32
}

// NewOpenAIClient creates a transcription client from config.
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return &OpenAIClient{
		baseURL:     cfg.OpenAIBaseURL,
		model:       cfg.TranscriptionModel,
		language:    cfg.TranscriptionLanguage,
		temperature: cfg.TranscriptionTemperature,
	}
}

// Transcribe uploads the clip as "audio.webm" and returns the text field of
// the JSON response. Non-2xx responses and transport failures propagate as
// errors; the caller decides what to do with them.
func (c *OpenAIClient) Transcribe(ctx context.Context, apiKey string, clip protocol.AudioClip) (string, error) {
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = c.baseURL
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.model,
		FilePath:    "audio.webm",
		Reader:      bytes.NewReader(clip.Bytes),
		Language:    c.language,
		Temperature: c.temperature,
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	return resp.Text, nil
}
