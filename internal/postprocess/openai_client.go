// Package postprocess cleans up raw transcripts through a chat-completion
// endpoint. The instruction only allows structural fixes: the model must
// not change the speaker's vocabulary.
package postprocess

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/voicescribe/voice-relay/internal/config"
)

const systemInstruction = "You reformat transcribed speech. Preserve the speaker's " +
	"vocabulary and wording exactly; only fix structure, punctuation, and " +
	"capitalization. Return the reformatted text and nothing else."

// OpenAIClient implements PostProcessor against the OpenAI chat-completion
// endpoint. One request per transcript, no retries.
type OpenAIClient struct {
	baseURL string
	model   string
}

// NewOpenAIClient creates a post-processing client from config.
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	return &OpenAIClient{
		baseURL: cfg.OpenAIBaseURL,
		model:   cfg.PostProcessingModel,
	}
}

// Process submits the transcript as the user turn under a fixed system
// instruction. An empty or absent message content in the response is an
// error; the raw transcript is never substituted.
func (c *OpenAIClient) Process(ctx context.Context, apiKey, transcript string) (string, error) {
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = c.baseURL
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature:      0.3,
		MaxTokens:        1028,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	})
	if err != nil {
		return "", fmt.Errorf("post-processing request: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("post-processing response contained no content")
	}
	return resp.Choices[0].Message.Content, nil
}
