package postprocess

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicescribe/voice-relay/internal/config"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		OpenAIBaseURL:       baseURL,
		PostProcessingModel: "gpt-4o-mini",
	}
}

func TestProcess_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Path = %q, want '/chat/completions'", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want 'Bearer sk-test'", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want 'application/json'", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want 'gpt-4o-mini'", req.Model)
		}
		if len(req.Messages) != 2 {
			t.Fatalf("Got %d messages, want 2", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("First message role = %q, want 'system'", req.Messages[0].Role)
		}
		if req.Messages[1].Role != "user" || req.Messages[1].Content != "hello world" {
			t.Errorf("User turn = %+v, want the raw transcript", req.Messages[1])
		}
		if req.Temperature < 0.29 || req.Temperature > 0.31 {
			t.Errorf("temperature = %f, want 0.3", req.Temperature)
		}
		if req.MaxTokens != 1028 {
			t.Errorf("max_tokens = %d, want 1028", req.MaxTokens)
		}
		if req.TopP < 0.99 || req.TopP > 1.01 {
			t.Errorf("top_p = %f, want 1", req.TopP)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello, world."}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL))
	text, err := client.Process(context.Background(), "sk-test", "hello world")
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if text != "Hello, world." {
		t.Errorf("Process = %q, want 'Hello, world.'", text)
	}
}

func TestProcess_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL))
	if _, err := client.Process(context.Background(), "sk-test", "hello"); err == nil {
		t.Error("Expected error for empty response content")
	}
}

func TestProcess_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(testConfig(server.URL))
	if _, err := client.Process(context.Background(), "sk-test", "hello"); err == nil {
		t.Error("Expected error for 429 response")
	}
}
