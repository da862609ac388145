package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/agent"
	"github.com/voicescribe/voice-relay/internal/popup"
	"github.com/voicescribe/voice-relay/internal/protocol"
	"github.com/voicescribe/voice-relay/internal/relay"
)

type fakeRunner struct {
	text string
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, clip protocol.AudioClip) (string, error) {
	return f.text, f.err
}

type fakeDevice struct {
	startErr error
	clip     protocol.AudioClip
}

func (f *fakeDevice) Start(ctx context.Context) error {
	return f.startErr
}

func (f *fakeDevice) Stop() (protocol.AudioClip, error) {
	return f.clip, nil
}

func startRelay(t *testing.T, runner relay.Runner) (*relay.Coordinator, string) {
	t.Helper()
	coord := relay.NewCoordinator(runner, nil, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/channels/popup", PopupHandler(coord, zerolog.Nop()))
	mux.HandleFunc("/channels/content", ContentHandler(coord, zerolog.Nop()))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return coord, "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestEndToEnd_RecordingRoundTrip(t *testing.T) {
	coord, wsURL := startRelay(t, &fakeRunner{text: "hello world"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := &fakeDevice{clip: protocol.AudioClip{MIMEType: "audio/webm", Bytes: []byte("RIFF...")}}
	agentClient, err := agent.Connect(ctx, wsURL, "7", device, zerolog.Nop())
	if err != nil {
		t.Fatalf("agent.Connect failed: %v", err)
	}
	defer agentClient.Close()
	go agentClient.Run(ctx)

	results := make(chan string, 1)
	ctrl, err := popup.Connect(ctx, wsURL, popup.Handlers{
		OnResult: func(text string) { results <- text },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("popup.Connect failed: %v", err)
	}
	defer ctrl.Close()
	go ctrl.Run(ctx)

	waitUntil(t, "links to register", func() bool {
		return coord.PopupConnected() && len(coord.ContentTabs()) == 1
	})

	if recording, err := ctrl.Toggle(); err != nil || !recording {
		t.Fatalf("Toggle() = (%v, %v), want recording started", recording, err)
	}
	if recording, err := ctrl.Toggle(); err != nil || recording {
		t.Fatalf("Toggle() = (%v, %v), want recording stopped", recording, err)
	}

	select {
	case text := <-results:
		if text != "hello world" {
			t.Errorf("Result = %q, want 'hello world'", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for transcription result")
	}
}

func TestEndToEnd_CaptureDeniedSurfacesToPopup(t *testing.T) {
	coord, wsURL := startRelay(t, &fakeRunner{text: "unused"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := &fakeDevice{startErr: errors.New("permission denied")}
	agentClient, err := agent.Connect(ctx, wsURL, "7", device, zerolog.Nop())
	if err != nil {
		t.Fatalf("agent.Connect failed: %v", err)
	}
	defer agentClient.Close()
	go agentClient.Run(ctx)

	notices := make(chan string, 1)
	ctrl, err := popup.Connect(ctx, wsURL, popup.Handlers{
		OnError: func(detail string) { notices <- detail },
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("popup.Connect failed: %v", err)
	}
	defer ctrl.Close()
	go ctrl.Run(ctx)

	waitUntil(t, "links to register", func() bool {
		return coord.PopupConnected() && len(coord.ContentTabs()) == 1
	})

	if _, err := ctrl.Toggle(); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	select {
	case detail := <-notices:
		if !strings.Contains(detail, "denied") {
			t.Errorf("Error notice = %q, want it to mention the denial", detail)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for error notice")
	}
}

func TestEndToEnd_DisconnectUnregisters(t *testing.T) {
	coord, wsURL := startRelay(t, &fakeRunner{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	device := &fakeDevice{}
	agentClient, err := agent.Connect(ctx, wsURL, "42", device, zerolog.Nop())
	if err != nil {
		t.Fatalf("agent.Connect failed: %v", err)
	}
	go agentClient.Run(ctx)

	waitUntil(t, "content link to register", func() bool {
		return len(coord.ContentTabs()) == 1
	})

	agentClient.Close()
	waitUntil(t, "content link to unregister", func() bool {
		return len(coord.ContentTabs()) == 0
	})
}

func TestContentHandler_RequiresTabID(t *testing.T) {
	_, wsURL := startRelay(t, &fakeRunner{})

	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")
	resp, err := http.Get(httpURL + "/channels/content")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
