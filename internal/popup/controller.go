// Package popup implements the popup controller: a thin client that
// toggles recording and renders transcription results and error notices.
package popup

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/protocol"
)

// Handlers receives UI-facing events. Either callback may be nil.
type Handlers struct {
	// OnResult receives transcription text to render.
	OnResult func(text string)
	// OnError receives human-readable error notices.
	OnError func(detail string)
}

// Controller is a connected popup. It tracks the recording toggle the
// same way the button in the UI does.
type Controller struct {
	conn     *websocket.Conn
	handlers Handlers
	logger   zerolog.Logger

	mu        sync.Mutex
	recording bool
}

// Connect dials the coordinator's popup channel. Run must be called to
// receive results.
func Connect(ctx context.Context, baseURL string, handlers Handlers, logger zerolog.Logger) (*Controller, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator URL: %w", err)
	}
	u.Path = "/channels/popup"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator: %w", err)
	}
	return &Controller{conn: conn, handlers: handlers, logger: logger}, nil
}

// Toggle flips the recording state and sends the matching command.
// Returns the new state.
func (c *Controller) Toggle() (bool, error) {
	c.mu.Lock()
	c.recording = !c.recording
	recording := c.recording
	c.mu.Unlock()

	cmd := protocol.CmdStopRecording
	if recording {
		cmd = protocol.CmdStartRecording
	}
	if err := c.send(protocol.Envelope{Command: cmd}); err != nil {
		return recording, fmt.Errorf("send %s: %w", cmd, err)
	}
	return recording, nil
}

// Recording reports the current toggle state.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *Controller) send(env protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Run reads messages until the connection drops or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Error().Err(err).Msg("Dropping malformed envelope")
			continue
		}

		switch env.Command {
		case protocol.CmdTranscriptionResult:
			if c.handlers.OnResult != nil {
				c.handlers.OnResult(env.Transcription)
			}
		case protocol.CmdError:
			if c.handlers.OnError != nil {
				c.handlers.OnError(env.Content)
			}
		default:
			// Connection and command acks are informational.
			c.logger.Debug().Str("command", string(env.Command)).Str("content", env.Content).Msg("Acknowledged")
		}
	}
}

// Close tears down the connection.
func (c *Controller) Close() error {
	return c.conn.Close()
}
