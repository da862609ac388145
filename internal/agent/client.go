package agent

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/protocol"
)

// wsSender serializes writes to the agent's coordinator connection.
type wsSender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSender) Send(env protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// Client is a connected content agent.
type Client struct {
	agent  *Agent
	conn   *websocket.Conn
	logger zerolog.Logger
}

// Connect dials the coordinator's content channel for the given tab and
// returns a connected client. Run must be called to process commands.
func Connect(ctx context.Context, baseURL, tabID string, device CaptureDevice, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator URL: %w", err)
	}
	u.Path = "/channels/content"
	u.RawQuery = url.Values{"tab": {tabID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator: %w", err)
	}

	agentLogger := logger.With().Str("tab_id", tabID).Logger()
	return &Client{
		agent:  New(device, &wsSender{conn: conn}, agentLogger),
		conn:   conn,
		logger: agentLogger,
	}, nil
}

// NotifyFocused reports tab focus to the coordinator.
func (c *Client) NotifyFocused() {
	c.agent.NotifyFocused()
}

// Run reads commands until the connection drops or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
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
			return fmt.Errorf("read command: %w", err)
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Error().Err(err).Msg("Dropping malformed envelope")
			continue
		}
		c.agent.HandleCommand(ctx, env)
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
