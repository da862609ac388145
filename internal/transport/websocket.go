// Package transport exposes the coordinator's two channel endpoints over
// WebSocket. Each accepted connection becomes one relay link; the read
// loop runs until the peer disconnects.
package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/observability"
	"github.com/voicescribe/voice-relay/internal/protocol"
	"github.com/voicescribe/voice-relay/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The relay binds to localhost; popup and agents run on the same
		// machine.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsLink adapts one WebSocket connection to relay.Link. Writes are
// serialized; gorilla/websocket allows only one concurrent writer.
type wsLink struct {
	conn    *websocket.Conn
	channel string
	tab     string

	writeMu sync.Mutex
}

func (l *wsLink) Channel() string { return l.channel }
func (l *wsLink) TabID() string   { return l.tab }

func (l *wsLink) Send(env protocol.Envelope) error {
	raw, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.TextMessage, raw)
}

// PopupHandler serves the popup channel endpoint.
func PopupHandler(coord *relay.Coordinator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serve(coord, logger, w, r, protocol.PopupChannel, "")
	}
}

// ContentHandler serves the content channel endpoint. The originating tab
// identifier travels as the "tab" query parameter.
func ContentHandler(coord *relay.Coordinator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tab := r.URL.Query().Get("tab")
		if tab == "" {
			http.Error(w, "missing tab parameter", http.StatusBadRequest)
			return
		}
		serve(coord, logger, w, r, protocol.ContentChannel, tab)
	}
}

func serve(coord *relay.Coordinator, logger zerolog.Logger, w http.ResponseWriter, r *http.Request, channel, tab string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	link := &wsLink{conn: conn, channel: channel, tab: tab}
	linkLogger := observability.WithCorrelationID("").With().
		Str("channel", channel).
		Str("tab_id", tab).
		Logger()

	if err := coord.Register(link); err != nil {
		linkLogger.Error().Err(err).Msg("Failed to register link")
		return
	}
	defer coord.Unregister(link)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				linkLogger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			linkLogger.Error().Err(err).Msg("Dropping malformed envelope")
			observability.RecordError("malformed_envelope", "transport")
			continue
		}

		switch channel {
		case protocol.PopupChannel:
			// Routing failures are handled and logged by the coordinator;
			// the link itself stays up.
			_ = coord.RouteFromPopup(env)
		case protocol.ContentChannel:
			coord.RouteFromContent(link, env)
		}
	}
}
