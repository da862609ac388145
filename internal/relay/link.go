package relay

import "github.com/voicescribe/voice-relay/internal/protocol"

// Link is one side of a named bidirectional message channel between the
// coordinator and exactly one other context: the popup, or one content
// agent. A link exists from connection handshake until disconnect.
type Link interface {
	// Channel returns the fixed channel name the link was opened with.
	Channel() string

	// TabID returns the originating tab identifier for content links, or
	// "" for the popup link.
	TabID() string

	// Send writes one envelope to the peer.
	Send(env protocol.Envelope) error
}
