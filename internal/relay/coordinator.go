// Package relay implements the coordinator: the single component that holds
// links to the popup and to every content agent, routes commands between
// them, and feeds captured audio into the transcription pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/observability"
	"github.com/voicescribe/voice-relay/internal/pipeline"
	"github.com/voicescribe/voice-relay/internal/protocol"
)

var (
	// ErrNoActiveConnection is returned when the popup or content link
	// needed for an operation is missing.
	ErrNoActiveConnection = errors.New("no active connection")

	// ErrNoActiveTab is returned when no content tab is focused.
	ErrNoActiveTab = errors.New("no active tab")
)

// Runner executes one transcription pipeline run for a captured clip.
type Runner interface {
	Run(ctx context.Context, clip protocol.AudioClip) (string, error)
}

// ResultStore persists the last delivered transcription so a freshly
// opened popup can show it.
type ResultStore interface {
	SetTranscription(ctx context.Context, text string) error
	LastTranscription(ctx context.Context) (string, error)
}

// Coordinator owns the link registry. At most one popup link exists at a
// time; content links coexist, keyed uniquely by tab id. All registry
// mutation happens here, under one mutex.
type Coordinator struct {
	runner Runner
	store  ResultStore
	logger zerolog.Logger

	mu        sync.RWMutex
	popup     Link
	content   map[string]Link
	activeTab string
}

// NewCoordinator creates a coordinator. store may be nil, in which case
// results are not persisted across popup lifecycles.
func NewCoordinator(runner Runner, store ResultStore, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		runner:  runner,
		store:   store,
		logger:  logger,
		content: make(map[string]Link),
	}
}

// Register classifies an inbound link by channel name and installs it in
// the registry. The popup connection is acknowledged immediately; a
// previously stored transcription is replayed to it.
func (c *Coordinator) Register(link Link) error {
	switch link.Channel() {
	case protocol.PopupChannel:
		c.mu.Lock()
		replaced := c.popup != nil
		c.popup = link
		c.mu.Unlock()

		if replaced {
			c.logger.Warn().Msg("Popup link replaced by a newer connection")
		} else {
			observability.RecordLinkConnected(protocol.PopupChannel, true)
		}
		c.logger.Info().Msg("Connected to popup")

		if err := link.Send(protocol.Envelope{
			Command: protocol.Accepted(protocol.PopupChannel),
			Content: "Connection established.",
		}); err != nil {
			return fmt.Errorf("acknowledge popup connection: %w", err)
		}
		c.replayLastTranscription(link)
		return nil

	case protocol.ContentChannel:
		if link.TabID() == "" {
			return fmt.Errorf("content link missing tab id")
		}
		c.mu.Lock()
		_, replaced := c.content[link.TabID()]
		c.content[link.TabID()] = link
		// A tab that just loaded the agent is the one the user is looking at.
		c.activeTab = link.TabID()
		c.mu.Unlock()

		if !replaced {
			observability.RecordLinkConnected(protocol.ContentChannel, false)
		}
		c.logger.Info().Str("tab_id", link.TabID()).Msg("Connected to content script")
		return nil

	default:
		return fmt.Errorf("unknown channel %q", link.Channel())
	}
}

// Unregister removes a link from the registry on disconnect. A pending
// pipeline result referencing a removed popup becomes undeliverable and is
// dropped at delivery time.
func (c *Coordinator) Unregister(link Link) {
	switch link.Channel() {
	case protocol.PopupChannel:
		c.mu.Lock()
		removed := c.popup == link
		if removed {
			c.popup = nil
		}
		c.mu.Unlock()
		if removed {
			observability.RecordLinkDisconnected(true)
			c.logger.Info().Msg("Disconnected from popup")
		}

	case protocol.ContentChannel:
		c.mu.Lock()
		removed := c.content[link.TabID()] == link
		if removed {
			// The tab may still be focused; only its agent link is gone.
			// Forwarding to it now reports a fallen connection.
			delete(c.content, link.TabID())
		}
		c.mu.Unlock()
		if removed {
			observability.RecordLinkDisconnected(false)
			c.logger.Info().Str("tab_id", link.TabID()).Msg("Disconnected from content script")
		}
	}
}

// ContentTabs returns the tab ids with a registered content link.
func (c *Coordinator) ContentTabs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tabs := make([]string, 0, len(c.content))
	for tab := range c.content {
		tabs = append(tabs, tab)
	}
	return tabs
}

// PopupConnected reports whether a popup link is registered.
func (c *Coordinator) PopupConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.popup != nil
}

// RouteFromPopup handles one envelope from the popup link. Recording
// commands are forwarded unchanged to the active tab's content link and
// acknowledged back to the popup; anything else is ignored.
func (c *Coordinator) RouteFromPopup(env protocol.Envelope) error {
	switch env.Command {
	case protocol.CmdStartRecording, protocol.CmdStopRecording:
		observability.RecordCommandRouted(string(env.Command))
		if err := c.forwardToActiveTab(env); err != nil {
			c.logger.Error().Err(err).Str("command", string(env.Command)).Msg("Failed to forward command to content script")
			observability.RecordError(errType(err), "relay")
			return err
		}
		c.ackPopup(env.Command)
		return nil
	default:
		c.logger.Debug().Str("command", string(env.Command)).Msg("Ignoring popup command")
		return nil
	}
}

func (c *Coordinator) forwardToActiveTab(env protocol.Envelope) error {
	c.mu.RLock()
	tab := c.activeTab
	link := c.content[tab]
	c.mu.RUnlock()

	if tab == "" {
		return fmt.Errorf("forward %s: %w", env.Command, ErrNoActiveTab)
	}
	if link == nil {
		return fmt.Errorf("forward %s to tab %s: %w", env.Command, tab, ErrNoActiveConnection)
	}
	if err := link.Send(env); err != nil {
		return fmt.Errorf("forward %s to tab %s: %w", env.Command, tab, err)
	}
	c.logger.Info().Str("command", string(env.Command)).Str("tab_id", tab).Msg("Command sent to content script")
	return nil
}

func (c *Coordinator) ackPopup(cmd protocol.Command) {
	c.mu.RLock()
	popup := c.popup
	c.mu.RUnlock()
	if popup == nil {
		return
	}
	ack := protocol.Envelope{Command: protocol.Accepted(string(cmd)), Content: "Command forwarded."}
	if err := popup.Send(ack); err != nil {
		c.logger.Warn().Err(err).Str("command", string(cmd)).Msg("Failed to acknowledge popup command")
	}
}

// RouteFromContent handles one envelope from a content link. Captured
// audio starts a pipeline run; tab activation moves the active-tab marker;
// agent errors are surfaced to the popup. Any other command is ignored.
func (c *Coordinator) RouteFromContent(link Link, env protocol.Envelope) {
	switch env.Command {
	case protocol.CmdAudioData:
		observability.RecordCommandRouted(string(env.Command))
		clip, err := protocol.DecodeDataURL(env.Data)
		if err != nil {
			c.logger.Error().Err(err).Str("tab_id", link.TabID()).Msg("Failed to decode audio payload")
			observability.RecordError("bad_audio_payload", "relay")
			return
		}
		observability.RecordAudioBytes(len(clip.Bytes))
		go c.runPipeline(clip)

	case protocol.CmdTabActivated:
		c.mu.Lock()
		if _, ok := c.content[link.TabID()]; ok {
			c.activeTab = link.TabID()
		}
		c.mu.Unlock()
		c.logger.Debug().Str("tab_id", link.TabID()).Msg("Active tab changed")

	case protocol.CmdError:
		c.logger.Error().Str("tab_id", link.TabID()).Str("detail", env.Content).Msg("Content script reported an error")
		observability.RecordError("capture_error", "agent")
		c.DeliverError(env.Content)

	default:
		c.logger.Debug().Str("command", string(env.Command)).Msg("Ignoring content command")
	}
}

func (c *Coordinator) runPipeline(clip protocol.AudioClip) {
	text, err := c.runner.Run(context.Background(), clip)
	if err != nil {
		c.logger.Error().Err(err).Msg("Pipeline run failed")
		observability.RecordError(errType(err), "pipeline")
		// Silent failure in the popup is a usability defect; a missing
		// credential is something the user can actually fix.
		if errors.Is(err, pipeline.ErrMissingCredential) {
			c.DeliverError("No API key configured.")
		}
		return
	}
	c.DeliverResult(text)
}

// DeliverResult sends a transcription result to the popup. If no popup is
// connected the result is dropped; it is never buffered across popup
// lifecycles, but it is persisted for replay on the next connect.
func (c *Coordinator) DeliverResult(text string) error {
	if c.store != nil {
		if err := c.store.SetTranscription(context.Background(), text); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist transcription")
		}
	}

	c.mu.RLock()
	popup := c.popup
	c.mu.RUnlock()

	if popup == nil {
		c.logger.Error().Msg("No active connection to popup, transcription result dropped")
		observability.RecordError("result_dropped", "relay")
		return ErrNoActiveConnection
	}
	if err := popup.Send(protocol.Envelope{
		Command:       protocol.CmdTranscriptionResult,
		Transcription: text,
	}); err != nil {
		c.logger.Error().Err(err).Msg("Failed to send transcription result to popup")
		observability.RecordError("result_send_failed", "relay")
		return err
	}
	c.logger.Info().Msg("Transcription result sent to popup")
	return nil
}

// DeliverError sends a human-readable error notice to the popup, best
// effort.
func (c *Coordinator) DeliverError(detail string) {
	c.mu.RLock()
	popup := c.popup
	c.mu.RUnlock()
	if popup == nil {
		return
	}
	if err := popup.Send(protocol.Envelope{Command: protocol.CmdError, Content: detail}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send error notice to popup")
	}
}

func (c *Coordinator) replayLastTranscription(popup Link) {
	if c.store == nil {
		return
	}
	text, err := c.store.LastTranscription(context.Background())
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read last transcription")
		return
	}
	if text == "" {
		return
	}
	if err := popup.Send(protocol.Envelope{
		Command:       protocol.CmdTranscriptionResult,
		Transcription: text,
	}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to replay last transcription")
	}
}

func errType(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveTab):
		return "no_active_tab"
	case errors.Is(err, ErrNoActiveConnection):
		return "no_active_connection"
	case errors.Is(err, pipeline.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, pipeline.ErrRunInFlight):
		return "run_in_flight"
	default:
		return "internal"
	}
}
