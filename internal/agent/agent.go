// Package agent implements the per-tab content agent: it owns the audio
// capture device, obeys start/stop commands from the coordinator, and
// reports finished clips upstream.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/protocol"
)

// CaptureDevice is the external microphone capability. Start may fail
// (e.g. permission denied); Stop finalizes and returns the recorded clip.
type CaptureDevice interface {
	Start(ctx context.Context) error
	Stop() (protocol.AudioClip, error)
}

// Sender writes envelopes to the coordinator.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Agent holds at most one active capture session. States: idle →
// capturing (on successful start) → idle (on stop or capture error).
type Agent struct {
	device CaptureDevice
	sender Sender
	logger zerolog.Logger

	mu        sync.Mutex
	capturing bool
}

// New creates an agent in the idle state.
func New(device CaptureDevice, sender Sender, logger zerolog.Logger) *Agent {
	return &Agent{device: device, sender: sender, logger: logger}
}

// Capturing reports whether a capture session is active.
func (a *Agent) Capturing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capturing
}

// HandleCommand processes one envelope from the coordinator. Unknown
// commands are ignored.
func (a *Agent) HandleCommand(ctx context.Context, env protocol.Envelope) {
	switch env.Command {
	case protocol.CmdStartRecording:
		a.startCapture(ctx)
	case protocol.CmdStopRecording:
		a.stopCapture()
	default:
		a.logger.Debug().Str("command", string(env.Command)).Msg("Ignoring command")
	}
}

func (a *Agent) startCapture(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capturing {
		// No overlapping captures.
		a.logger.Warn().Msg("Already recording, ignoring start command")
		return
	}

	if err := a.device.Start(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Error accessing microphone")
		a.reportError(fmt.Sprintf("Microphone access denied: %v", err))
		return
	}
	a.capturing = true
	a.logger.Info().Msg("Recording started")
}

func (a *Agent) stopCapture() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.capturing {
		return
	}
	a.capturing = false

	clip, err := a.device.Stop()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to finalize recording")
		a.reportError(fmt.Sprintf("Recording failed: %v", err))
		return
	}
	a.logger.Info().Int("clip_bytes", len(clip.Bytes)).Str("mime", clip.MIMEType).Msg("Recording stopped")

	if err := a.sender.Send(protocol.Envelope{
		Command: protocol.CmdAudioData,
		Data:    protocol.EncodeDataURL(clip),
	}); err != nil {
		a.logger.Error().Err(err).Msg("Failed to send audio data")
	}
}

// NotifyFocused tells the coordinator this agent's tab gained focus.
func (a *Agent) NotifyFocused() {
	if err := a.sender.Send(protocol.Envelope{Command: protocol.CmdTabActivated}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to report tab focus")
	}
}

func (a *Agent) reportError(detail string) {
	if err := a.sender.Send(protocol.Envelope{Command: protocol.CmdError, Content: detail}); err != nil {
		a.logger.Error().Err(err).Msg("Failed to report error upstream")
	}
}
