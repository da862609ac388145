// Package protocol defines the message vocabulary exchanged between the
// popup, the content agents, and the coordinator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Channel names. Each link carries exactly one of these, fixed at connect
// time.
const (
	PopupChannel   = "popup-background-connection"
	ContentChannel = "content-background-connection"
)

// Command identifies the kind of an envelope. The set is closed; anything
// else on the wire is rejected at decode time.
type Command string

const (
	CmdStartRecording      Command = "start-recording"
	CmdStopRecording       Command = "stop-recording"
	CmdAudioData           Command = "audio-data"
	CmdTranscriptionResult Command = "transcription-result"
	CmdTabActivated        Command = "tab-activated"
	CmdError               Command = "error"
)

// Accepted returns the acknowledgment variant for a command or channel
// name, e.g. "start-recording-accepted".
func Accepted(name string) Command {
	return Command(name + "-accepted")
}

// Envelope is the immutable message unit exchanged over a link. Exactly one
// payload field is populated, depending on Command.
type Envelope struct {
	Command Command `json:"command"`
	// Data carries an audio clip encoded as a data URL (audio-data).
	Data string `json:"data,omitempty"`
	// Transcription carries the final text (transcription-result).
	Transcription string `json:"transcription,omitempty"`
	// Content carries human-readable text (acks and errors).
	Content string `json:"content,omitempty"`
}

var known = map[Command]bool{
	CmdStartRecording:      true,
	CmdStopRecording:       true,
	CmdAudioData:           true,
	CmdTranscriptionResult: true,
	CmdTabActivated:        true,
	CmdError:               true,

	Accepted(PopupChannel):              true,
	Accepted(ContentChannel):            true,
	Accepted(string(CmdStartRecording)): true,
	Accepted(string(CmdStopRecording)):  true,
}

// Decode parses an envelope from its wire form.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if !known[env.Command] {
		return Envelope{}, fmt.Errorf("unknown command %q", env.Command)
	}
	return env, nil
}

// Encode renders an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
