package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// AudioClip is an opaque encoded audio recording plus its MIME type. A clip
// is produced by a content agent, consumed once by the transcription
// pipeline, then discarded.
type AudioClip struct {
	MIMEType string
	Bytes    []byte
}

const dataURLPrefix = "data:"

// EncodeDataURL renders a clip as a self-describing data URL:
// "data:<mime>;base64,<payload>".
func EncodeDataURL(clip AudioClip) string {
	return dataURLPrefix + clip.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(clip.Bytes)
}

// DecodeDataURL parses a data URL back into a clip. The byte sequence and
// MIME type round-trip exactly.
func DecodeDataURL(dataURL string) (AudioClip, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return AudioClip{}, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(dataURL[len(dataURLPrefix):], ",")
	if !ok {
		return AudioClip{}, fmt.Errorf("data URL missing payload separator")
	}
	mime, encoding, ok := strings.Cut(meta, ";")
	if !ok || encoding != "base64" {
		return AudioClip{}, fmt.Errorf("unsupported data URL encoding %q", meta)
	}
	if mime == "" {
		return AudioClip{}, fmt.Errorf("data URL missing MIME type")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return AudioClip{}, fmt.Errorf("decode data URL payload: %w", err)
	}
	return AudioClip{MIMEType: mime, Bytes: raw}, nil
}
