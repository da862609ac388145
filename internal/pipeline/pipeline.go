// Package pipeline runs the capture-to-delivery sequence for one audio
// clip: settings snapshot, transcription, optional post-processing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/voicescribe/voice-relay/internal/observability"
	"github.com/voicescribe/voice-relay/internal/postprocess"
	"github.com/voicescribe/voice-relay/internal/protocol"
	"github.com/voicescribe/voice-relay/internal/settings"
	"github.com/voicescribe/voice-relay/internal/stt"
)

var (
	// ErrMissingCredential means no API key is configured; the run aborts
	// before any request is issued.
	ErrMissingCredential = errors.New("no API key configured")

	// ErrRunInFlight means a run was rejected because another one has not
	// finished yet. Runs are serialized, never interleaved.
	ErrRunInFlight = errors.New("a pipeline run is already in flight")

	// ErrTranscriptionFailed marks a failure in the transcription stage.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrPostProcessingFailed marks a failure in the post-processing
	// stage. The raw transcript is not delivered as a fallback.
	ErrPostProcessingFailed = errors.New("post-processing failed")

	// ErrRemoteTimeout marks a remote call that exceeded the per-call
	// timeout.
	ErrRemoteTimeout = errors.New("remote call timed out")
)

// SettingsSource supplies a fresh settings snapshot per run.
type SettingsSource interface {
	Snapshot(ctx context.Context) (settings.Snapshot, error)
}

// Pipeline executes transcription runs. Stages within a run are strictly
// sequential; a second clip arriving mid-run is rejected with
// ErrRunInFlight.
type Pipeline struct {
	settings    SettingsSource
	transcriber stt.Transcriber
	post        postprocess.PostProcessor
	timeout     time.Duration
	logger      zerolog.Logger

	mu   sync.Mutex
	busy bool
}

// New creates a pipeline. timeout bounds each remote call individually.
func New(src SettingsSource, transcriber stt.Transcriber, post postprocess.PostProcessor, timeout time.Duration, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		settings:    src,
		transcriber: transcriber,
		post:        post,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run transcribes one clip and returns the final text. On any stage
// failure the run terminates and nothing of it survives; the clip is
// consumed either way.
func (p *Pipeline) Run(ctx context.Context, clip protocol.AudioClip) (string, error) {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return "", ErrRunInFlight
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	runID := uuid.New().String()
	logger := p.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	text, err := p.run(ctx, logger, clip)
	if err != nil {
		observability.RecordPipelineRun("error", time.Since(start))
		return "", err
	}
	observability.RecordPipelineRun("success", time.Since(start))
	logger.Info().Dur("duration", time.Since(start)).Msg("Pipeline run completed")
	return text, nil
}

func (p *Pipeline) run(ctx context.Context, logger zerolog.Logger, clip protocol.AudioClip) (string, error) {
	// Stage 1: settings snapshot, fetched fresh, never cached.
	snap, err := p.settings.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("read settings: %w", err)
	}
	if snap.APIKey == "" {
		logger.Error().Msg("No API key configured, aborting run")
		return "", ErrMissingCredential
	}

	// Stage 2: transcription.
	stageStart := time.Now()
	text, err := p.callTranscriber(ctx, snap.APIKey, clip)
	observability.RecordStage("transcription", time.Since(stageStart))
	if err != nil {
		logger.Error().Err(err).Msg("Transcription stage failed")
		return "", err
	}
	logger.Info().Int("clip_bytes", len(clip.Bytes)).Str("mime", clip.MIMEType).Msg("Transcription stage completed")

	// Stage 3: optional post-processing. On failure the raw transcript is
	// discarded, not delivered.
	if snap.PostProcessing {
		stageStart = time.Now()
		text, err = p.callPostProcessor(ctx, snap.APIKey, text)
		observability.RecordStage("post_processing", time.Since(stageStart))
		if err != nil {
			logger.Error().Err(err).Msg("Post-processing stage failed")
			return "", err
		}
		logger.Info().Msg("Post-processing stage completed")
	}

	return text, nil
}

func (p *Pipeline) callTranscriber(ctx context.Context, apiKey string, clip protocol.AudioClip) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.transcriber.Transcribe(callCtx, apiKey, clip)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, ErrRemoteTimeout)
		}
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	return text, nil
}

func (p *Pipeline) callPostProcessor(ctx context.Context, apiKey, transcript string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.post.Process(callCtx, apiKey, transcript)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrPostProcessingFailed, ErrRemoteTimeout)
		}
		return "", fmt.Errorf("%w: %w", ErrPostProcessingFailed, err)
	}
	return text, nil
}
