package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voicescribe/voice-relay/internal/config"
	"github.com/voicescribe/voice-relay/internal/observability"
	"github.com/voicescribe/voice-relay/internal/pipeline"
	"github.com/voicescribe/voice-relay/internal/postprocess"
	"github.com/voicescribe/voice-relay/internal/relay"
	"github.com/voicescribe/voice-relay/internal/settings"
	"github.com/voicescribe/voice-relay/internal/stt"
	"github.com/voicescribe/voice-relay/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("openai_base_url", cfg.OpenAIBaseURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Relay Service starting")

	// Open the settings store
	store, err := settings.Open(context.Background(), cfg.SettingsDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open settings store")
	}
	defer store.Close()

	// Wire the transcription pipeline and the coordinator
	runner := pipeline.New(
		store,
		stt.NewOpenAIClient(cfg),
		postprocess.NewOpenAIClient(cfg),
		time.Duration(cfg.RequestTimeout)*time.Second,
		logger,
	)
	coordinator := relay.NewCoordinator(runner, store, logger)

	// Create HTTP server
	mux := http.NewServeMux()

	// Channel endpoints for the popup and the content agents
	mux.HandleFunc("/channels/popup", transport.PopupHandler(coordinator, logger))
	mux.HandleFunc("/channels/content", transport.ContentHandler(coordinator, logger))

	// Settings surface for the popup UI
	mux.HandleFunc("/settings", settings.Handler(store, logger))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"settings_store": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"api_key": func(ctx context.Context) (bool, error) {
			snap, err := store.Snapshot(ctx)
			if err != nil {
				return false, err
			}
			if snap.APIKey == "" {
				return false, fmt.Errorf("no API key configured")
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. No read/write timeouts: the
	// channel endpoints hold long-lived WebSocket connections.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/channels/popup", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
