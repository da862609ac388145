package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice relay service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Remote API configuration. The API key itself is not configured here:
	// it lives in the settings store and is written by the popup.
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	// Transcription request parameters
	TranscriptionModel       string  `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`
	TranscriptionLanguage    string  `envconfig:"TRANSCRIPTION_LANGUAGE" default:"en"`
	TranscriptionTemperature float32 `envconfig:"TRANSCRIPTION_TEMPERATURE" default:"0.2"`

	// Post-processing request parameters
	PostProcessingModel string `envconfig:"POST_PROCESSING_MODEL" default:"gpt-4o-mini"`

	// Timeout applied to each remote call, in seconds. A hung call fails
	// the pipeline run instead of retaining it forever.
	RequestTimeout int `envconfig:"REQUEST_TIMEOUT" default:"30"`

	// Settings store location
	SettingsDBPath string `envconfig:"SETTINGS_DB_PATH" default:"voice-relay.db"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %d", cfg.RequestTimeout)
	}
	if cfg.OpenAIBaseURL == "" {
		return nil, fmt.Errorf("OPENAI_BASE_URL must not be empty")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
