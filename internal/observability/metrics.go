package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Link metrics
	popupConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_relay_popup_connected",
		Help: "Whether a popup link is currently connected (0 or 1)",
	})

	contentLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_relay_content_links",
		Help: "Number of connected content links",
	})

	linksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_relay_links_total",
		Help: "Total number of accepted link connections",
	}, []string{"channel"})

	// Routing metrics
	commandsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_relay_commands_routed_total",
		Help: "Commands routed through the coordinator",
	}, []string{"command"})

	// Pipeline metrics
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_relay_pipeline_runs_total",
		Help: "Total number of transcription pipeline runs",
	}, []string{"status"})

	pipelineLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_relay_pipeline_duration_seconds",
		Help:    "End-to-end duration of a pipeline run in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_relay_stage_duration_seconds",
		Help:    "Duration of individual pipeline stages in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_relay_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Audio metrics
	audioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_relay_audio_bytes_total",
		Help: "Total audio clip bytes accepted for transcription",
	})
)

// RecordLinkConnected records an accepted link on the given channel.
func RecordLinkConnected(channel string, popup bool) {
	linksTotal.WithLabelValues(channel).Inc()
	if popup {
		popupConnected.Set(1)
	} else {
		contentLinks.Inc()
	}
}

// RecordLinkDisconnected records a link going away.
func RecordLinkDisconnected(popup bool) {
	if popup {
		popupConnected.Set(0)
	} else {
		contentLinks.Dec()
	}
}

// RecordCommandRouted counts a command passing through the coordinator.
func RecordCommandRouted(command string) {
	commandsRouted.WithLabelValues(command).Inc()
}

// RecordPipelineRun records the outcome and duration of one pipeline run.
func RecordPipelineRun(status string, duration time.Duration) {
	pipelineRuns.WithLabelValues(status).Inc()
	pipelineLatency.Observe(duration.Seconds())
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records the size of an accepted audio clip.
func RecordAudioBytes(n int) {
	audioBytes.Add(float64(n))
}
