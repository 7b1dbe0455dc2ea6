// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// SummarizerCallDuration tracks per-chunk summarizer latency.
	SummarizerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summarizer_call_duration_seconds",
			Help:    "Duration of a single chunk summarization call",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// AnalysisChunks tracks how many chunks each analysis needed.
	AnalysisChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_chunks",
			Help:    "Number of chunks per document analysis",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	// DocumentsUploaded tracks document uploads by outcome.
	DocumentsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_uploaded_total",
			Help: "Total documents uploaded",
		},
		[]string{"status"},
	)

	// SearchRequests tracks search actions by outcome.
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total search actions",
		},
		[]string{"status"},
	)

	// SearchCacheHits tracks web search cache lookups.
	SearchCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_lookups_total",
			Help: "Web search cache lookups",
		},
		[]string{"result"},
	)

	// VoiceSessionsActive tracks open voice sessions.
	VoiceSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Number of open voice sessions",
		},
	)

	// VoiceMessagesTotal tracks conversation messages received from the voice transport.
	VoiceMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_messages_total",
			Help: "Conversation messages received",
		},
		[]string{"role"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// TranscriptPublishes tracks transcript messages published to JetStream.
	TranscriptPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcript_publishes_total",
			Help: "Transcript messages published",
		},
		[]string{"status"},
	)

	// WorkspacesActive tracks live per-user workspaces.
	WorkspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workspaces_active",
			Help: "Number of live user workspaces",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSummarizerCall records a single summarizer call.
func RecordSummarizerCall(provider, status string, duration float64) {
	SummarizerCallDuration.WithLabelValues(provider, status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
