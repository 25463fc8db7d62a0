// Package metrics exposes Prometheus metrics for the relay streamer process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio relay streamer.
// A nil *Metrics is valid: every Record helper is a no-op on a nil receiver,
// so library users without a metrics pipeline can pass nil.
type Metrics struct {
	// Chunk flow metrics
	ChunksSent      prometheus.Counter
	ChunksBuffered  prometheus.Counter
	ChunksDropped   prometheus.Counter
	ChunksFlushed   prometheus.Counter
	BytesSent       prometheus.Counter
	BufferOccupancy prometheus.Gauge

	// Connection metrics
	ConnectionState       prometheus.Gauge
	Reconnects            prometheus.Counter
	HealthCheckReconnects prometheus.Counter

	// Control channel metrics
	ControlMessagesSent     prometheus.Counter
	ControlMessagesReceived prometheus.Counter
	ControlDecodeErrors     prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_sent_total",
			Help: "Total number of audio chunks sent live over the relay connection",
		}),
		ChunksBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_buffered_total",
			Help: "Total number of audio chunks diverted to the outage buffer",
		}),
		ChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_dropped_total",
			Help: "Total number of audio chunks lost to buffer overflow",
		}),
		ChunksFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_chunks_flushed_total",
			Help: "Total number of buffered chunks delivered after reconnection",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_bytes_sent_total",
			Help: "Total audio payload bytes delivered over the relay connection",
		}),
		BufferOccupancy: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_buffer_occupancy",
			Help: "Current number of chunks held in the outage buffer",
		}),

		ConnectionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connection_state",
			Help: "Current relay connection state (0=idle 1=connecting 2=stabilizing 3=connected 4=reconnecting 5=closed)",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_reconnects_total",
			Help: "Total number of reconnection attempts",
		}),
		HealthCheckReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_health_check_reconnects_total",
			Help: "Total number of reconnects forced by health-check timeouts",
		}),

		ControlMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_control_messages_sent_total",
			Help: "Total number of control messages written to the relay",
		}),
		ControlMessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_control_messages_received_total",
			Help: "Total number of control messages received from the relay",
		}),
		ControlDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_control_decode_errors_total",
			Help: "Total number of inbound control messages that failed to decode",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of active streaming sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_session_duration_seconds",
			Help:    "Duration of completed streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkSent records one chunk delivered live, with its payload size.
func (m *Metrics) RecordChunkSent(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksSent.Inc()
	m.BytesSent.Add(float64(sizeBytes))
}

// RecordChunkBuffered increments the buffered chunks counter.
func (m *Metrics) RecordChunkBuffered() {
	if m == nil {
		return
	}
	m.ChunksBuffered.Inc()
}

// RecordChunkDropped increments the dropped chunks counter.
func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

// RecordChunkFlushed records one buffered chunk delivered after reconnect.
func (m *Metrics) RecordChunkFlushed(sizeBytes int) {
	if m == nil {
		return
	}
	m.ChunksFlushed.Inc()
	m.BytesSent.Add(float64(sizeBytes))
}

// SetBufferOccupancy sets the current buffer occupancy gauge.
func (m *Metrics) SetBufferOccupancy(n int) {
	if m == nil {
		return
	}
	m.BufferOccupancy.Set(float64(n))
}

// SetConnectionState sets the connection state gauge.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(state))
}

// RecordReconnect increments the reconnect attempts counter.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// RecordHealthCheckReconnect increments the health-check reconnects counter.
func (m *Metrics) RecordHealthCheckReconnect() {
	if m == nil {
		return
	}
	m.HealthCheckReconnects.Inc()
}

// RecordControlSent increments the outbound control messages counter.
func (m *Metrics) RecordControlSent() {
	if m == nil {
		return
	}
	m.ControlMessagesSent.Inc()
}

// RecordControlReceived increments the inbound control messages counter.
func (m *Metrics) RecordControlReceived() {
	if m == nil {
		return
	}
	m.ControlMessagesReceived.Inc()
}

// RecordControlDecodeError increments the decode errors counter.
func (m *Metrics) RecordControlDecodeError() {
	if m == nil {
		return
	}
	m.ControlDecodeErrors.Inc()
}

// RecordSessionStarted increments the active sessions gauge.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// RecordSessionEnded decrements the active sessions gauge and observes the
// session duration.
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP API request with its duration.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP API error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
