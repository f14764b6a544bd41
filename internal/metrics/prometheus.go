package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the energy VAD service
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Stream metrics
	ActiveStreams    prometheus.Gauge
	StreamsCreated   prometheus.Counter
	StreamsDestroyed prometheus.Counter
	StreamDuration   prometheus.Histogram

	// Chunk classification metrics
	ChunksProcessed   prometheus.Counter
	SpeechChunks      prometheus.Counter
	SilenceChunks     prometheus.Counter
	CalibratingChunks prometheus.Counter
	ChunkSizeErrors   prometheus.Counter

	// Calibration metrics
	CalibrationsCompleted prometheus.Counter
	CalibrationThreshold  prometheus.Histogram

	// Speech event metrics
	SpeechSegments        prometheus.Counter
	SpeechSegmentDuration prometheus.Histogram

	// Event delivery metrics
	EventsSent            prometheus.Counter
	EventsFailed          prometheus.Counter
	EventRetries          prometheus.Counter
	EventDeliveryDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// UDP packet metrics
		PacketsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vad_packet_queue_size",
			Help: "Current number of packets in processing queue",
		}),

		// Stream metrics
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vad_active_streams",
			Help: "Current number of active audio streams",
		}),
		StreamsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_streams_created_total",
			Help: "Total number of streams created",
		}),
		StreamsDestroyed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_streams_destroyed_total",
			Help: "Total number of streams destroyed",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_stream_duration_seconds",
			Help:    "Duration of audio streams in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Chunk classification metrics
		ChunksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_chunks_processed_total",
			Help: "Total number of audio chunks processed",
		}),
		SpeechChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_speech_chunks_total",
			Help: "Total number of chunks classified as speech",
		}),
		SilenceChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_silence_chunks_total",
			Help: "Total number of chunks classified as silence",
		}),
		CalibratingChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_calibrating_chunks_total",
			Help: "Total number of chunks consumed for calibration",
		}),
		ChunkSizeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_chunk_size_errors_total",
			Help: "Total number of chunks rejected for invalid size",
		}),

		// Calibration metrics
		CalibrationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_calibrations_completed_total",
			Help: "Total number of completed calibration cycles",
		}),
		CalibrationThreshold: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_calibration_threshold",
			Help:    "Energy thresholds derived by calibration",
			Buckets: prometheus.ExponentialBuckets(1, 10, 9), // 1 to 10^8 energy units
		}),

		// Speech event metrics
		SpeechSegments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_speech_segments_total",
			Help: "Total number of detected speech segments",
		}),
		SpeechSegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_speech_segment_duration_seconds",
			Help:    "Duration of detected speech segments",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.5 minutes
		}),

		// Event delivery metrics
		EventsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_events_sent_total",
			Help: "Total number of speech events delivered",
		}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_events_failed_total",
			Help: "Total number of speech events that failed delivery",
		}),
		EventRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vad_event_retries_total",
			Help: "Total number of speech event delivery retries",
		}),
		EventDeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vad_event_delivery_duration_seconds",
			Help:    "Duration of speech event deliveries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vad_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vad_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vad_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

// SetActiveStreams sets the current number of active streams
func (m *Metrics) SetActiveStreams(count int) {
	m.ActiveStreams.Set(float64(count))
}

// RecordStreamCreated increments the streams created counter
func (m *Metrics) RecordStreamCreated() {
	m.StreamsCreated.Inc()
}

// RecordStreamDestroyed increments the streams destroyed counter and records duration
func (m *Metrics) RecordStreamDestroyed(durationSeconds float64) {
	m.StreamsDestroyed.Inc()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordChunkCalibrating records a chunk consumed for calibration
func (m *Metrics) RecordChunkCalibrating() {
	m.ChunksProcessed.Inc()
	m.CalibratingChunks.Inc()
}

// RecordChunkClassified records a classified chunk
func (m *Metrics) RecordChunkClassified(speech bool) {
	m.ChunksProcessed.Inc()
	if speech {
		m.SpeechChunks.Inc()
	} else {
		m.SilenceChunks.Inc()
	}
}

// RecordChunkSizeError increments the chunk size errors counter
func (m *Metrics) RecordChunkSizeError() {
	m.ChunkSizeErrors.Inc()
}

// RecordCalibrationCompleted records a completed calibration and its threshold
func (m *Metrics) RecordCalibrationCompleted(threshold float64) {
	m.CalibrationsCompleted.Inc()
	m.CalibrationThreshold.Observe(threshold)
}

// RecordSpeechSegment records a finished speech segment
func (m *Metrics) RecordSpeechSegment(durationSeconds float64) {
	m.SpeechSegments.Inc()
	m.SpeechSegmentDuration.Observe(durationSeconds)
}

// RecordEventSent records a delivered speech event
func (m *Metrics) RecordEventSent(durationSeconds float64) {
	m.EventsSent.Inc()
	m.EventDeliveryDuration.Observe(durationSeconds)
}

// RecordEventFailed increments the failed events counter
func (m *Metrics) RecordEventFailed() {
	m.EventsFailed.Inc()
}

// RecordEventRetry increments the event retries counter
func (m *Metrics) RecordEventRetry() {
	m.EventRetries.Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
