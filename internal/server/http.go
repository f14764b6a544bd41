package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhasspy/energy-vad/internal/audio"
	"github.com/rhasspy/energy-vad/internal/config"
	"github.com/rhasspy/energy-vad/internal/metrics"
	"github.com/rhasspy/energy-vad/internal/stream"
	"github.com/rhasspy/energy-vad/internal/vad"
)

// maxClassifyUploadBytes limits /classify uploads to 32 MiB of WAV data
const maxClassifyUploadBytes = 32 << 20

// HTTPServer provides HTTP API endpoints for monitoring and management
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	streamMgr *stream.Manager
	udpServer *UDPServer
	metrics   *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, streamMgr *stream.Manager, udpServer *UDPServer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		streamMgr: streamMgr,
		udpServer: udpServer,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Streams monitoring and management endpoints
	mux.HandleFunc("/streams", h.withMetrics("/streams", h.handleStreams))
	mux.HandleFunc("/streams/", h.withMetrics("/streams/{id}", h.handleStreamDetail))

	// Offline classification of an uploaded WAV file
	mux.HandleFunc("/classify", h.withMetrics("/classify", h.handleClassify))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoints
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/events", h.withMetrics("/stats/events", h.handleEventStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	udpStats := h.udpServer.GetStatistics()
	eventStats := h.streamMgr.GetEventStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "energy-vad-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":            "running",
				"packets_received":  udpStats.PacketsReceived,
				"packets_processed": udpStats.PacketsProcessed,
				"parse_errors":      udpStats.ParseErrors,
				"queue_size":        udpStats.QueueSize,
			},
			"stream_manager": map[string]interface{}{
				"status":         "running",
				"active_streams": udpStats.ActiveStreams,
			},
			"events": map[string]interface{}{
				"enabled":      h.config.Events.Enabled,
				"total_events": eventStats.TotalEvents,
				"success_rate": eventStats.SuccessRate,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.streamMgr.GetAllSessions()
	sessionInfos := make([]stream.SessionInfo, 0, len(sessions))

	for _, session := range sessions {
		sessionInfos = append(sessionInfos, session.GetSessionInfo())
	}

	response := map[string]interface{}{
		"total_streams": len(sessionInfos),
		"timestamp":     time.Now().UTC(),
		"streams":       sessionInfos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStreamDetail implements the /streams/{stream_id} endpoints:
// GET /streams/{id} and POST /streams/{id}/reset_calibration
func (h *HTTPServer) handleStreamDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/streams/")
	if rest == "" {
		http.Error(w, "Stream ID required", http.StatusBadRequest)
		return
	}

	streamIDStr, action, _ := strings.Cut(rest, "/")
	streamID, err := strconv.ParseUint(streamIDStr, 10, 32)
	if err != nil {
		http.Error(w, "Invalid stream ID", http.StatusBadRequest)
		return
	}

	session, exists := h.streamMgr.GetSession(uint32(streamID))
	if !exists {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session.GetSessionInfo())

	case "reset_calibration":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		session.ResetCalibration()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"stream_id": streamID,
			"status":    "calibration_reset",
			"timestamp": time.Now().UTC(),
		})

	default:
		http.NotFound(w, r)
	}
}

// classifyResponse is the reply body of the /classify endpoint
type classifyResponse struct {
	SampleRate        int      `json:"sample_rate"`
	BytesPerChunk     int      `json:"bytes_per_chunk"`
	ChunkDurationMs   float64  `json:"chunk_duration_ms"`
	TotalChunks       int      `json:"total_chunks"`
	DroppedBytes      int      `json:"dropped_bytes"`
	Threshold         float64  `json:"threshold"`
	CalibrationChunks int      `json:"calibration_chunks"`
	Results           []string `json:"results"`
}

// handleClassify implements POST /classify: runs an uploaded WAV file
// through a fresh detector and returns the per-chunk classifications
func (h *HTTPServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxClassifyUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "WAV file upload required in 'file' field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	wavData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	pcm, sampleRate, err := audio.DecodeWAV(wavData)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid WAV file: %v", err), http.StatusBadRequest)
		return
	}

	detectorCfg := vad.DetectorConfig{
		SampleRate:            sampleRate,
		ChunkDurationMs:       h.config.Audio.ChunkDurationMs,
		CalibrationDurationMs: h.config.Detector.CalibrationDurationMs,
		CalibrationMultiplier: h.config.Detector.CalibrationMultiplier,
		FixedThreshold:        h.config.Detector.FixedThreshold,
	}

	// Form fields override the configured detector parameters
	if v := r.FormValue("calibration_duration_ms"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			detectorCfg.CalibrationDurationMs = f
		}
	}
	if v := r.FormValue("calibration_multiplier"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			detectorCfg.CalibrationMultiplier = f
		}
	}
	if v := r.FormValue("fixed_threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			detectorCfg.FixedThreshold = &f
		}
	}

	detector, err := vad.NewDetector(detectorCfg)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid detector parameters: %v", err), http.StatusBadRequest)
		return
	}

	chunker, err := audio.NewChunker(bytes.NewReader(pcm), detector.BytesPerChunk())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to frame audio: %v", err), http.StatusInternalServerError)
		return
	}

	results := make([]string, 0, len(pcm)/detector.BytesPerChunk())
	for {
		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to frame audio: %v", err), http.StatusInternalServerError)
			return
		}

		result, err := detector.ProcessChunk(chunk)
		if err != nil {
			http.Error(w, fmt.Sprintf("Classification failed: %v", err), http.StatusInternalServerError)
			return
		}
		results = append(results, result.String())
	}

	threshold, _ := detector.Threshold()

	response := classifyResponse{
		SampleRate:        sampleRate,
		BytesPerChunk:     detector.BytesPerChunk(),
		ChunkDurationMs:   detectorCfg.ChunkDurationMs,
		TotalChunks:       len(results),
		DroppedBytes:      chunker.DroppedBytes(),
		Threshold:         threshold,
		CalibrationChunks: detector.CalibrationChunks(),
		Results:           results,
	}

	h.logger.Info("Classified uploaded file",
		slog.Int("sample_rate", sampleRate),
		slog.Int("total_chunks", len(results)),
		slog.Float64("threshold", threshold),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (auth token omitted)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":               h.config.Server.UDPPort,
			"bind_address":           h.config.Server.BindAddress,
			"buffer_size":            h.config.Server.BufferSize,
			"max_concurrent_streams": h.config.Server.MaxConcurrentStreams,
		},
		"audio": map[string]interface{}{
			"sample_rate":       h.config.Audio.SampleRate,
			"channels":          h.config.Audio.Channels,
			"bit_depth":         h.config.Audio.BitDepth,
			"chunk_duration_ms": h.config.Audio.ChunkDurationMs,
			"stream_timeout":    h.config.Audio.StreamTimeout,
		},
		"detector": map[string]interface{}{
			"calibration_duration_ms": h.config.Detector.CalibrationDurationMs,
			"calibration_multiplier":  h.config.Detector.CalibrationMultiplier,
			"fixed_threshold":         h.config.Detector.FixedThreshold,
		},
		"events": map[string]interface{}{
			"enabled":        h.config.Events.Enabled,
			"endpoint":       h.config.Events.Endpoint,
			"timeout":        h.config.Events.Timeout,
			"max_retries":    h.config.Events.MaxRetries,
			"max_concurrent": h.config.Events.MaxConcurrent,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()
	eventStats := h.streamMgr.GetEventStats()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"udp": map[string]interface{}{
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"active_streams":    udpStats.ActiveStreams,
			"queue_size":        udpStats.QueueSize,
			"queue_capacity":    udpStats.QueueCapacity,
		},
		"events": eventStats,
		"streams": map[string]interface{}{
			"active_count": h.streamMgr.GetActiveSessionCount(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleEventStats implements the /stats/events endpoint
func (h *HTTPServer) handleEventStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.streamMgr.GetEventStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Energy VAD Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":             "API documentation",
			"GET /health":       "Service health check",
			"GET /streams":      "List all active streams",
			"GET /streams/{id}": "Get detailed stream information",
			"POST /streams/{id}/reset_calibration": "Restart threshold calibration",
			"POST /classify":    "Classify an uploaded WAV file",
			"GET /config":       "Get service configuration",
			"GET /stats":        "Get service statistics",
			"GET /stats/events": "Get event delivery statistics",
			"GET /metrics":      "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
