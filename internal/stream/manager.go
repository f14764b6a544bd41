package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhasspy/energy-vad/internal/audio"
	"github.com/rhasspy/energy-vad/internal/metrics"
	"github.com/rhasspy/energy-vad/internal/notify"
	"github.com/rhasspy/energy-vad/internal/vad"
)

// Session represents an active audio stream session with energy detection
type Session struct {
	ID           uint32
	Source       string
	SampleRate   int
	StartTime    time.Time
	LastActivity time.Time

	// Incoming audio with sequence reordering
	Buffer *audio.Buffer

	// Energy detector. Not internally synchronized; all access goes through
	// the session mutex.
	detector *vad.Detector

	// Speech segment tracking
	inSpeech       bool
	segmentStart   time.Time
	segmentChunks  uint64
	speechSegments uint64

	// Processing control
	processingCtx    context.Context
	processingCancel context.CancelFunc
	processingWG     sync.WaitGroup

	manager *Manager

	mu sync.RWMutex
}

// Manager manages all active stream sessions
type Manager struct {
	sessions map[uint32]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration

	detectorConfig    vad.DetectorConfig
	defaultSampleRate int

	// Webhook client, nil when event delivery is disabled
	notifyClient *notify.Client

	// Service metrics, nil in tests
	metrics *metrics.Metrics

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	DetectorConfig    vad.DetectorConfig // SampleRate is overridden per stream
	DefaultSampleRate int
	NotifyConfig      *notify.Config // nil disables event delivery
	Metrics           *metrics.Metrics
}

// NewManager creates a new stream manager
func NewManager(logger *slog.Logger, timeout time.Duration, config ManagerConfig) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var notifyClient *notify.Client
	if config.NotifyConfig != nil {
		var err error
		notifyClient, err = notify.NewClient(*config.NotifyConfig)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create event client: %w", err)
		}
	}

	mgr := &Manager{
		sessions:          make(map[uint32]*Session),
		logger:            logger,
		timeout:           timeout,
		ctx:               ctx,
		cancel:            cancel,
		cleanup:           make(chan struct{}),
		detectorConfig:    config.DetectorConfig,
		defaultSampleRate: config.DefaultSampleRate,
		notifyClient:      notifyClient,
		metrics:           config.Metrics,
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession creates a new stream session with its own energy detector
func (m *Manager) CreateSession(streamID uint32, source string, sampleRate int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.sessions[streamID]; exists {
		m.logger.Warn("Session already exists, updating metadata",
			slog.Uint64("stream_id", uint64(streamID)),
			slog.String("existing_source", existing.Source),
			slog.String("new_source", source),
		)

		existing.mu.Lock()
		existing.Source = source
		existing.LastActivity = time.Now()
		existing.mu.Unlock()

		return existing, nil
	}

	if sampleRate <= 0 {
		sampleRate = m.defaultSampleRate
	}

	detectorCfg := m.detectorConfig
	detectorCfg.SampleRate = sampleRate
	detector, err := vad.NewDetector(detectorCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector for stream %d: %w", streamID, err)
	}

	processingCtx, processingCancel := context.WithCancel(m.ctx)

	now := time.Now()
	session := &Session{
		ID:           streamID,
		Source:       source,
		SampleRate:   sampleRate,
		StartTime:    now,
		LastActivity: now,

		Buffer:   audio.NewBuffer(streamID, detector.BytesPerChunk()),
		detector: detector,

		processingCtx:    processingCtx,
		processingCancel: processingCancel,

		manager: m,
	}

	m.sessions[streamID] = session

	session.startProcessing()

	if m.metrics != nil {
		m.metrics.RecordStreamCreated()
		m.metrics.SetActiveStreams(len(m.sessions))
	}

	m.logger.Info("Created new stream session",
		slog.Uint64("stream_id", uint64(streamID)),
		slog.String("source", source),
		slog.Int("sample_rate", sampleRate),
		slog.Int("bytes_per_chunk", detector.BytesPerChunk()),
		slog.Int("calibration_chunks", detector.CalibrationChunks()),
	)

	return session, nil
}

// GetSession retrieves an existing stream session
func (m *Manager) GetSession(streamID uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[streamID]
	return session, exists
}

// UpdateActivity updates the last activity time for a stream
func (m *Manager) UpdateActivity(streamID uint32) {
	m.mu.RLock()
	session, exists := m.sessions[streamID]
	m.mu.RUnlock()

	if !exists {
		return
	}

	session.mu.Lock()
	session.LastActivity = time.Now()
	session.mu.Unlock()
}

// GetActiveSessionCount returns the number of currently active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all active sessions (for monitoring)
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// RemoveSession removes a stream session and stops its processing
func (m *Manager) RemoveSession(streamID uint32) bool {
	m.mu.Lock()
	session, exists := m.sessions[streamID]
	if exists {
		delete(m.sessions, streamID)
	}
	activeCount := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.stopProcessing()

	duration := time.Since(session.StartTime)
	stats := session.GetSessionInfo()

	if m.metrics != nil {
		m.metrics.RecordStreamDestroyed(duration.Seconds())
		m.metrics.SetActiveStreams(activeCount)
	}

	m.logger.Info("Stream session removed",
		slog.Uint64("stream_id", uint64(streamID)),
		slog.String("source", session.Source),
		slog.Duration("duration", duration),
		slog.Uint64("chunks_processed", stats.TotalChunks),
		slog.Uint64("speech_chunks", stats.SpeechChunks),
		slog.Uint64("speech_segments", stats.SpeechSegments),
	)

	return true
}

// Stop gracefully stops the stream manager
func (m *Manager) Stop() {
	m.logger.Info("Stopping stream manager...")

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	for _, session := range sessions {
		session.stopProcessing()
	}

	if m.notifyClient != nil {
		if err := m.notifyClient.Close(); err != nil {
			m.logger.Warn("Error closing event client", slog.String("error", err.Error()))
		}
	}

	// Cancel context to stop cleanup routine
	m.cancel()
	<-m.cleanup

	m.logger.Info("Stream manager stopped",
		slog.Int("remaining_sessions", m.GetActiveSessionCount()),
	)
}

// GetEventStats returns webhook client statistics, or zero stats when
// event delivery is disabled
func (m *Manager) GetEventStats() notify.ClientStats {
	if m.notifyClient == nil {
		return notify.ClientStats{}
	}
	return m.notifyClient.GetStats()
}

// startCleanupRoutine runs in a separate goroutine to clean up expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	m.logger.Info("Stream cleanup routine started",
		slog.Duration("timeout", m.timeout),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Stream cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been inactive for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expiredSessions := make([]uint32, 0)

	m.mu.RLock()
	for streamID, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if now.Sub(lastActivity) > m.timeout {
			expiredSessions = append(expiredSessions, streamID)
		}
	}
	m.mu.RUnlock()

	if len(expiredSessions) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expiredSessions)),
		)

		for _, streamID := range expiredSessions {
			m.RemoveSession(streamID)
		}
	}
}

// AddAudioData adds audio data to the session buffer
func (s *Session) AddAudioData(sequence uint32, data []byte) error {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()

	return s.Buffer.AddAudioData(sequence, data)
}

// ResetCalibration restarts threshold calibration for the session
func (s *Session) ResetCalibration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detector.ResetCalibration()

	s.manager.logger.Info("Calibration reset",
		slog.Uint64("stream_id", uint64(s.ID)),
		slog.String("source", s.Source),
	)
}

// startProcessing starts the chunk processing goroutine for the session
func (s *Session) startProcessing() {
	s.processingWG.Add(1)
	go func() {
		defer s.processingWG.Done()
		s.processingLoop()
	}()
}

// stopProcessing drains remaining complete chunks and stops the session
func (s *Session) stopProcessing() {
	s.processingCancel()
	s.processingWG.Wait()

	// Classify any complete chunks left in the buffer. A partial final chunk
	// stays unconsumed and is discarded with the buffer.
	s.processAvailableChunks()
	s.closeSpeechSegment()

	if pending := s.Buffer.PendingBytes(); pending > 0 {
		s.manager.logger.Debug("Discarding partial final chunk",
			slog.Uint64("stream_id", uint64(s.ID)),
			slog.Int("pending_bytes", pending),
		)
	}
}

// processingLoop drains buffered chunks through the detector
func (s *Session) processingLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	logger := s.manager.logger

	logger.Debug("Chunk processing loop started",
		slog.Uint64("stream_id", uint64(s.ID)),
	)

	for {
		select {
		case <-s.processingCtx.Done():
			logger.Debug("Chunk processing loop stopping",
				slog.Uint64("stream_id", uint64(s.ID)),
			)
			return
		case <-ticker.C:
			s.processAvailableChunks()
		}
	}
}

// processAvailableChunks classifies every complete chunk currently buffered
func (s *Session) processAvailableChunks() {
	for {
		chunk, ok := s.Buffer.PopChunk()
		if !ok {
			return
		}

		s.processChunk(chunk)
	}
}

// processChunk runs one chunk through the detector and tracks transitions
func (s *Session) processChunk(chunk []byte) {
	m := s.manager

	s.mu.Lock()
	wasCalibrated := s.detector.IsCalibrated()

	result, err := s.detector.ProcessChunk(chunk)
	if err != nil {
		s.mu.Unlock()
		if m.metrics != nil {
			m.metrics.RecordChunkSizeError()
		}
		m.logger.Error("Chunk classification failed",
			slog.Uint64("stream_id", uint64(s.ID)),
			slog.String("error", err.Error()),
		)
		return
	}

	threshold, _ := s.detector.Threshold()
	calibrationCompleted := !wasCalibrated && s.detector.IsCalibrated()
	s.mu.Unlock()

	if m.metrics != nil {
		if result == vad.Calibrating {
			m.metrics.RecordChunkCalibrating()
		} else {
			m.metrics.RecordChunkClassified(result == vad.Speech)
		}
	}

	if calibrationCompleted {
		if m.metrics != nil {
			m.metrics.RecordCalibrationCompleted(threshold)
		}

		m.logger.Info("Calibration completed",
			slog.Uint64("stream_id", uint64(s.ID)),
			slog.String("source", s.Source),
			slog.Float64("threshold", threshold),
		)

		s.sendEvent(&notify.Event{
			Type:      notify.EventCalibrated,
			Threshold: &threshold,
		})
	}

	switch result {
	case vad.Speech:
		s.handleSpeechChunk()
	case vad.Silence:
		s.closeSpeechSegment()
	}
}

// handleSpeechChunk extends the current speech segment, opening one if needed
func (s *Session) handleSpeechChunk() {
	s.mu.Lock()
	starting := !s.inSpeech
	if starting {
		s.inSpeech = true
		s.segmentStart = time.Now()
		s.segmentChunks = 0
	}
	s.segmentChunks++
	s.mu.Unlock()

	if starting {
		s.manager.logger.Info("Speech started",
			slog.Uint64("stream_id", uint64(s.ID)),
			slog.String("source", s.Source),
		)

		s.sendEvent(&notify.Event{Type: notify.EventSpeechStart})
	}
}

// closeSpeechSegment ends the current speech segment if one is open
func (s *Session) closeSpeechSegment() {
	s.mu.Lock()
	if !s.inSpeech {
		s.mu.Unlock()
		return
	}

	s.inSpeech = false
	s.speechSegments++
	chunks := s.segmentChunks
	durationMs := float64(chunks) * s.manager.detectorConfig.ChunkDurationMs
	s.mu.Unlock()

	if s.manager.metrics != nil {
		s.manager.metrics.RecordSpeechSegment(durationMs / 1000)
	}

	s.manager.logger.Info("Speech ended",
		slog.Uint64("stream_id", uint64(s.ID)),
		slog.String("source", s.Source),
		slog.Uint64("speech_chunks", chunks),
		slog.Float64("duration_ms", durationMs),
	)

	s.sendEvent(&notify.Event{
		Type:       notify.EventSpeechEnd,
		DurationMs: &durationMs,
	})
}

// sendEvent delivers an event asynchronously through the webhook client
func (s *Session) sendEvent(event *notify.Event) {
	m := s.manager
	if m.notifyClient == nil {
		return
	}

	s.mu.RLock()
	event.StreamID = s.ID
	event.Source = s.Source
	s.mu.RUnlock()

	event.Timestamp = time.Now()
	event.ChunkIndex = s.GetDetectorStats().TotalChunks

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		startTime := time.Now()
		err := m.notifyClient.Send(ctx, event)
		duration := time.Since(startTime)

		if err != nil {
			if m.metrics != nil {
				m.metrics.RecordEventFailed()
			}
			m.logger.Error("Event delivery failed",
				slog.Uint64("stream_id", uint64(event.StreamID)),
				slog.String("event_type", event.Type),
				slog.String("error", err.Error()),
			)
			return
		}

		if m.metrics != nil {
			m.metrics.RecordEventSent(duration.Seconds())
		}

		m.logger.Debug("Event delivered",
			slog.Uint64("stream_id", uint64(event.StreamID)),
			slog.String("event_type", event.Type),
			slog.Duration("delivery_time", duration),
		)
	}()
}

// GetDetectorStats returns current detector statistics for the session
func (s *Session) GetDetectorStats() vad.DetectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detector.GetStats()
}

// GetSessionInfo returns session information for monitoring and APIs
func (s *Session) GetSessionInfo() SessionInfo {
	bufferStats := s.Buffer.GetStats()

	s.mu.RLock()
	defer s.mu.RUnlock()

	detectorStats := s.detector.GetStats()

	return SessionInfo{
		StreamID:     s.ID,
		Source:       s.Source,
		SampleRate:   s.SampleRate,
		StartTime:    s.StartTime,
		LastActivity: s.LastActivity,
		Duration:     time.Since(s.StartTime),

		TotalPackets: bufferStats.TotalPackets,
		LostPackets:  bufferStats.LostPackets,
		LossRate:     bufferStats.LossRate,

		Calibrated:       detectorStats.Calibrated,
		Threshold:        detectorStats.Threshold,
		TotalChunks:      detectorStats.TotalChunks,
		SpeechChunks:     detectorStats.SpeechChunks,
		SilenceChunks:    detectorStats.SilenceChunks,
		SpeechPercentage: detectorStats.SpeechPercentage,

		InSpeech:       s.inSpeech,
		SpeechSegments: s.speechSegments,
	}
}

// SessionInfo represents session information for monitoring and APIs
type SessionInfo struct {
	StreamID     uint32        `json:"stream_id"`
	Source       string        `json:"source"`
	SampleRate   int           `json:"sample_rate"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`

	// Packet statistics
	TotalPackets uint32  `json:"total_packets"`
	LostPackets  uint32  `json:"lost_packets"`
	LossRate     float64 `json:"loss_rate"`

	// Detector statistics
	Calibrated       bool    `json:"calibrated"`
	Threshold        float64 `json:"threshold"`
	TotalChunks      uint64  `json:"total_chunks"`
	SpeechChunks     uint64  `json:"speech_chunks"`
	SilenceChunks    uint64  `json:"silence_chunks"`
	SpeechPercentage float64 `json:"speech_percentage"`

	// Speech segment tracking
	InSpeech       bool   `json:"in_speech"`
	SpeechSegments uint64 `json:"speech_segments"`
}
