package stream

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rhasspy/energy-vad/internal/vad"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testManagerConfig() ManagerConfig {
	return ManagerConfig{
		DetectorConfig: vad.DetectorConfig{
			ChunkDurationMs:       30,
			CalibrationDurationMs: 90, // 3 chunks at 16 kHz / 30 ms
			CalibrationMultiplier: 1.5,
		},
		DefaultSampleRate: 16000,
	}
}

// makeChunk builds one 30ms chunk at 16 kHz with constant sample amplitude
func makeChunk(amplitude int16) []byte {
	chunk := make([]byte, 480*2)
	for i := 0; i < 480; i++ {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(amplitude))
	}
	return chunk
}

func TestCreateAndRemoveSession(t *testing.T) {
	manager, err := NewManager(testLogger(), time.Minute, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	session, err := manager.CreateSession(1, "microphone-1", 16000)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.ID != 1 || session.Source != "microphone-1" {
		t.Errorf("Unexpected session identity: %d / %q", session.ID, session.Source)
	}

	if manager.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", manager.GetActiveSessionCount())
	}

	got, exists := manager.GetSession(1)
	if !exists || got != session {
		t.Error("GetSession did not return the created session")
	}

	if !manager.RemoveSession(1) {
		t.Error("RemoveSession returned false for existing session")
	}
	if manager.RemoveSession(1) {
		t.Error("RemoveSession returned true for removed session")
	}
	if manager.GetActiveSessionCount() != 0 {
		t.Errorf("Expected 0 active sessions, got %d", manager.GetActiveSessionCount())
	}
}

func TestCreateSessionDuplicateUpdatesMetadata(t *testing.T) {
	manager, err := NewManager(testLogger(), time.Minute, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	first, err := manager.CreateSession(1, "source-a", 16000)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	second, err := manager.CreateSession(1, "source-b", 16000)
	if err != nil {
		t.Fatalf("Duplicate CreateSession failed: %v", err)
	}

	if first != second {
		t.Error("Duplicate CreateSession must return the existing session")
	}
	if second.Source != "source-b" {
		t.Errorf("Expected updated source 'source-b', got %q", second.Source)
	}
	if manager.GetActiveSessionCount() != 1 {
		t.Errorf("Expected 1 active session, got %d", manager.GetActiveSessionCount())
	}
}

func TestCreateSessionDefaultSampleRate(t *testing.T) {
	manager, err := NewManager(testLogger(), time.Minute, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	session, err := manager.CreateSession(1, "source", 0)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", session.SampleRate)
	}
}

func TestSessionCalibrationAndClassification(t *testing.T) {
	manager, err := NewManager(testLogger(), time.Minute, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	session, err := manager.CreateSession(1, "source", 16000)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Three quiet chunks complete calibration. Threshold becomes
	// 100^2 * 1.5 = 15000; the third chunk is classified as silence.
	for seq := uint32(1); seq <= 3; seq++ {
		if err := session.AddAudioData(seq, makeChunk(100)); err != nil {
			t.Fatalf("AddAudioData failed: %v", err)
		}
	}
	session.processAvailableChunks()

	info := session.GetSessionInfo()
	if !info.Calibrated {
		t.Fatal("Expected session to be calibrated after 3 chunks")
	}
	if info.Threshold != 15000 {
		t.Errorf("Expected threshold 15000, got %f", info.Threshold)
	}
	if info.TotalChunks != 3 {
		t.Errorf("Expected 3 processed chunks, got %d", info.TotalChunks)
	}
	if info.SilenceChunks != 1 {
		t.Errorf("Expected 1 silence chunk, got %d", info.SilenceChunks)
	}

	// Loud audio classifies as speech
	if err := session.AddAudioData(4, makeChunk(1000)); err != nil {
		t.Fatalf("AddAudioData failed: %v", err)
	}
	session.processAvailableChunks()

	info = session.GetSessionInfo()
	if info.SpeechChunks != 1 {
		t.Errorf("Expected 1 speech chunk, got %d", info.SpeechChunks)
	}
	if !info.InSpeech {
		t.Error("Expected session to be in a speech segment")
	}
}

func TestSessionSpeechSegments(t *testing.T) {
	manager, err := NewManager(testLogger(), time.Minute, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	session, err := manager.CreateSession(1, "source", 16000)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	seq := uint32(1)
	feed := func(amplitude int16, count int) {
		for i := 0; i < count; i++ {
			if err := session.AddAudioData(seq, makeChunk(amplitude)); err != nil {
				t.Fatalf("AddAudioData failed: %v", err)
			}
			seq++
		}
		session.processAvailableChunks()
	}

	feed(100, 3)  // calibration
	feed(1000, 2) // first speech segment
	feed(100, 1)  // back to silence
	feed(1000, 3) // second speech segment

	info := session.GetSessionInfo()
	if info.SpeechSegments != 1 {
		t.Errorf("Expected 1 closed speech segment, got %d", info.SpeechSegments)
	}
	if !info.InSpeech {
		t.Error("Expected second speech segment to still be open")
	}
	if info.SpeechChunks != 5 {
		t.Errorf("Expected 5 speech chunks, got %d", info.SpeechChunks)
	}
}

func TestSessionResetCalibration(t *testing.T) {
	manager, err := NewManager(testLogger(), time.Minute, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	session, err := manager.CreateSession(1, "source", 16000)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	for seq := uint32(1); seq <= 3; seq++ {
		if err := session.AddAudioData(seq, makeChunk(100)); err != nil {
			t.Fatalf("AddAudioData failed: %v", err)
		}
	}
	session.processAvailableChunks()

	if !session.GetSessionInfo().Calibrated {
		t.Fatal("Expected calibrated session")
	}

	session.ResetCalibration()

	info := session.GetSessionInfo()
	if info.Calibrated {
		t.Error("Expected calibration to be cleared after reset")
	}
	if info.Threshold != 0 {
		t.Errorf("Expected threshold 0 after reset, got %f", info.Threshold)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	manager, err := NewManager(testLogger(), 10*time.Millisecond, testManagerConfig())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer manager.Stop()

	session, err := manager.CreateSession(1, "source", 16000)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	session.mu.Lock()
	session.LastActivity = time.Now().Add(-time.Second)
	session.mu.Unlock()

	manager.cleanupExpiredSessions()

	if manager.GetActiveSessionCount() != 0 {
		t.Errorf("Expected expired session to be removed, got %d active", manager.GetActiveSessionCount())
	}
}
