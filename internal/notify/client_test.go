package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSendDeliversEvent(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode event: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint:  server.URL,
		AuthToken: "secret",
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	threshold := 12345.0
	event := &Event{
		Type:      EventCalibrated,
		StreamID:  42,
		Source:    "microphone-1",
		Timestamp: time.Now(),
		Threshold: &threshold,
	}

	if err := client.Send(context.Background(), event); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if received.Type != EventCalibrated {
		t.Errorf("Expected event type %q, got %q", EventCalibrated, received.Type)
	}
	if received.StreamID != 42 {
		t.Errorf("Expected stream ID 42, got %d", received.StreamID)
	}
	if received.Threshold == nil || *received.Threshold != 12345.0 {
		t.Errorf("Expected threshold 12345, got %v", received.Threshold)
	}

	stats := client.GetStats()
	if stats.SentEvents != 1 || stats.FailedEvents != 0 {
		t.Errorf("Expected 1 sent / 0 failed, got %d / %d", stats.SentEvents, stats.FailedEvents)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint:   server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	event := &Event{Type: EventSpeechStart, StreamID: 1, Timestamp: time.Now()}
	if err := client.Send(context.Background(), event); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}

	stats := client.GetStats()
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retry, got %d", stats.TotalRetries)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint:   server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	event := &Event{Type: EventSpeechEnd, StreamID: 1, Timestamp: time.Now()}
	if err := client.Send(context.Background(), event); err == nil {
		t.Fatal("Expected error for 400 response")
	}

	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", got)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}
