package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Event types delivered to the webhook endpoint
const (
	EventSpeechStart = "speech_start"
	EventSpeechEnd   = "speech_end"
	EventCalibrated  = "calibrated"
)

// Client delivers speech events to a webhook endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalEvents   uint64
	sentEvents    uint64
	failedEvents  uint64
	totalRetries  uint64
	avgDeliveryMs float64

	mu sync.RWMutex
}

// Config contains webhook client configuration
type Config struct {
	Endpoint      string
	AuthToken     string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// Event represents a speech event sent to the webhook endpoint
type Event struct {
	Type      string    `json:"type"`
	StreamID  uint32    `json:"stream_id"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Set for calibrated events
	Threshold *float64 `json:"threshold,omitempty"`

	// Set for speech_end events
	DurationMs *float64 `json:"duration_ms,omitempty"`

	// Stream position in processed chunks
	ChunkIndex uint64 `json:"chunk_index"`
}

// ClientStats represents webhook client statistics
type ClientStats struct {
	TotalEvents    uint64  `json:"total_events"`
	SentEvents     uint64  `json:"sent_events"`
	FailedEvents   uint64  `json:"failed_events"`
	SuccessRate    float64 `json:"success_rate"`
	TotalRetries   uint64  `json:"total_retries"`
	AvgDeliveryMs  float64 `json:"avg_delivery_ms"`
	ActiveRequests int     `json:"active_requests"`
}

// NewClient creates a new webhook event client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 5
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Send delivers a single event, retrying with exponential backoff
func (c *Client) Send(ctx context.Context, event *Event) error {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalEvents()

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			// Exponential backoff, capped at 10s
			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 10*time.Second {
				backoffTime = 10 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, event)
		if err == nil {
			c.incrementSentEvents()
			c.updateAvgDeliveryTime(time.Since(startTime))
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	c.incrementFailedEvents()
	return fmt.Errorf("event delivery failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single HTTP POST to the webhook endpoint
func (c *Client) doRequest(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "Energy-VAD-Service/1.0")
	if c.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain the body so the connection can be reused
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// isRetryableError determines if an error is retryable
func (c *Client) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors and rate limiting are retryable
	if strings.Contains(errStr, "HTTP error 5") || strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network/connection errors are typically retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

func (c *Client) incrementTotalEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalEvents++
}

func (c *Client) incrementSentEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sentEvents++
}

func (c *Client) incrementFailedEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedEvents++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgDeliveryTime(delivery time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := float64(delivery.Milliseconds())
	// Simple moving average
	if c.avgDeliveryMs == 0 {
		c.avgDeliveryMs = ms
	} else {
		c.avgDeliveryMs = (c.avgDeliveryMs + ms) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalEvents > 0 {
		successRate = float64(c.sentEvents) / float64(c.totalEvents) * 100
	}

	return ClientStats{
		TotalEvents:    c.totalEvents,
		SentEvents:     c.sentEvents,
		FailedEvents:   c.failedEvents,
		SuccessRate:    successRate,
		TotalRetries:   c.totalRetries,
		AvgDeliveryMs:  c.avgDeliveryMs,
		ActiveRequests: len(c.semaphore),
	}
}

// Close waits for all in-flight deliveries to complete
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
