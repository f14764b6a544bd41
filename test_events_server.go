package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

type speechEvent struct {
	Type       string    `json:"type"`
	StreamID   uint32    `json:"stream_id"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Threshold  *float64  `json:"threshold"`
	DurationMs *float64  `json:"duration_ms"`
	ChunkIndex uint64    `json:"chunk_index"`
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event speechEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	fmt.Printf("=== Speech Event ===\n")
	fmt.Printf("Type:        %s\n", event.Type)
	fmt.Printf("Stream ID:   %d\n", event.StreamID)
	fmt.Printf("Source:      %s\n", event.Source)
	fmt.Printf("Timestamp:   %s\n", event.Timestamp.Format(time.RFC3339))
	fmt.Printf("Chunk index: %d\n", event.ChunkIndex)
	if event.Threshold != nil {
		fmt.Printf("Threshold:   %.2f\n", *event.Threshold)
	}
	if event.DurationMs != nil {
		fmt.Printf("Duration:    %.1f ms\n", *event.DurationMs)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		fmt.Printf("Auth:        %s\n", auth)
	}
	fmt.Printf("====================\n\n")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

func main() {
	http.HandleFunc("/events", eventsHandler)

	addr := ":9000"
	fmt.Printf("Test events server listening on %s\n", addr)
	fmt.Printf("Point events.endpoint at http://localhost%s/events\n\n", addr)

	log.Fatal(http.ListenAndServe(addr, nil))
}
