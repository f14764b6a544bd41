// Package stream manages active audio stream sessions. Each session owns a
// reordering buffer and an energy detector driven by a single processing
// goroutine, tracks speech segment transitions, and emits speech events
// through the webhook client. Inactive sessions are cleaned up periodically.
package stream
