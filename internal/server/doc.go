// Package server implements the service's network surfaces: a UDP server
// receiving framed audio stream packets through a worker pool, and an HTTP
// API for monitoring, stream management, offline WAV classification, and
// Prometheus metrics.
package server
