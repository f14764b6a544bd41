// Package config provides configuration loading and validation for the
// energy VAD service. It handles YAML-based configuration with per-section
// validation covering the UDP server, detector parameters, event delivery,
// and logging.
package config
