// Package audio handles PCM buffering and chunk framing for the detector.
// It implements fixed-size chunk splitting over byte streams, per-stream
// accumulation with sequence reordering for UDP sources, and WAV
// encoding/decoding for 16-bit mono PCM.
package audio
