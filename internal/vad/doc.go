// Package vad implements energy-based voice activity detection with a
// self-calibrating threshold. A detector learns its decision boundary from an
// initial window of ambient audio and then classifies each fixed-size PCM
// chunk independently as speech or silence.
package vad
