package vad

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for the two failure modes of the detector.
var (
	// ErrInvalidConfig is returned by NewDetector for non-positive
	// construction parameters.
	ErrInvalidConfig = errors.New("invalid detector configuration")

	// ErrInvalidChunkSize is returned by ProcessChunk when the supplied
	// buffer does not match BytesPerChunk exactly.
	ErrInvalidChunkSize = errors.New("invalid chunk size")
)

// Result is the per-chunk classification produced by ProcessChunk.
type Result int

const (
	Calibrating Result = iota // chunk consumed for threshold calibration
	Silence                   // energy <= threshold
	Speech                    // energy > threshold
)

// String returns a human-readable representation of the result
func (r Result) String() string {
	switch r {
	case Calibrating:
		return "calibrating"
	case Silence:
		return "silence"
	case Speech:
		return "speech"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// DetectorConfig contains construction parameters for an energy detector
type DetectorConfig struct {
	SampleRate            int     // Audio sample rate in Hz (16-bit mono PCM)
	ChunkDurationMs       float64 // Duration of one chunk in milliseconds
	CalibrationDurationMs float64 // Audio absorbed into the baseline before classification starts
	CalibrationMultiplier float64 // Scales the average calibration energy into the threshold
	FixedThreshold        *float64 // If set, disables calibration entirely
}

// Detector classifies fixed-size chunks of 16-bit little-endian mono PCM as
// speech or silence against an energy threshold learned during calibration.
//
// A Detector is not safe for concurrent use. It is meant to be owned by
// exactly one audio-reading loop; independent instances may run in parallel.
type Detector struct {
	samplesPerChunk   int
	bytesPerChunk     int
	calibrationChunks int
	multiplier        float64

	// Threshold state. Exactly one of thresholdSet / calibration-in-progress
	// holds at any time.
	threshold    float64
	thresholdSet bool

	// Calibration accumulators, meaningful only while thresholdSet is false.
	calibEnergySum  float64
	calibChunksSeen int

	// Statistics
	totalChunks   uint64
	speechChunks  uint64
	silenceChunks uint64
}

// DetectorStats represents detector statistics for monitoring
type DetectorStats struct {
	TotalChunks      uint64  `json:"total_chunks"`
	SpeechChunks     uint64  `json:"speech_chunks"`
	SilenceChunks    uint64  `json:"silence_chunks"`
	SpeechPercentage float64 `json:"speech_percentage"`
	Calibrated       bool    `json:"calibrated"`
	Threshold        float64 `json:"threshold"`
}

// NewDetector creates a new energy detector from the given configuration.
// Chunk sizing is fixed for the lifetime of the instance.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, cfg.SampleRate)
	}

	if cfg.ChunkDurationMs <= 0 {
		return nil, fmt.Errorf("%w: chunk duration must be positive, got %f", ErrInvalidConfig, cfg.ChunkDurationMs)
	}

	if cfg.CalibrationDurationMs < 0 {
		return nil, fmt.Errorf("%w: calibration duration cannot be negative, got %f", ErrInvalidConfig, cfg.CalibrationDurationMs)
	}

	if cfg.CalibrationMultiplier <= 0 {
		return nil, fmt.Errorf("%w: calibration multiplier must be positive, got %f", ErrInvalidConfig, cfg.CalibrationMultiplier)
	}

	samplesPerChunk := int(math.Round(float64(cfg.SampleRate) * cfg.ChunkDurationMs / 1000))
	if samplesPerChunk <= 0 {
		return nil, fmt.Errorf("%w: chunk duration %fms too short for sample rate %d",
			ErrInvalidConfig, cfg.ChunkDurationMs, cfg.SampleRate)
	}

	calibrationSamples := int(math.Round(float64(cfg.SampleRate) * cfg.CalibrationDurationMs / 1000))
	calibrationChunks := (calibrationSamples + samplesPerChunk - 1) / samplesPerChunk

	d := &Detector{
		samplesPerChunk:   samplesPerChunk,
		bytesPerChunk:     samplesPerChunk * 2, // 16-bit samples
		calibrationChunks: calibrationChunks,
		multiplier:        cfg.CalibrationMultiplier,
	}

	if cfg.FixedThreshold != nil {
		if *cfg.FixedThreshold < 0 {
			return nil, fmt.Errorf("%w: fixed threshold cannot be negative, got %f", ErrInvalidConfig, *cfg.FixedThreshold)
		}
		d.threshold = *cfg.FixedThreshold
		d.thresholdSet = true
	}

	return d, nil
}

// ProcessChunk classifies a single chunk of audio. The buffer must be exactly
// BytesPerChunk bytes of 16-bit little-endian mono PCM; partial final chunks
// from a source must be discarded by the caller, not passed in.
//
// While the threshold is unset the chunk is absorbed into the calibration
// baseline and Calibrating is returned, except that the chunk which completes
// calibration is immediately classified against the newly derived threshold.
func (d *Detector) ProcessChunk(chunk []byte) (Result, error) {
	if len(chunk) != d.bytesPerChunk {
		return 0, fmt.Errorf("%w: chunk must be %d bytes, got %d", ErrInvalidChunkSize, d.bytesPerChunk, len(chunk))
	}

	energy := chunkEnergy(chunk)

	if !d.thresholdSet {
		d.calibEnergySum += energy
		d.calibChunksSeen++

		if d.calibChunksSeen < d.calibrationChunks {
			d.totalChunks++
			return Calibrating, nil
		}

		// Calibration complete: derive the threshold and classify this same
		// chunk against it. A zero calibration window finalizes on the very
		// first chunk.
		d.threshold = (d.calibEnergySum / float64(d.calibChunksSeen)) * d.multiplier
		d.thresholdSet = true
		d.calibEnergySum = 0
		d.calibChunksSeen = 0
	}

	d.totalChunks++
	if energy > d.threshold {
		d.speechChunks++
		return Speech, nil
	}

	d.silenceChunks++
	return Silence, nil
}

// ResetCalibration clears the threshold back to unset and zeroes the
// calibration accumulators, regardless of current state. A detector
// constructed with a fixed threshold recalibrates from scratch afterwards.
func (d *Detector) ResetCalibration() {
	d.threshold = 0
	d.thresholdSet = false
	d.calibEnergySum = 0
	d.calibChunksSeen = 0
}

// Threshold returns the current decision threshold. The second return value
// is false while calibration is still in progress.
func (d *Detector) Threshold() (float64, bool) {
	return d.threshold, d.thresholdSet
}

// IsCalibrated returns whether the detector has a threshold and is
// classifying chunks.
func (d *Detector) IsCalibrated() bool {
	return d.thresholdSet
}

// SamplesPerChunk returns the number of samples expected per chunk
func (d *Detector) SamplesPerChunk() int {
	return d.samplesPerChunk
}

// BytesPerChunk returns the exact byte length ProcessChunk accepts
func (d *Detector) BytesPerChunk() int {
	return d.bytesPerChunk
}

// CalibrationChunks returns how many chunks a full calibration cycle consumes
func (d *Detector) CalibrationChunks() int {
	return d.calibrationChunks
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	speechPercentage := float64(0)
	classified := d.speechChunks + d.silenceChunks
	if classified > 0 {
		speechPercentage = float64(d.speechChunks) / float64(classified) * 100
	}

	return DetectorStats{
		TotalChunks:      d.totalChunks,
		SpeechChunks:     d.speechChunks,
		SilenceChunks:    d.silenceChunks,
		SpeechPercentage: speechPercentage,
		Calibrated:       d.thresholdSet,
		Threshold:        d.threshold,
	}
}

// chunkEnergy computes the mean of squared sample amplitudes over a chunk of
// 16-bit little-endian PCM. Raw amplitudes are used without normalization;
// the threshold is learned in the same units, so only consistency matters.
// The float64 accumulator cannot overflow for any practical chunk length.
func chunkEnergy(chunk []byte) float64 {
	numSamples := len(chunk) / 2

	var sum float64
	for i := 0; i < numSamples; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:])))
		sum += sample * sample
	}

	return sum / float64(numSamples)
}
