package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// sineWavePCM generates little-endian 16-bit PCM of a sine tone
func sineWavePCM(sampleRate int, frequency float64, numSamples int) []byte {
	pcm := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		v := 16383.0 * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}

func TestEncodeWAV(t *testing.T) {
	pcm := sineWavePCM(16000, 440, 1600)

	wavData, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + len(pcm)
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if string(wavData[0:4]) != "RIFF" {
		t.Error("Missing RIFF marker")
	}
	if string(wavData[8:12]) != "WAVE" {
		t.Error("Missing WAVE marker")
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	tests := []struct {
		name       string
		pcm        []byte
		sampleRate int
	}{
		{name: "empty data", pcm: nil, sampleRate: 16000},
		{name: "odd length", pcm: make([]byte, 961), sampleRate: 16000},
		{name: "zero sample rate", pcm: make([]byte, 960), sampleRate: 0},
		{name: "negative sample rate", pcm: make([]byte, 960), sampleRate: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeWAV(tt.pcm, tt.sampleRate); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := sineWavePCM(16000, 440, 480)

	wavData, err := EncodeWAV(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, sampleRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if sampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", sampleRate)
	}

	if !bytes.Equal(decoded, pcm) {
		t.Error("Decoded PCM does not match original")
	}
}

func TestDecodeWAVValidation(t *testing.T) {
	valid, err := EncodeWAV(make([]byte, 960), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	corrupt := func(offset int, b []byte) []byte {
		data := append([]byte(nil), valid...)
		copy(data[offset:], b)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: valid[:40]},
		{name: "bad RIFF marker", data: corrupt(0, []byte("RIFX"))},
		{name: "bad WAVE marker", data: corrupt(8, []byte("WAVX"))},
		{name: "non-PCM format", data: corrupt(20, []byte{0x03, 0x00})},
		{name: "stereo", data: corrupt(22, []byte{0x02, 0x00})},
		{name: "8-bit depth", data: corrupt(34, []byte{0x08, 0x00})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}
