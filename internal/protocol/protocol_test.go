package protocol

import (
	"encoding/binary"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
	}{
		{
			name: "valid start header",
			data: []byte{
				0x01,       // PacketType: Start
				0x00, 0x4F, // PacketLen: 79 (7 + 72)
				0x00, 0x00, 0x30, 0x39, // StreamID: 12345
			},
			expected: &Header{
				PacketType: PacketTypeStart,
				PacketLen:  79,
				StreamID:   12345,
			},
		},
		{
			name: "valid audio header",
			data: []byte{
				0x02,       // PacketType: Audio
				0x01, 0x00, // PacketLen: 256
				0x12, 0x34, 0x56, 0x78, // StreamID: 305419896
			},
			expected: &Header{
				PacketType: PacketTypeAudio,
				PacketLen:  256,
				StreamID:   305419896,
			},
		},
		{
			name:        "header too short",
			data:        []byte{0x01, 0x00, 0x4F},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := ParseHeader(tt.data)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if *header != *tt.expected {
				t.Errorf("Expected header %+v, got %+v", tt.expected, header)
			}
		})
	}
}

// buildStartPacket assembles a complete start packet for tests
func buildStartPacket(streamID uint32, source string, sampleRate uint32, timestamp uint32) []byte {
	packet := make([]byte, HeaderSize+StartPayloadSize)
	packet[0] = PacketTypeStart
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], streamID)
	copy(packet[HeaderSize:], source)
	binary.BigEndian.PutUint32(packet[HeaderSize+SourceSize:], sampleRate)
	binary.BigEndian.PutUint32(packet[HeaderSize+SourceSize+SampleRateSize:], timestamp)
	return packet
}

// buildAudioPacket assembles a complete audio packet for tests
func buildAudioPacket(streamID uint32, sequence uint32, audioData []byte) []byte {
	packet := make([]byte, HeaderSize+AudioPayloadHeaderSize+len(audioData))
	packet[0] = PacketTypeAudio
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], streamID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sequence)
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], audioData)
	return packet
}

func TestParsePacketStart(t *testing.T) {
	data := buildStartPacket(42, "microphone-1", 16000, 1700000000)

	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if packet.Header.StreamID != 42 {
		t.Errorf("Expected stream ID 42, got %d", packet.Header.StreamID)
	}

	if packet.Start == nil {
		t.Fatal("Expected start payload to be set")
	}

	if packet.Start.GetSource() != "microphone-1" {
		t.Errorf("Expected source 'microphone-1', got %q", packet.Start.GetSource())
	}

	if packet.Start.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", packet.Start.SampleRate)
	}

	if packet.Start.Timestamp != 1700000000 {
		t.Errorf("Expected timestamp 1700000000, got %d", packet.Start.Timestamp)
	}
}

func TestParsePacketAudio(t *testing.T) {
	audioData := make([]byte, 320)
	for i := range audioData {
		audioData[i] = byte(i)
	}

	data := buildAudioPacket(42, 7, audioData)

	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if packet.Audio == nil {
		t.Fatal("Expected audio payload to be set")
	}

	if packet.Audio.Sequence != 7 {
		t.Errorf("Expected sequence 7, got %d", packet.Audio.Sequence)
	}

	if len(packet.Audio.AudioData) != 320 {
		t.Errorf("Expected 320 bytes of audio, got %d", len(packet.Audio.AudioData))
	}
}

func TestParsePacketStop(t *testing.T) {
	packet := make([]byte, HeaderSize)
	packet[0] = PacketTypeStop
	binary.BigEndian.PutUint16(packet[1:3], HeaderSize)
	binary.BigEndian.PutUint32(packet[3:7], 42)

	parsed, err := ParsePacket(packet)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	if parsed.Header.PacketType != PacketTypeStop {
		t.Errorf("Expected stop packet, got 0x%02x", parsed.Header.PacketType)
	}
	if parsed.Start != nil || parsed.Audio != nil {
		t.Error("Stop packet must have no payload")
	}
}

func TestParsePacketValidation(t *testing.T) {
	validAudio := buildAudioPacket(1, 1, make([]byte, 320))

	lengthMismatch := append([]byte(nil), validAudio...)
	binary.BigEndian.PutUint16(lengthMismatch[1:3], uint16(len(lengthMismatch)+10))

	unknownType := append([]byte(nil), validAudio...)
	unknownType[0] = 0x7F

	stopWithPayload := make([]byte, HeaderSize+4)
	stopWithPayload[0] = PacketTypeStop
	binary.BigEndian.PutUint16(stopWithPayload[1:3], uint16(len(stopWithPayload)))

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty packet", data: nil},
		{name: "truncated header", data: validAudio[:5]},
		{name: "length mismatch", data: lengthMismatch},
		{name: "unknown packet type", data: unknownType},
		{name: "stop with payload", data: stopWithPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePacket(tt.data); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestExtractString(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		expected string
	}{
		{name: "null terminated", buf: []byte{'a', 'b', 'c', 0, 'x'}, expected: "abc"},
		{name: "no terminator", buf: []byte{'a', 'b', 'c'}, expected: "abc"},
		{name: "empty", buf: []byte{0, 0, 0}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractString(tt.buf); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
