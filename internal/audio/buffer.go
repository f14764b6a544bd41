package audio

import (
	"fmt"
	"sync"
	"time"
)

// Buffer accumulates PCM audio for a single stream with sequence reordering
// and packet loss handling, and frames the accumulated bytes into consecutive
// detector-sized chunks.
type Buffer struct {
	streamID   uint32
	chunkBytes int

	// Audio data storage
	pcm      []byte // Accumulated in-order PCM bytes
	consumed int    // Bytes already handed out as chunks

	// Sequence tracking
	lastSeq     uint32
	expectedSeq uint32
	seqBuffer   map[uint32][]byte // Out-of-order packets waiting for their turn

	// Packet loss tracking
	lostPackets map[uint32]bool
	maxGap      uint32 // Maximum sequence gap to wait for before giving up

	// Timing and metadata
	lastUpdate   time.Time
	totalPackets uint32
	lostCount    uint32

	mu sync.Mutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	StreamID      uint32  `json:"stream_id"`
	TotalPackets  uint32  `json:"total_packets"`
	LostPackets   uint32  `json:"lost_packets"`
	LossRate      float64 `json:"loss_rate"`
	BufferedBytes int     `json:"buffered_bytes"`
	PendingSeqs   int     `json:"pending_sequences"`
	LastSequence  uint32  `json:"last_sequence"`
}

// NewBuffer creates a new stream buffer producing chunks of chunkBytes bytes
func NewBuffer(streamID uint32, chunkBytes int) *Buffer {
	return &Buffer{
		streamID:    streamID,
		chunkBytes:  chunkBytes,
		pcm:         make([]byte, 0, chunkBytes*8),
		seqBuffer:   make(map[uint32][]byte),
		lostPackets: make(map[uint32]bool),
		lastUpdate:  time.Now(),
		maxGap:      20, // Wait for up to 20 missing packets
	}
}

// AddAudioData adds PCM audio data to the buffer with sequence handling
func (b *Buffer) AddAudioData(sequence uint32, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(data)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(data))
	}

	b.lastUpdate = time.Now()
	b.totalPackets++

	// Initialize expected sequence on first packet
	if b.totalPackets == 1 {
		b.expectedSeq = sequence
		b.lastSeq = sequence - 1
	}

	switch {
	case sequence == b.expectedSeq:
		// Perfect order - append directly and drain anything that was waiting
		b.pcm = append(b.pcm, data...)
		b.lastSeq = sequence
		b.expectedSeq = sequence + 1
		b.drainBufferedPackets()

	case sequence > b.expectedSeq:
		// Future packet - hold it until the gap fills or is declared lost
		b.seqBuffer[sequence] = append([]byte(nil), data...)

		if sequence-b.expectedSeq > b.maxGap {
			b.markMissingAsLost(b.expectedSeq, sequence-1)
			b.expectedSeq = sequence
			b.drainBufferedPackets()
		}

	case sequence > b.lastSeq:
		// Late but still useful
		b.seqBuffer[sequence] = append([]byte(nil), data...)
		b.drainBufferedPackets()

	default:
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, b.lastSeq)
	}

	b.cleanupOldLostPackets()

	return nil
}

// drainBufferedPackets appends any consecutive buffered packets
func (b *Buffer) drainBufferedPackets() {
	for {
		data, exists := b.seqBuffer[b.expectedSeq]
		if !exists {
			break
		}

		b.pcm = append(b.pcm, data...)
		delete(b.seqBuffer, b.expectedSeq)
		delete(b.lostPackets, b.expectedSeq)

		b.lastSeq = b.expectedSeq
		b.expectedSeq++
	}
}

// markMissingAsLost marks a range of sequence numbers as lost
func (b *Buffer) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := b.seqBuffer[seq]; !buffered {
			b.lostPackets[seq] = true
			b.lostCount++
		}
	}
}

// cleanupOldLostPackets removes very old lost packet tracking
func (b *Buffer) cleanupOldLostPackets() {
	cutoff := b.lastSeq - 100 // Keep tracking for last 100 packets
	for seq := range b.lostPackets {
		if seq < cutoff {
			delete(b.lostPackets, seq)
		}
	}
}

// PopChunk returns the next complete unconsumed chunk, or false when fewer
// than chunkBytes in-order bytes are available. The returned slice is owned
// by the caller.
func (b *Buffer) PopChunk() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pcm)-b.consumed < b.chunkBytes {
		return nil, false
	}

	chunk := make([]byte, b.chunkBytes)
	copy(chunk, b.pcm[b.consumed:b.consumed+b.chunkBytes])
	b.consumed += b.chunkBytes

	// Compact once consumed bytes dominate the buffer
	if b.consumed > b.chunkBytes*16 {
		b.pcm = append(b.pcm[:0], b.pcm[b.consumed:]...)
		b.consumed = 0
	}

	return chunk, true
}

// AvailableChunks returns the number of complete unconsumed chunks
func (b *Buffer) AvailableChunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return (len(b.pcm) - b.consumed) / b.chunkBytes
}

// PendingBytes returns the number of in-order bytes not yet consumed as
// chunks. A stream that stopped mid-chunk leaves a short remainder here.
func (b *Buffer) PendingBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pcm) - b.consumed
}

// GetStreamID returns the stream ID for this buffer
func (b *Buffer) GetStreamID() uint32 {
	return b.streamID
}

// GetLastSequence returns the last in-order sequence number
func (b *Buffer) GetLastSequence() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeq
}

// GetLastUpdate returns the time of the last buffer update
func (b *Buffer) GetLastUpdate() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUpdate
}

// GetTotalPackets returns the total number of packets processed
func (b *Buffer) GetTotalPackets() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalPackets
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	lossRate := float64(0)
	if b.totalPackets > 0 {
		lossRate = float64(b.lostCount) / float64(b.totalPackets) * 100
	}

	return BufferStats{
		StreamID:      b.streamID,
		TotalPackets:  b.totalPackets,
		LostPackets:   b.lostCount,
		LossRate:      lossRate,
		BufferedBytes: len(b.pcm) - b.consumed,
		PendingSeqs:   len(b.seqBuffer),
		LastSequence:  b.lastSeq,
	}
}
