package audio

import (
	"errors"
	"fmt"
	"io"
)

// Chunker reads fixed-size PCM chunks from a byte stream. The detector
// requires exact chunk lengths, so a short final read is discarded rather
// than padded or passed through.
type Chunker struct {
	r          io.Reader
	chunkBytes int

	// Statistics
	chunksRead   uint64
	droppedBytes int
	exhausted    bool
}

// NewChunker creates a chunker that frames the reader into chunks of exactly
// chunkBytes bytes.
func NewChunker(r io.Reader, chunkBytes int) (*Chunker, error) {
	if r == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	if chunkBytes <= 0 || chunkBytes%2 != 0 {
		return nil, fmt.Errorf("chunk size must be a positive even number of bytes, got %d", chunkBytes)
	}

	return &Chunker{
		r:          r,
		chunkBytes: chunkBytes,
	}, nil
}

// Next returns the next complete chunk from the stream. It returns io.EOF
// once the stream is exhausted; a trailing partial chunk is dropped and
// counted in DroppedBytes. The returned slice is owned by the caller.
func (c *Chunker) Next() ([]byte, error) {
	if c.exhausted {
		return nil, io.EOF
	}

	chunk := make([]byte, c.chunkBytes)
	n, err := io.ReadFull(c.r, chunk)

	if err == nil {
		c.chunksRead++
		return chunk, nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		c.exhausted = true
		c.droppedBytes = n
		return nil, io.EOF
	}

	return nil, fmt.Errorf("failed to read chunk: %w", err)
}

// ChunksRead returns the number of complete chunks returned so far
func (c *Chunker) ChunksRead() uint64 {
	return c.chunksRead
}

// DroppedBytes returns the size of the discarded partial final chunk, if any
func (c *Chunker) DroppedBytes() int {
	return c.droppedBytes
}

// SplitChunks frames an in-memory PCM buffer into complete chunks of
// chunkBytes bytes, dropping any trailing partial chunk. The returned slices
// alias the input buffer.
func SplitChunks(data []byte, chunkBytes int) ([][]byte, error) {
	if chunkBytes <= 0 || chunkBytes%2 != 0 {
		return nil, fmt.Errorf("chunk size must be a positive even number of bytes, got %d", chunkBytes)
	}

	chunks := make([][]byte, 0, len(data)/chunkBytes)
	for offset := 0; offset+chunkBytes <= len(data); offset += chunkBytes {
		chunks = append(chunks, data[offset:offset+chunkBytes])
	}

	return chunks, nil
}
