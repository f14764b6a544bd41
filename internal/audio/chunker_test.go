package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestNewChunkerValidation(t *testing.T) {
	tests := []struct {
		name       string
		chunkBytes int
		expectErr  bool
	}{
		{name: "valid size", chunkBytes: 960, expectErr: false},
		{name: "zero size", chunkBytes: 0, expectErr: true},
		{name: "negative size", chunkBytes: -2, expectErr: true},
		{name: "odd size", chunkBytes: 959, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(bytes.NewReader(nil), tt.chunkBytes)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}

	if _, err := NewChunker(nil, 960); err == nil {
		t.Error("Expected error for nil reader")
	}
}

func TestChunkerCompleteChunks(t *testing.T) {
	data := make([]byte, 960*3)
	for i := range data {
		data[i] = byte(i)
	}

	chunker, err := NewChunker(bytes.NewReader(data), 960)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		chunk, err := chunker.Next()
		if err != nil {
			t.Fatalf("Next failed on chunk %d: %v", i, err)
		}
		if len(chunk) != 960 {
			t.Errorf("Chunk %d: expected 960 bytes, got %d", i, len(chunk))
		}
		if !bytes.Equal(chunk, data[i*960:(i+1)*960]) {
			t.Errorf("Chunk %d content mismatch", i)
		}
	}

	if _, err := chunker.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after stream end, got %v", err)
	}

	if chunker.ChunksRead() != 3 {
		t.Errorf("Expected 3 chunks read, got %d", chunker.ChunksRead())
	}
	if chunker.DroppedBytes() != 0 {
		t.Errorf("Expected 0 dropped bytes, got %d", chunker.DroppedBytes())
	}
}

func TestChunkerDropsPartialFinalChunk(t *testing.T) {
	// Two complete chunks plus 100 trailing bytes that must be discarded
	data := make([]byte, 960*2+100)

	chunker, err := NewChunker(bytes.NewReader(data), 960)
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := chunker.Next(); err != nil {
			t.Fatalf("Next failed on chunk %d: %v", i, err)
		}
	}

	if _, err := chunker.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	if chunker.DroppedBytes() != 100 {
		t.Errorf("Expected 100 dropped bytes, got %d", chunker.DroppedBytes())
	}

	// Chunker stays exhausted
	if _, err := chunker.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF on repeated call, got %v", err)
	}
}

func TestSplitChunks(t *testing.T) {
	data := make([]byte, 960*2+10)

	chunks, err := SplitChunks(data, 960)
	if err != nil {
		t.Fatalf("SplitChunks failed: %v", err)
	}

	if len(chunks) != 2 {
		t.Errorf("Expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) != 960 {
			t.Errorf("Chunk %d: expected 960 bytes, got %d", i, len(chunk))
		}
	}

	if _, err := SplitChunks(data, 0); err == nil {
		t.Error("Expected error for zero chunk size")
	}
}
