package audio

import (
	"testing"
	"time"
)

func makeChunk(seq uint64) Chunk {
	return Chunk{
		Sequence: seq,
		Payload:  []byte{byte(seq), byte(seq >> 8)},
		Captured: time.Now(),
	}
}

func TestNewChunkBufferValidation(t *testing.T) {
	tests := []struct {
		name        string
		capacity    int
		policy      DropPolicy
		expectError bool
	}{
		{name: "valid drop oldest", capacity: 10, policy: DropOldest, expectError: false},
		{name: "valid drop newest", capacity: 1, policy: DropNewest, expectError: false},
		{name: "zero capacity", capacity: 0, policy: DropOldest, expectError: true},
		{name: "negative capacity", capacity: -5, policy: DropOldest, expectError: true},
		{name: "unknown policy", capacity: 10, policy: DropPolicy("drop_random"), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunkBuffer(tt.capacity, tt.policy)
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

// For K submissions into a buffer of capacity C the accepted count must be
// min(K, C) and the dropped count max(0, K-C), for both overflow policies.
func TestEnqueueAcceptedDroppedLaw(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		policy   DropPolicy
		submits  int
	}{
		{name: "under capacity", capacity: 50, policy: DropOldest, submits: 30},
		{name: "exactly capacity", capacity: 50, policy: DropOldest, submits: 50},
		{name: "overflow drop oldest", capacity: 50, policy: DropOldest, submits: 70},
		{name: "overflow drop newest", capacity: 50, policy: DropNewest, submits: 70},
		{name: "tiny buffer", capacity: 1, policy: DropOldest, submits: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := NewChunkBuffer(tt.capacity, tt.policy)
			if err != nil {
				t.Fatalf("NewChunkBuffer failed: %v", err)
			}

			accepted, dropped := 0, 0
			for i := 0; i < tt.submits; i++ {
				switch buf.Enqueue(makeChunk(uint64(i + 1))) {
				case Accepted:
					accepted++
				case Dropped:
					dropped++
				}
			}

			wantAccepted := tt.submits
			if wantAccepted > tt.capacity {
				wantAccepted = tt.capacity
			}
			wantDropped := tt.submits - tt.capacity
			if wantDropped < 0 {
				wantDropped = 0
			}

			if accepted != wantAccepted {
				t.Errorf("Expected %d accepted, got %d", wantAccepted, accepted)
			}
			if dropped != wantDropped {
				t.Errorf("Expected %d dropped, got %d", wantDropped, dropped)
			}
			if buf.Len() != wantAccepted {
				t.Errorf("Expected buffer length %d, got %d", wantAccepted, buf.Len())
			}
		})
	}
}

func TestDrainAllPreservesFIFOOrder(t *testing.T) {
	buf, err := NewChunkBuffer(5, DropOldest)
	if err != nil {
		t.Fatalf("NewChunkBuffer failed: %v", err)
	}

	for seq := uint64(1); seq <= 5; seq++ {
		buf.Enqueue(makeChunk(seq))
	}

	chunks := buf.DrainAll()
	if len(chunks) != 5 {
		t.Fatalf("Expected 5 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Sequence != uint64(i+1) {
			t.Errorf("Chunk %d: expected sequence %d, got %d", i, i+1, c.Sequence)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after drain, got length %d", buf.Len())
	}
	if again := buf.DrainAll(); again != nil {
		t.Errorf("Expected nil from draining an empty buffer, got %d chunks", len(again))
	}
}

func TestDropOldestKeepsNewestChunks(t *testing.T) {
	buf, err := NewChunkBuffer(3, DropOldest)
	if err != nil {
		t.Fatalf("NewChunkBuffer failed: %v", err)
	}

	for seq := uint64(1); seq <= 7; seq++ {
		buf.Enqueue(makeChunk(seq))
	}

	chunks := buf.DrainAll()
	want := []uint64{5, 6, 7}
	if len(chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Sequence != want[i] {
			t.Errorf("Chunk %d: expected sequence %d, got %d", i, want[i], c.Sequence)
		}
	}
}

func TestDropNewestKeepsOldestChunks(t *testing.T) {
	buf, err := NewChunkBuffer(3, DropNewest)
	if err != nil {
		t.Fatalf("NewChunkBuffer failed: %v", err)
	}

	for seq := uint64(1); seq <= 7; seq++ {
		buf.Enqueue(makeChunk(seq))
	}

	chunks := buf.DrainAll()
	want := []uint64{1, 2, 3}
	if len(chunks) != len(want) {
		t.Fatalf("Expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Sequence != want[i] {
			t.Errorf("Chunk %d: expected sequence %d, got %d", i, want[i], c.Sequence)
		}
	}
}
