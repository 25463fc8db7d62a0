package audio

import (
	"fmt"
	"sync"

	"github.com/eapache/queue"
)

// DropPolicy selects which chunk is sacrificed when the buffer is full at
// enqueue time.
type DropPolicy string

const (
	// DropOldest evicts the oldest buffered chunk to admit the newest. This
	// favors live continuity: stale audio is worth less than current audio.
	DropOldest DropPolicy = "drop_oldest"

	// DropNewest rejects the incoming chunk and keeps the buffered ones.
	DropNewest DropPolicy = "drop_newest"
)

// IsValidDropPolicy checks if the policy is one of the supported values.
func IsValidDropPolicy(p DropPolicy) bool {
	return p == DropOldest || p == DropNewest
}

// EnqueueResult reports whether an enqueue caused a chunk to be dropped.
type EnqueueResult int

const (
	// Accepted means the chunk was buffered without losing anything.
	Accepted EnqueueResult = iota

	// Dropped means a chunk was lost: the incoming one under DropNewest, or
	// the evicted oldest one under DropOldest.
	Dropped
)

// ChunkBuffer is a bounded FIFO store of not-yet-delivered chunks. Capacity
// is fixed at construction; overflow behavior follows the configured policy.
type ChunkBuffer struct {
	capacity int
	policy   DropPolicy

	mu sync.Mutex
	q  *queue.Queue
}

// NewChunkBuffer creates a chunk buffer with the given capacity and overflow
// policy.
func NewChunkBuffer(capacity int, policy DropPolicy) (*ChunkBuffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("buffer capacity must be at least 1, got %d", capacity)
	}

	if !IsValidDropPolicy(policy) {
		return nil, fmt.Errorf("invalid drop policy: %q", policy)
	}

	return &ChunkBuffer{
		capacity: capacity,
		policy:   policy,
		q:        queue.New(),
	}, nil
}

// Enqueue adds a chunk to the buffer. The result is Dropped whenever the
// buffer was full at the moment of the attempt, regardless of which chunk
// ended up being lost.
func (b *ChunkBuffer) Enqueue(c Chunk) EnqueueResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.q.Length() < b.capacity {
		b.q.Add(c)
		return Accepted
	}

	if b.policy == DropNewest {
		return Dropped
	}

	// DropOldest: evict the head to admit the newest.
	b.q.Remove()
	b.q.Add(c)
	return Dropped
}

// DrainAll removes and returns all buffered chunks in FIFO order. The buffer
// is empty afterwards.
func (b *ChunkBuffer) DrainAll() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.q.Length()
	if n == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, n)
	for b.q.Length() > 0 {
		chunks = append(chunks, b.q.Remove().(Chunk))
	}

	return chunks
}

// Len returns the number of currently buffered chunks.
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Length()
}

// Capacity returns the fixed buffer capacity.
func (b *ChunkBuffer) Capacity() int {
	return b.capacity
}
