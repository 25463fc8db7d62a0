package audio

import "time"

// Chunk is one captured audio payload. Chunks are immutable once produced;
// the sequence number increases monotonically within a session.
type Chunk struct {
	Sequence uint64
	Payload  []byte
	Captured time.Time
}

// Size returns the payload size in bytes.
func (c Chunk) Size() int {
	return len(c.Payload)
}
