package diagnostics

import (
	"sync"
	"time"
)

// Diagnostics is an immutable snapshot of session health counters. Every
// field is non-negative and strictly non-decreasing for the lifetime of a
// session; TotalBufferedChunks is always at least TotalFlushedChunks.
type Diagnostics struct {
	ReconnectCount        uint64 `json:"reconnect_count"`
	BackgroundGapCount    uint64 `json:"background_gap_count"`
	TotalBackgroundMs     uint64 `json:"total_background_ms"`
	TotalBufferedChunks   uint64 `json:"total_buffered_chunks"`
	TotalDroppedChunks    uint64 `json:"total_dropped_chunks"`
	TotalFlushedChunks    uint64 `json:"total_flushed_chunks"`
	HealthCheckReconnects uint64 `json:"health_check_reconnects"`
}

// Recorder accumulates session diagnostics. It is safe for concurrent use
// and has no side effects beyond counting.
type Recorder struct {
	mu sync.Mutex
	d  Diagnostics
}

// NewRecorder creates a recorder with all counters at zero.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordReconnect counts one reconnection attempt.
func (r *Recorder) RecordReconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.ReconnectCount++
}

// RecordBackgroundGap counts one transition into the background.
func (r *Recorder) RecordBackgroundGap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.BackgroundGapCount++
}

// AddBackgroundDuration adds elapsed background time. Negative durations are
// ignored so the counter stays monotonic.
func (r *Recorder) AddBackgroundDuration(d time.Duration) {
	if d < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.TotalBackgroundMs += uint64(d.Milliseconds())
}

// RecordBuffered counts one chunk admitted to the outage buffer.
func (r *Recorder) RecordBuffered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.TotalBufferedChunks++
}

// RecordDropped counts one chunk lost to buffer overflow.
func (r *Recorder) RecordDropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.TotalDroppedChunks++
}

// RecordFlushed counts one buffered chunk delivered after reconnection.
func (r *Recorder) RecordFlushed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.TotalFlushedChunks++
}

// RecordHealthCheckReconnect counts one reconnect forced by a health-check
// timeout.
func (r *Recorder) RecordHealthCheckReconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.HealthCheckReconnects++
}

// Snapshot returns an immutable copy of the current counters.
func (r *Recorder) Snapshot() Diagnostics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d
}
