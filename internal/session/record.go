package session

import (
	"time"

	"github.com/skypro1111/audio-relay-service/internal/diagnostics"
	"github.com/skypro1111/audio-relay-service/internal/protocol"
)

// EndReason explains why a session record became terminal.
type EndReason string

const (
	// EndReasonManualStop marks an explicit stop from the caller.
	EndReasonManualStop EndReason = "manual_stop"

	// EndReasonConnectionLost marks a session ended by exhausting the
	// reconnect budget. This is the only path that turns a transport problem
	// into a terminal failure.
	EndReasonConnectionLost EndReason = "connection_lost"

	// EndReasonSourceEnded marks a capture source that ran out of data.
	EndReasonSourceEnded EndReason = "source_ended"
)

// SourceDescriptor identifies the capture source declared at session start:
// the built-in microphone or a named hardware device.
type SourceDescriptor struct {
	Kind string `json:"kind"` // "microphone" or "device"
	Name string `json:"name,omitempty"`
}

// Record is the auditable account of one streaming session. A record is
// active until EndTime is set, which happens exactly once; afterwards it is
// terminal and immutable.
type Record struct {
	ID                string                  `json:"id"`
	Source            SourceDescriptor        `json:"source"`
	Destinations      []protocol.Destination  `json:"destinations"`
	StartTime         time.Time               `json:"start_time"`
	EndTime           *time.Time              `json:"end_time,omitempty"`
	BytesTransferred  uint64                  `json:"bytes_transferred"`
	ChunksTransferred uint64                  `json:"chunks_transferred"`
	ConversationID    string                  `json:"conversation_id,omitempty"`
	Codec             string                  `json:"codec"`
	NetworkType       string                  `json:"network_type,omitempty"`
	Error             string                  `json:"error,omitempty"`
	EndReason         EndReason               `json:"end_reason,omitempty"`
	Diagnostics       diagnostics.Diagnostics `json:"diagnostics"`
}

// Terminal reports whether the record has been finalized.
func (r *Record) Terminal() bool {
	return r.EndTime != nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r

	out.Destinations = make([]protocol.Destination, len(r.Destinations))
	copy(out.Destinations, r.Destinations)

	if r.EndTime != nil {
		end := *r.EndTime
		out.EndTime = &end
	}

	return &out
}
