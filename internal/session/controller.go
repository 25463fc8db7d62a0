package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/audio-relay-service/internal/audio"
	"github.com/skypro1111/audio-relay-service/internal/diagnostics"
	"github.com/skypro1111/audio-relay-service/internal/metrics"
	"github.com/skypro1111/audio-relay-service/internal/protocol"
	"github.com/skypro1111/audio-relay-service/internal/relay"
)

var (
	// ErrNotStarted is returned for operations on a controller whose session
	// has not been started.
	ErrNotStarted = errors.New("session has not been started")

	// ErrSessionEnded is returned when submitting chunks after Stop.
	ErrSessionEnded = errors.New("session has ended")

	// ErrAlreadyStarted is returned by Start on a controller that already
	// ran a session. Controllers are single use.
	ErrAlreadyStarted = errors.New("session already started")
)

// Config contains session controller parameters.
type Config struct {
	// Relay holds the connection parameters. Destinations is filled in from
	// the Start call.
	Relay relay.Config

	// Token authenticates the relay handshake.
	Token relay.TokenProvider

	BufferCapacity int
	DropPolicy     audio.DropPolicy

	Codec          string
	NetworkType    string
	ConversationID string
}

// Conn is the slice of the relay connection the controller drives. The
// production implementation is *relay.Connection.
type Conn interface {
	Connect(ctx context.Context) error
	Send(chunk audio.Chunk) error
	State() relay.State
	DestinationStatuses() []protocol.DestinationStatus
	NotifyBackgroundGap()
	Close() error
}

// connFactory builds the relay connection for a session. Tests substitute a
// fake transport here.
type connFactory func(cfg relay.Config, diag *diagnostics.Recorder, cb relay.Callbacks) Conn

// Controller runs one streaming session end to end: it owns the relay
// connection, the outage buffer, the diagnostics recorder and the session
// record, and enforces chunk ordering across connection outages.
//
// Chunks are sent live only while the connection is up and the outage buffer
// is empty. After a reconnect the buffer is drained in capture order before
// live sending resumes, so the relay always observes a subsequence of the
// submitted chunks in their original order.
type Controller struct {
	cfg     Config
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	newConn connFactory

	mu              sync.Mutex
	conn            Conn
	buf             *audio.ChunkBuffer
	diag            *diagnostics.Recorder
	rec             *Record
	seq             uint64
	backgroundSince time.Time
	stopped         bool
}

// NewController creates a session controller. The controller is single use:
// one Start, one Stop.
func NewController(cfg Config, store Store, m *metrics.Metrics, logger *slog.Logger) *Controller {
	c := &Controller{
		cfg:     cfg,
		store:   store,
		metrics: m,
		logger:  logger,
	}
	c.newConn = func(rcfg relay.Config, diag *diagnostics.Recorder, cb relay.Callbacks) Conn {
		return relay.NewConnection(rcfg, nil, cfg.Token, diag, m, logger, cb)
	}
	return c
}

// Start opens the relay connection and begins the session. A handshake
// failure is returned synchronously and nothing is persisted; once Start
// returns nil the session is live and later transport trouble is handled by
// reconnection, surfacing to the caller only through the session record.
func (c *Controller) Start(ctx context.Context, source SourceDescriptor, destinations []protocol.Destination) (*Record, error) {
	buf, err := audio.NewChunkBuffer(c.cfg.BufferCapacity, c.cfg.DropPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to create outage buffer: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil || c.stopped {
		c.mu.Unlock()
		return nil, ErrAlreadyStarted
	}

	c.buf = buf
	c.diag = diagnostics.NewRecorder()

	rcfg := c.cfg.Relay
	rcfg.Destinations = destinations

	conn := c.newConn(rcfg, c.diag, relay.Callbacks{
		StateChange: c.onStateChange,
		Error:       c.onConnError,
		Fatal:       c.onFatal,
	})
	c.conn = conn
	c.mu.Unlock()

	// Connect outside the lock: connection callbacks fire synchronously and
	// take the controller lock themselves.
	if err := conn.Connect(ctx); err != nil {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	c.mu.Lock()
	c.rec = &Record{
		ID:             uuid.NewString(),
		Source:         source,
		Destinations:   destinations,
		StartTime:      time.Now(),
		Codec:          c.cfg.Codec,
		NetworkType:    c.cfg.NetworkType,
		ConversationID: c.cfg.ConversationID,
	}
	rec := c.rec.Clone()
	c.mu.Unlock()

	if err := c.store.Save(rec); err != nil {
		c.logger.Warn("Failed to persist session record", slog.String("error", err.Error()))
	}
	c.metrics.RecordSessionStarted()

	c.logger.Info("Session started",
		slog.String("session_id", rec.ID),
		slog.String("source", source.Kind),
		slog.Int("destinations", len(destinations)),
	)

	return rec, nil
}

// SubmitChunk accepts one captured audio chunk. While the connection is up
// and nothing is backlogged the chunk goes out live; otherwise it is diverted
// to the outage buffer, where overflow follows the configured drop policy.
func (c *Controller) SubmitChunk(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.rec == nil {
		return ErrNotStarted
	}
	if c.stopped {
		return ErrSessionEnded
	}

	c.seq++
	chunk := audio.Chunk{
		Sequence: c.seq,
		Payload:  payload,
		Captured: time.Now(),
	}

	if c.conn.State() == relay.StateConnected && c.buf.Len() == 0 {
		if err := c.conn.Send(chunk); err == nil {
			c.rec.ChunksTransferred++
			c.rec.BytesTransferred += uint64(len(payload))
			c.metrics.RecordChunkSent(len(payload))
			return nil
		}
		// The failed write already moved the connection toward reconnect;
		// the chunk falls through to the buffer so it is not lost.
	}

	switch c.buf.Enqueue(chunk) {
	case audio.Accepted:
		c.diag.RecordBuffered()
		c.metrics.RecordChunkBuffered()
	case audio.Dropped:
		c.diag.RecordDropped()
		c.metrics.RecordChunkDropped()
	}
	c.metrics.SetBufferOccupancy(c.buf.Len())

	return nil
}

// EnterBackground records the start of a background gap and recycles the
// relay connection, which is presumed unusable while backgrounded.
func (c *Controller) EnterBackground() {
	c.mu.Lock()
	if c.conn == nil || c.stopped || !c.backgroundSince.IsZero() {
		c.mu.Unlock()
		return
	}
	c.backgroundSince = time.Now()
	conn := c.conn
	c.diag.RecordBackgroundGap()
	c.mu.Unlock()

	conn.NotifyBackgroundGap()
}

// EnterForeground ends the current background gap and accounts its duration.
func (c *Controller) EnterForeground() {
	c.mu.Lock()
	if c.backgroundSince.IsZero() {
		c.mu.Unlock()
		return
	}
	elapsed := time.Since(c.backgroundSince)
	c.backgroundSince = time.Time{}
	diag := c.diag
	c.mu.Unlock()

	diag.AddBackgroundDuration(elapsed)
}

// Stop ends the session. It is idempotent: the first call closes the
// connection and finalizes the record, repeated calls return the same
// finalized record.
func (c *Controller) Stop(reason EndReason) *Record {
	return c.stopWith(reason, "")
}

func (c *Controller) stopWith(reason EndReason, errMsg string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return nil
	}
	if c.stopped {
		return c.rec.Clone()
	}
	c.stopped = true

	if c.conn != nil {
		_ = c.conn.Close()
	}

	now := time.Now()
	c.rec.EndTime = &now
	c.rec.EndReason = reason
	if errMsg != "" {
		c.rec.Error = errMsg
	}
	c.rec.Diagnostics = c.diag.Snapshot()

	rec := c.rec.Clone()
	if err := c.store.Save(rec); err != nil {
		c.logger.Warn("Failed to persist session record", slog.String("error", err.Error()))
	}
	c.metrics.RecordSessionEnded(now.Sub(rec.StartTime).Seconds())

	c.logger.Info("Session ended",
		slog.String("session_id", rec.ID),
		slog.String("reason", string(reason)),
		slog.Uint64("chunks_transferred", rec.ChunksTransferred),
		slog.Uint64("bytes_transferred", rec.BytesTransferred),
		slog.Uint64("reconnects", rec.Diagnostics.ReconnectCount),
		slog.Uint64("dropped_chunks", rec.Diagnostics.TotalDroppedChunks),
	)

	return rec
}

// Record returns a snapshot of the session record, including live
// diagnostics while the session is running.
func (c *Controller) Record() *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return nil
	}
	rec := c.rec.Clone()
	if !c.stopped {
		rec.Diagnostics = c.diag.Snapshot()
	}
	return rec
}

// ConnectionState returns the relay connection state, or StateIdle before
// Start.
func (c *Controller) ConnectionState() relay.State {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return relay.StateIdle
	}
	return conn.State()
}

// DestinationStatuses returns the latest per-destination fan-out status.
func (c *Controller) DestinationStatuses() []protocol.DestinationStatus {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.DestinationStatuses()
}

// BufferedChunks returns the current outage buffer occupancy.
func (c *Controller) BufferedChunks() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf == nil {
		return 0
	}
	return c.buf.Len()
}

// onStateChange reacts to connection transitions. Reaching Connected after an
// outage triggers the buffer drain; live sending stays suspended until the
// drain empties the buffer, which preserves capture order.
func (c *Controller) onStateChange(from, to relay.State) {
	if to != relay.StateConnected {
		return
	}
	c.drainBuffer()
}

func (c *Controller) drainBuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.stopped {
		return
	}

	chunks := c.buf.DrainAll()
	for i, chunk := range chunks {
		if err := c.conn.Send(chunk); err != nil {
			// The connection dropped mid-drain. Requeue the remainder so the
			// next successful reconnect picks up where this one stopped.
			for _, rest := range chunks[i:] {
				c.buf.Enqueue(rest)
			}
			c.logger.Warn("Buffer drain interrupted",
				slog.Int("flushed", i),
				slog.Int("requeued", len(chunks)-i),
				slog.String("error", err.Error()),
			)
			c.metrics.SetBufferOccupancy(c.buf.Len())
			return
		}
		c.diag.RecordFlushed()
		c.metrics.RecordChunkFlushed(chunk.Size())
		c.rec.ChunksTransferred++
		c.rec.BytesTransferred += uint64(chunk.Size())
	}
	c.metrics.SetBufferOccupancy(c.buf.Len())

	if len(chunks) > 0 {
		c.logger.Info("Outage buffer drained", slog.Int("chunks", len(chunks)))
	}
}

func (c *Controller) onConnError(err error) {
	c.logger.Warn("Session connection error", slog.String("error", err.Error()))
}

// onFatal ends the session when the connection gives up reconnecting.
func (c *Controller) onFatal(err error) {
	c.stopWith(EndReasonConnectionLost, err.Error())
}
