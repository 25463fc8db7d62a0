package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/audio-relay-service/internal/audio"
	"github.com/skypro1111/audio-relay-service/internal/diagnostics"
	"github.com/skypro1111/audio-relay-service/internal/metrics"
	"github.com/skypro1111/audio-relay-service/internal/protocol"
)

var (
	// ErrClosed is returned for operations on a closed connection.
	ErrClosed = errors.New("relay connection is closed")

	// ErrNotConnected is returned by Send while the transport is unavailable
	// and nothing is pending; callers route chunks to the outage buffer.
	ErrNotConnected = errors.New("relay connection is not connected")

	// ErrAlreadyStarted is returned by Connect on a connection that already
	// left the idle state.
	ErrAlreadyStarted = errors.New("relay connection already started")
)

// Config contains relay connection parameters.
type Config struct {
	Endpoint     string
	DeviceName   string
	Destinations []protocol.Destination
	Format       protocol.AudioStart

	StabilizationDelay       time.Duration
	HealthCheckInterval      time.Duration
	BackoffInitial           time.Duration
	BackoffMax               time.Duration
	MaxConsecutiveReconnects int
	SendTimeout              time.Duration
}

// Callbacks deliver connection events to the session layer. For the same
// underlying cause the state change is delivered before the error. Callbacks
// are invoked without internal locks held, so they may call back into the
// connection.
type Callbacks struct {
	// StateChange is invoked on every state transition.
	StateChange func(from, to State)

	// Error receives protocol and transport errors for logging. Errors
	// delivered here are recovered locally and never end the session.
	Error func(err error)

	// Fatal is invoked once when the reconnect budget is exhausted. The
	// connection is already closed when it fires.
	Fatal func(err error)
}

// Connection owns one physical transport connection to the relay endpoint
// and runs the connection state machine described in the package comment.
type Connection struct {
	cfg     Config
	dialer  Dialer
	tokens  TokenProvider
	diag    *diagnostics.Recorder
	metrics *metrics.Metrics
	logger  *slog.Logger
	cb      Callbacks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                  sync.Mutex
	state               State
	conn                Conn
	generation          uint64
	pending             []audio.Chunk
	destStatus          []protocol.DestinationStatus
	startSent           bool
	consecutiveFailures int
	healthTimer         *time.Timer
}

// NewConnection creates a relay connection in the idle state. A nil dialer
// selects the production websocket transport.
func NewConnection(cfg Config, dialer Dialer, tokens TokenProvider,
	diag *diagnostics.Recorder, m *metrics.Metrics, logger *slog.Logger, cb Callbacks) *Connection {

	if dialer == nil {
		dialer = WebsocketDialer{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	statuses := make([]protocol.DestinationStatus, len(cfg.Destinations))
	for i, d := range cfg.Destinations {
		statuses[i] = protocol.DestinationStatus{Name: d.Name}
	}

	return &Connection{
		cfg:        cfg,
		dialer:     dialer,
		tokens:     tokens,
		diag:       diag,
		metrics:    m,
		logger:     logger,
		cb:         cb,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateIdle,
		destStatus: statuses,
	}
}

// Connect performs the initial handshake. A failure here is surfaced
// synchronously and leaves the connection closed; mid-session transport
// failures are instead recovered by the reconnection loop.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return ErrClosed
		}
		return ErrAlreadyStarted
	}
	from, to := c.transitionLocked(StateConnecting)
	c.mu.Unlock()
	c.emitStateChange(from, to)

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		from, to := c.transitionLocked(StateClosed)
		c.mu.Unlock()
		c.emitStateChange(from, to)
		c.cancel()
		return fmt.Errorf("relay handshake failed: %w", err)
	}

	return nil
}

// dial opens a transport connection, waits out the stabilization delay and
// brings the state machine to Connected. It is shared by the initial connect
// and the reconnection loop.
func (c *Connection) dial(ctx context.Context) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire relay token: %w", err)
	}

	endpoint, err := protocol.BuildEndpointURL(c.cfg.Endpoint, c.cfg.Destinations, token, c.cfg.DeviceName)
	if err != nil {
		return fmt.Errorf("failed to build relay endpoint: %w", err)
	}

	conn, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to open relay transport: %w", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	from, to := c.transitionLocked(StateStabilizing)
	c.mu.Unlock()
	c.emitStateChange(from, to)

	// Let the relay finish its own control-message setup before we treat the
	// connection as usable for data.
	if c.cfg.StabilizationDelay > 0 {
		select {
		case <-time.After(c.cfg.StabilizationDelay):
		case <-c.ctx.Done():
			_ = conn.Close()
			return ErrClosed
		case <-ctx.Done():
			_ = conn.Close()
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}

	// audio-start goes out exactly once per session, the moment the
	// connection first becomes usable. Chunks queued while Connecting or
	// Stabilizing follow in order while the lock is still held, so no live
	// send can interleave ahead of them.
	if !c.startSent {
		if err := c.writeControl(conn, c.cfg.Format); err != nil {
			c.mu.Unlock()
			_ = conn.Close()
			return fmt.Errorf("failed to send audio-start: %w", err)
		}
		c.startSent = true
	}

	pending := c.pending
	c.pending = nil
	for i, chunk := range pending {
		if err := c.writeChunkLocked(conn, chunk); err != nil {
			c.pending = pending[i:]
			c.mu.Unlock()
			_ = conn.Close()
			return fmt.Errorf("failed to flush pre-connect chunk %d: %w", chunk.Sequence, err)
		}
	}

	c.conn = conn
	c.generation++
	gen := c.generation
	c.consecutiveFailures = 0
	from, to = c.transitionLocked(StateConnected)
	c.startHealthTimerLocked(gen)
	c.mu.Unlock()
	c.emitStateChange(from, to)

	c.wg.Add(1)
	go c.readLoop(conn, gen)

	c.logger.Info("Relay connection established",
		slog.String("endpoint", c.cfg.Endpoint),
		slog.Int("destinations", len(c.cfg.Destinations)),
		slog.Int("flushed_pre_connect", len(pending)),
	)

	return nil
}

// Send delivers one chunk on the binary channel. Chunks submitted while the
// connection is still Connecting or Stabilizing are queued in order and
// flushed once Connected; during Reconnecting the caller gets ErrNotConnected
// and is expected to use the outage buffer instead.
func (c *Connection) Send(chunk audio.Chunk) error {
	c.mu.Lock()

	switch c.state {
	case StateConnected:
		conn := c.conn
		err := c.writeChunkLocked(conn, chunk)
		if err == nil {
			c.mu.Unlock()
			return nil
		}
		gen := c.generation
		c.mu.Unlock()
		c.handleTransportError(gen, fmt.Errorf("chunk write failed: %w", err))
		return err

	case StateConnecting, StateStabilizing:
		c.pending = append(c.pending, chunk)
		c.mu.Unlock()
		return nil

	case StateClosed:
		c.mu.Unlock()
		return ErrClosed

	default: // StateIdle, StateReconnecting
		c.mu.Unlock()
		return ErrNotConnected
	}
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DestinationStatuses returns a copy of the per-destination fan-out status
// last reported by the relay.
func (c *Connection) DestinationStatuses() []protocol.DestinationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.DestinationStatus, len(c.destStatus))
	copy(out, c.destStatus)
	return out
}

// NotifyBackgroundGap signals that the capturing device entered the
// background and the transport is presumed unreliable. A connected transport
// is torn down and the reconnection loop takes over.
func (c *Connection) NotifyBackgroundGap() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	c.stopHealthTimerLocked()
	conn := c.conn
	c.conn = nil
	from, to := c.transitionLocked(StateReconnecting)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.emitStateChange(from, to)

	c.logger.Info("Background gap signaled, relay connection recycling")

	c.wg.Add(1)
	go c.reconnectLoop()
}

// Close ends the connection. It is terminal: pending reconnects and timers
// are canceled, and a stop racing a reconnect attempt wins. audio-stop is
// written only if the transport is still connected; queued-but-unsent chunks
// are discarded.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}

	wasConnected := c.state == StateConnected
	conn := c.conn
	c.conn = nil
	c.pending = nil
	c.stopHealthTimerLocked()
	from, to := c.transitionLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		if wasConnected {
			stop := protocol.AudioStop{Timestamp: time.Now().UnixMilli()}
			if err := c.writeControl(conn, stop); err != nil {
				c.logger.Warn("Failed to send audio-stop", slog.String("error", err.Error()))
			}
		}
		_ = conn.Close()
	}

	c.cancel()
	c.emitStateChange(from, to)

	return nil
}

// readLoop consumes inbound transport messages until the connection dies.
// gen ties the loop to one physical connection so a stale loop cannot act on
// a successor.
func (c *Connection) readLoop(conn Conn, gen uint64) {
	defer c.wg.Done()

	for {
		typ, data, err := conn.Read(c.ctx)
		if err != nil {
			c.handleTransportError(gen, fmt.Errorf("transport read failed: %w", err))
			return
		}

		if typ != MessageText {
			// No inbound binary traffic is defined; ignore it.
			continue
		}

		c.metrics.RecordControlReceived()

		msg, err := protocol.Decode(data)
		if err != nil {
			// Forward compatible: unknown or malformed inbound payloads are
			// logged and skipped, never fatal.
			c.metrics.RecordControlDecodeError()
			c.logger.Debug("Ignoring undecodable control message",
				slog.String("error", err.Error()),
				slog.Int("size", len(data)),
			)
			continue
		}

		switch m := msg.(type) {
		case protocol.RelayStatus:
			c.applyRelayStatus(gen, m)

		case protocol.ErrorMessage:
			c.emitError(fmt.Errorf("relay error: %s", m.Message))

		default:
			// audio-start / audio-stop are outbound-only.
			c.logger.Debug("Ignoring unexpected inbound control message",
				slog.String("type", msg.MessageType()),
			)
		}
	}
}

// applyRelayStatus updates the destination status table and feeds the
// health check.
func (c *Connection) applyRelayStatus(gen uint64, status protocol.RelayStatus) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	c.destStatus = make([]protocol.DestinationStatus, len(status.Destinations))
	copy(c.destStatus, status.Destinations)
	c.resetHealthTimerLocked()
	c.mu.Unlock()
}

// handleTransportError moves a live connection into Reconnecting. Stale
// generations and already closed connections are ignored.
func (c *Connection) handleTransportError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	c.stopHealthTimerLocked()
	conn := c.conn
	c.conn = nil
	from, to := c.transitionLocked(StateReconnecting)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.emitStateChange(from, to)
	c.emitError(err)

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries the transport with capped exponential backoff until
// it succeeds, the connection is closed, or the consecutive-failure budget is
// exhausted.
func (c *Connection) reconnectLoop() {
	defer c.wg.Done()

	backoff := c.cfg.BackoffInitial

	for {
		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return
		}

		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		from, to := c.transitionLocked(StateConnecting)
		c.mu.Unlock()
		c.emitStateChange(from, to)

		c.diag.RecordReconnect()
		c.metrics.RecordReconnect()

		err := c.dial(c.ctx)
		if err == nil {
			return
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return
		}

		c.consecutiveFailures++
		failures := c.consecutiveFailures

		if failures >= c.cfg.MaxConsecutiveReconnects {
			from, to := c.transitionLocked(StateClosed)
			c.mu.Unlock()
			c.cancel()
			c.emitStateChange(from, to)

			fatal := fmt.Errorf("connection lost after %d consecutive reconnect attempts: %w", failures, err)
			c.logger.Error("Relay reconnect budget exhausted",
				slog.Int("attempts", failures),
				slog.String("error", err.Error()),
			)
			if c.cb.Fatal != nil {
				c.cb.Fatal(fatal)
			}
			return
		}

		from, to = c.transitionLocked(StateReconnecting)
		c.mu.Unlock()
		c.emitStateChange(from, to)
		c.emitError(fmt.Errorf("reconnect attempt %d failed: %w", failures, err))

		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
	}
}

// Health-check timer. Runs only while Connected; a relay_status arrival
// resets it, a timeout forces a reconnect.

func (c *Connection) startHealthTimerLocked(gen uint64) {
	if c.cfg.HealthCheckInterval <= 0 {
		return
	}
	c.healthTimer = time.AfterFunc(c.cfg.HealthCheckInterval, func() {
		c.onHealthTimeout(gen)
	})
}

func (c *Connection) resetHealthTimerLocked() {
	if c.healthTimer == nil {
		return
	}
	c.healthTimer.Stop()
	c.healthTimer.Reset(c.cfg.HealthCheckInterval)
}

func (c *Connection) stopHealthTimerLocked() {
	if c.healthTimer != nil {
		c.healthTimer.Stop()
		c.healthTimer = nil
	}
}

func (c *Connection) onHealthTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	c.diag.RecordHealthCheckReconnect()
	c.metrics.RecordHealthCheckReconnect()

	c.stopHealthTimerLocked()
	conn := c.conn
	c.conn = nil
	from, to := c.transitionLocked(StateReconnecting)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.emitStateChange(from, to)
	c.emitError(fmt.Errorf("health check timed out after %s without relay_status", c.cfg.HealthCheckInterval))

	c.wg.Add(1)
	go c.reconnectLoop()
}

// Write helpers. The connection lock may be held across writes that must
// stay ordered with a state transition; writes carry their own timeout.

func (c *Connection) writeControl(conn Conn, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SendTimeout)
	defer cancel()

	if err := conn.Write(ctx, MessageText, data); err != nil {
		return err
	}
	c.metrics.RecordControlSent()
	return nil
}

func (c *Connection) writeChunkLocked(conn Conn, chunk audio.Chunk) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SendTimeout)
	defer cancel()

	return conn.Write(ctx, MessageBinary, chunk.Payload)
}

// transitionLocked performs a state transition and returns it for callback
// emission after the lock is released.
func (c *Connection) transitionLocked(to State) (State, State) {
	from := c.state
	c.state = to
	c.metrics.SetConnectionState(int(to))
	return from, to
}

func (c *Connection) emitStateChange(from, to State) {
	if from == to {
		return
	}
	c.logger.Debug("Relay connection state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	if c.cb.StateChange != nil {
		c.cb.StateChange(from, to)
	}
}

func (c *Connection) emitError(err error) {
	c.logger.Warn("Relay connection error", slog.String("error", err.Error()))
	if c.cb.Error != nil {
		c.cb.Error(err)
	}
}
