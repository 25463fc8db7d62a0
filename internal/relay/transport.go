package relay

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// MessageType distinguishes the control channel from the binary chunk
// channel on the transport.
type MessageType int

const (
	MessageText MessageType = iota
	MessageBinary
)

// Conn is one physical transport connection. It carries newline-terminated
// control messages as text and raw chunk payloads as binary, one message per
// transport frame.
type Conn interface {
	Read(ctx context.Context) (MessageType, []byte, error)
	Write(ctx context.Context, typ MessageType, data []byte) error
	Close() error
}

// Dialer opens transport connections. It exists so tests can substitute a
// fake transport for the websocket implementation.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// TokenProvider supplies the bearer credential embedded in the endpoint URL.
// Token acquisition is an external collaborator; this interface is its
// boundary.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed credential.
type StaticToken string

// Token returns the fixed credential.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// WebsocketDialer is the production Dialer backed by coder/websocket.
type WebsocketDialer struct{}

// Dial opens a websocket connection to the relay endpoint.
func (WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	// Status reports grow with the destination count; allow generous frames.
	c.SetReadLimit(1 << 20)

	return &websocketConn{conn: c}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (w *websocketConn) Read(ctx context.Context) (MessageType, []byte, error) {
	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		return 0, nil, err
	}

	if typ == websocket.MessageBinary {
		return MessageBinary, data, nil
	}
	return MessageText, data, nil
}

func (w *websocketConn) Write(ctx context.Context, typ MessageType, data []byte) error {
	wsType := websocket.MessageText
	if typ == MessageBinary {
		wsType = websocket.MessageBinary
	}
	return w.conn.Write(ctx, wsType, data)
}

func (w *websocketConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "session ended")
}
