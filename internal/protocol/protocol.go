package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Control message types carried in the envelope "type" field.
const (
	TypeAudioStart  = "audio-start"
	TypeAudioStop   = "audio-stop"
	TypeRelayStatus = "relay_status"
	TypeError       = "error"
)

// ErrUnknownType is returned by Decode for messages whose type is not part of
// the closed variant set. Callers treat these as forward-compatible noise and
// ignore them rather than failing the connection.
var ErrUnknownType = errors.New("unknown control message type")

// Message is the closed set of control messages exchanged with the relay.
// Exactly AudioStart, AudioStop, RelayStatus and ErrorMessage implement it.
type Message interface {
	MessageType() string
}

// AudioStart announces the audio format for the session. Sent once, outbound,
// immediately after the connection first becomes usable.
type AudioStart struct {
	Rate     int    `json:"rate"`
	Width    int    `json:"width"`
	Channels int    `json:"channels"`
	Mode     string `json:"mode"`
}

// AudioStop marks the end of the audio stream. Sent once, outbound, on
// disconnect while still connected.
type AudioStop struct {
	Timestamp int64 `json:"timestamp"` // Unix milliseconds
}

// DestinationStatus reports the relay-side delivery state for one fan-out
// destination.
type DestinationStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Errors    uint64 `json:"errors"`
}

// RelayStatus is the inbound per-destination status report. Its arrival also
// satisfies the health-check liveness requirement.
type RelayStatus struct {
	Destinations []DestinationStatus `json:"destinations"`
}

// ErrorMessage is an inbound protocol-level error surfaced to the error
// callback for logging.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (AudioStart) MessageType() string   { return TypeAudioStart }
func (AudioStop) MessageType() string    { return TypeAudioStop }
func (RelayStatus) MessageType() string  { return TypeRelayStatus }
func (ErrorMessage) MessageType() string { return TypeError }

// envelope is the wire shape of every control message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes a control message as a newline-terminated JSON envelope.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msg.MessageType(), err)
	}

	out, err := json.Marshal(envelope{Type: msg.MessageType(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msg.MessageType(), err)
	}

	return append(out, '\n'), nil
}

// Decode parses a newline-terminated JSON envelope into one of the closed
// message variants. Unknown types return ErrUnknownType; malformed envelopes
// or payloads fail explicitly rather than passing through partial values.
func Decode(data []byte) (Message, error) {
	data = bytes.TrimRight(data, "\n")

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse control envelope: %w", err)
	}

	if env.Type == "" {
		return nil, fmt.Errorf("control envelope missing type field")
	}

	switch env.Type {
	case TypeAudioStart:
		var msg AudioStart
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeAudioStop:
		var msg AudioStop
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeRelayStatus:
		var msg RelayStatus
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case TypeError:
		var msg ErrorMessage
		if err := unmarshalPayload(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalPayload(env envelope, dst Message) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s message missing data payload", env.Type)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", env.Type, err)
	}
	return nil
}
