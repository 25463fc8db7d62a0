package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "audio-start",
			msg:  AudioStart{Rate: 16000, Width: 2, Channels: 1, Mode: "microphone"},
		},
		{
			name: "audio-stop",
			msg:  AudioStop{Timestamp: 1718000000123},
		},
		{
			name: "relay_status",
			msg: RelayStatus{Destinations: []DestinationStatus{
				{Name: "transcriber", Connected: true, Errors: 0},
				{Name: "archive", Connected: false, Errors: 3},
			}},
		},
		{
			name: "error",
			msg:  ErrorMessage{Message: "destination rejected stream"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			if !bytes.HasSuffix(data, []byte("\n")) {
				t.Errorf("Expected newline-terminated message, got %q", data)
			}

			decoded, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !reflect.DeepEqual(decoded, tt.msg) {
				t.Errorf("Round trip mismatch: sent %+v, got %+v", tt.msg, decoded)
			}
		})
	}
}

func TestEncodeEnvelopeShape(t *testing.T) {
	data, err := Encode(AudioStart{Rate: 8000, Width: 2, Channels: 1, Mode: "microphone"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(bytes.TrimRight(data, "\n"), &env); err != nil {
		t.Fatalf("Envelope is not valid JSON: %v", err)
	}

	if env.Type != TypeAudioStart {
		t.Errorf("Expected type %q, got %q", TypeAudioStart, env.Type)
	}
	if len(env.Data) == 0 {
		t.Error("Expected non-empty data payload")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantUnknown bool
		errorMsg    string
	}{
		{
			name:     "not json",
			data:     "hello\n",
			errorMsg: "failed to parse control envelope",
		},
		{
			name:     "missing type",
			data:     `{"data":{}}`,
			errorMsg: "missing type field",
		},
		{
			name:        "unknown type ignored as forward compatible",
			data:        `{"type":"relay_stats_v2","data":{}}`,
			wantUnknown: true,
		},
		{
			name:     "missing data payload",
			data:     `{"type":"relay_status"}`,
			errorMsg: "missing data payload",
		},
		{
			name:     "malformed payload shape",
			data:     `{"type":"relay_status","data":{"destinations":"nope"}}`,
			errorMsg: "failed to parse relay_status payload",
		},
		{
			name:     "malformed audio-start payload",
			data:     `{"type":"audio-start","data":{"rate":"fast"}}`,
			errorMsg: "failed to parse audio-start payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected error but got none")
			}

			if tt.wantUnknown {
				if !errors.Is(err, ErrUnknownType) {
					t.Errorf("Expected ErrUnknownType, got %v", err)
				}
				return
			}

			if errors.Is(err, ErrUnknownType) {
				t.Errorf("Did not expect ErrUnknownType, got %v", err)
			}
			if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestBuildEndpointURL(t *testing.T) {
	dests := []Destination{
		{Name: "transcriber", URL: "wss://transcribe.example.com/ingest"},
		{Name: "archive", URL: "wss://archive.example.com/v1"},
	}

	endpoint, err := BuildEndpointURL("wss://relay.example.com/stream", dests, "secret token", "pixel-7")
	if err != nil {
		t.Fatalf("BuildEndpointURL failed: %v", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		t.Fatalf("Result is not a valid URL: %v", err)
	}

	q := u.Query()
	if got := q.Get("token"); got != "secret token" {
		t.Errorf("Expected token to round trip, got %q", got)
	}
	if got := q.Get("device_name"); got != "pixel-7" {
		t.Errorf("Expected device_name 'pixel-7', got %q", got)
	}

	var decoded []Destination
	if err := json.Unmarshal([]byte(q.Get("destinations")), &decoded); err != nil {
		t.Fatalf("destinations parameter is not valid JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded, dests) {
		t.Errorf("Expected destinations %+v, got %+v", dests, decoded)
	}

	// The raw query must carry the destination JSON percent-encoded.
	if strings.Contains(u.RawQuery, `{"name"`) {
		t.Errorf("Expected percent-encoded destinations, raw query was %q", u.RawQuery)
	}
}

func TestBuildEndpointURLValidation(t *testing.T) {
	valid := []Destination{{Name: "a", URL: "wss://a.example.com"}}

	tests := []struct {
		name     string
		base     string
		dests    []Destination
		errorMsg string
	}{
		{
			name:     "empty base",
			base:     "",
			dests:    valid,
			errorMsg: "relay endpoint cannot be empty",
		},
		{
			name:     "no destinations",
			base:     "wss://relay.example.com",
			dests:    nil,
			errorMsg: "destination list cannot be empty",
		},
		{
			name:     "destination without name",
			base:     "wss://relay.example.com",
			dests:    []Destination{{URL: "wss://a.example.com"}},
			errorMsg: "name cannot be empty",
		},
		{
			name:     "destination without url",
			base:     "wss://relay.example.com",
			dests:    []Destination{{Name: "a"}},
			errorMsg: "url cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildEndpointURL(tt.base, tt.dests, "tok", "dev")
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}
