package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Relay: RelayConfig{
			Endpoint:                 "wss://relay.example.com/stream",
			Token:                    "test-token",
			DeviceName:               "test-device",
			StabilizationDelayMs:     300,
			HealthCheckInterval:      10,
			ReconnectBackoffMs:       500,
			ReconnectBackoffMaxMs:    8000,
			MaxConsecutiveReconnects: 5,
			SendTimeoutMs:            5000,
		},
		Buffer: BufferConfig{
			Capacity:   150,
			DropPolicy: "drop_oldest",
		},
		Audio: AudioConfig{
			SampleRate:  16000,
			SampleWidth: 2,
			Channels:    1,
			Mode:        "microphone",
			Codec:       "pcm_s16le",
			ChunkMs:     20,
		},
		Session: SessionConfig{
			RetainRecords: 50,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

func TestLoadValidConfig(t *testing.T) {
	content := `
relay:
  endpoint: "wss://relay.example.com/stream"
  token: "secret"
  device_name: "pixel-7"
  stabilization_delay_ms: 250
  health_check_interval: 10
  reconnect_backoff_ms: 500
  reconnect_backoff_max_ms: 8000
  max_consecutive_reconnects: 5
  send_timeout_ms: 5000
buffer:
  capacity: 150
  drop_policy: "drop_oldest"
audio:
  sample_rate: 16000
  sample_width: 2
  channels: 1
  mode: "microphone"
  codec: "pcm_s16le"
  chunk_ms: 20
session:
  retain_records: 50
http:
  port: 8080
  address: "127.0.0.1"
  enabled: true
logging:
  level: "info"
  format: "text"
  output: "stdout"
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Relay.Endpoint != "wss://relay.example.com/stream" {
		t.Errorf("Unexpected endpoint: %q", cfg.Relay.Endpoint)
	}
	if got := cfg.Relay.GetStabilizationDelay(); got != 250*time.Millisecond {
		t.Errorf("Expected stabilization delay 250ms, got %v", got)
	}
	if got := cfg.Relay.GetHealthCheckInterval(); got != 10*time.Second {
		t.Errorf("Expected health check interval 10s, got %v", got)
	}
	if got := cfg.Relay.GetReconnectBackoffMax(); got != 8*time.Second {
		t.Errorf("Expected backoff max 8s, got %v", got)
	}
	if cfg.Buffer.Capacity != 150 {
		t.Errorf("Expected buffer capacity 150, got %d", cfg.Buffer.Capacity)
	}
	if got := cfg.Audio.GetChunkDuration(); got != 20*time.Millisecond {
		t.Errorf("Expected chunk duration 20ms, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:     "valid",
			mutate:   func(c *Config) {},
			errorMsg: "",
		},
		{
			name:     "empty endpoint",
			mutate:   func(c *Config) { c.Relay.Endpoint = "" },
			errorMsg: "endpoint cannot be empty",
		},
		{
			name:     "empty device name",
			mutate:   func(c *Config) { c.Relay.DeviceName = "" },
			errorMsg: "device_name cannot be empty",
		},
		{
			name:     "negative stabilization delay",
			mutate:   func(c *Config) { c.Relay.StabilizationDelayMs = -1 },
			errorMsg: "stabilization_delay_ms cannot be negative",
		},
		{
			name:     "zero health check interval",
			mutate:   func(c *Config) { c.Relay.HealthCheckInterval = 0 },
			errorMsg: "health_check_interval must be at least 1",
		},
		{
			name:     "backoff max below initial",
			mutate:   func(c *Config) { c.Relay.ReconnectBackoffMaxMs = 100 },
			errorMsg: "reconnect_backoff_max_ms",
		},
		{
			name:     "zero max reconnects",
			mutate:   func(c *Config) { c.Relay.MaxConsecutiveReconnects = 0 },
			errorMsg: "max_consecutive_reconnects must be at least 1",
		},
		{
			name:     "zero buffer capacity",
			mutate:   func(c *Config) { c.Buffer.Capacity = 0 },
			errorMsg: "capacity must be at least 1",
		},
		{
			name:     "bad drop policy",
			mutate:   func(c *Config) { c.Buffer.DropPolicy = "drop_everything" },
			errorMsg: "drop_policy must be",
		},
		{
			name:     "bad sample rate",
			mutate:   func(c *Config) { c.Audio.SampleRate = 4000 },
			errorMsg: "sample_rate must be between",
		},
		{
			name:     "bad sample width",
			mutate:   func(c *Config) { c.Audio.SampleWidth = 3 },
			errorMsg: "sample_width must be 1, 2 or 4",
		},
		{
			name:     "bad channels",
			mutate:   func(c *Config) { c.Audio.Channels = 6 },
			errorMsg: "channels must be 1 or 2",
		},
		{
			name:     "empty mode",
			mutate:   func(c *Config) { c.Audio.Mode = "" },
			errorMsg: "mode cannot be empty",
		},
		{
			name:     "zero retained records",
			mutate:   func(c *Config) { c.Session.RetainRecords = 0 },
			errorMsg: "retain_records must be at least 1",
		},
		{
			name:     "http enabled without address",
			mutate:   func(c *Config) { c.HTTP.Address = "" },
			errorMsg: "http address cannot be empty",
		},
		{
			name:     "bad log level",
			mutate:   func(c *Config) { c.Logging.Level = "verbose" },
			errorMsg: "level must be one of",
		},
		{
			name:     "bad log format",
			mutate:   func(c *Config) { c.Logging.Format = "xml" },
			errorMsg: "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}
