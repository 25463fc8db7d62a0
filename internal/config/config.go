package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/audio-relay-service/internal/audio"
)

// Config represents the complete streamer configuration.
type Config struct {
	Relay   RelayConfig   `yaml:"relay"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Audio   AudioConfig   `yaml:"audio"`
	Session SessionConfig `yaml:"session"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// RelayConfig contains relay connection parameters.
type RelayConfig struct {
	Endpoint                 string `yaml:"endpoint"`
	Token                    string `yaml:"token"`
	DeviceName               string `yaml:"device_name"`
	StabilizationDelayMs     int    `yaml:"stabilization_delay_ms"`
	HealthCheckInterval      int    `yaml:"health_check_interval"` // seconds
	ReconnectBackoffMs       int    `yaml:"reconnect_backoff_ms"`
	ReconnectBackoffMaxMs    int    `yaml:"reconnect_backoff_max_ms"`
	MaxConsecutiveReconnects int    `yaml:"max_consecutive_reconnects"`
	SendTimeoutMs            int    `yaml:"send_timeout_ms"`
}

// BufferConfig contains outage buffer parameters.
type BufferConfig struct {
	Capacity   int    `yaml:"capacity"`
	DropPolicy string `yaml:"drop_policy"` // "drop_oldest" or "drop_newest"
}

// AudioConfig describes the capture format advertised to the relay.
type AudioConfig struct {
	SampleRate  int    `yaml:"sample_rate"`
	SampleWidth int    `yaml:"sample_width"` // bytes per sample
	Channels    int    `yaml:"channels"`
	Mode        string `yaml:"mode"` // e.g. "microphone"
	Codec       string `yaml:"codec"`
	ChunkMs     int    `yaml:"chunk_ms"` // capture chunk duration
}

// SessionConfig contains session record retention parameters.
type SessionConfig struct {
	RetainRecords int `yaml:"retain_records"`
}

// HTTPConfig contains the monitoring HTTP server configuration.
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of the full configuration.
func (c *Config) Validate() error {
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}

	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates relay connection configuration.
func (r *RelayConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.DeviceName == "" {
		return fmt.Errorf("device_name cannot be empty")
	}

	if r.StabilizationDelayMs < 0 {
		return fmt.Errorf("stabilization_delay_ms cannot be negative, got %d", r.StabilizationDelayMs)
	}

	if r.HealthCheckInterval < 1 {
		return fmt.Errorf("health_check_interval must be at least 1 second, got %d", r.HealthCheckInterval)
	}

	if r.ReconnectBackoffMs < 1 {
		return fmt.Errorf("reconnect_backoff_ms must be at least 1, got %d", r.ReconnectBackoffMs)
	}

	if r.ReconnectBackoffMaxMs < r.ReconnectBackoffMs {
		return fmt.Errorf("reconnect_backoff_max_ms (%d) must be at least reconnect_backoff_ms (%d)",
			r.ReconnectBackoffMaxMs, r.ReconnectBackoffMs)
	}

	if r.MaxConsecutiveReconnects < 1 {
		return fmt.Errorf("max_consecutive_reconnects must be at least 1, got %d", r.MaxConsecutiveReconnects)
	}

	if r.SendTimeoutMs < 1 {
		return fmt.Errorf("send_timeout_ms must be at least 1, got %d", r.SendTimeoutMs)
	}

	return nil
}

// Validate validates buffer configuration.
func (b *BufferConfig) Validate() error {
	if b.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", b.Capacity)
	}

	if !audio.IsValidDropPolicy(audio.DropPolicy(b.DropPolicy)) {
		return fmt.Errorf("drop_policy must be 'drop_oldest' or 'drop_newest', got %q", b.DropPolicy)
	}

	return nil
}

// Validate validates audio format configuration.
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.SampleWidth != 1 && a.SampleWidth != 2 && a.SampleWidth != 4 {
		return fmt.Errorf("sample_width must be 1, 2 or 4 bytes, got %d", a.SampleWidth)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.Mode == "" {
		return fmt.Errorf("mode cannot be empty")
	}

	if a.Codec == "" {
		return fmt.Errorf("codec cannot be empty")
	}

	if a.ChunkMs < 10 || a.ChunkMs > 1000 {
		return fmt.Errorf("chunk_ms must be between 10 and 1000, got %d", a.ChunkMs)
	}

	return nil
}

// Validate validates session configuration.
func (s *SessionConfig) Validate() error {
	if s.RetainRecords < 1 {
		return fmt.Errorf("retain_records must be at least 1, got %d", s.RetainRecords)
	}

	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetStabilizationDelay returns the post-open stabilization delay.
func (r *RelayConfig) GetStabilizationDelay() time.Duration {
	return time.Duration(r.StabilizationDelayMs) * time.Millisecond
}

// GetHealthCheckInterval returns the health-check timeout as a time.Duration.
func (r *RelayConfig) GetHealthCheckInterval() time.Duration {
	return time.Duration(r.HealthCheckInterval) * time.Second
}

// GetReconnectBackoff returns the initial reconnect backoff.
func (r *RelayConfig) GetReconnectBackoff() time.Duration {
	return time.Duration(r.ReconnectBackoffMs) * time.Millisecond
}

// GetReconnectBackoffMax returns the backoff cap.
func (r *RelayConfig) GetReconnectBackoffMax() time.Duration {
	return time.Duration(r.ReconnectBackoffMaxMs) * time.Millisecond
}

// GetSendTimeout returns the per-message write timeout.
func (r *RelayConfig) GetSendTimeout() time.Duration {
	return time.Duration(r.SendTimeoutMs) * time.Millisecond
}

// GetChunkDuration returns the capture chunk duration.
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkMs) * time.Millisecond
}

// GetDropPolicy returns the buffer overflow policy.
func (b *BufferConfig) GetDropPolicy() audio.DropPolicy {
	return audio.DropPolicy(b.DropPolicy)
}
