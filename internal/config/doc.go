// Package config provides configuration loading and validation for the audio
// relay streamer. It handles YAML-based configuration with per-section struct
// validation and duration helpers for the tuning constants of the relay
// connection and the outage buffer.
package config
