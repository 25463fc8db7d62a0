// Package server provides the HTTP API for monitoring the relay streamer:
// health, session status and history, sanitized configuration and Prometheus
// metrics.
package server
