// Package relay owns the physical connection to the relay endpoint. It runs
// the connection state machine, the control-message protocol, the health-check
// timer and the automatic reconnection loop, and tracks per-destination
// fan-out status reported by the relay.
package relay
