// Package session orchestrates one streaming session end to end: it routes
// captured chunks to the relay connection or the outage buffer, flushes the
// buffer after reconnects, tracks background gaps, and finalizes the session
// record exactly once with a diagnostics snapshot.
package session
