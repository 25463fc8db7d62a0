// Package audio defines the immutable audio chunk type and the bounded FIFO
// chunk buffer used while the relay transport is unavailable. The buffer has
// no knowledge of the network or the session; it only enforces capacity and
// the configured overflow policy.
package audio
