// Package protocol implements the relay control-message codec and endpoint
// URL construction. Control messages are newline-terminated JSON envelopes
// tagged by a type field; raw audio chunk bytes travel on the binary channel
// and are not framed by this package.
package protocol
