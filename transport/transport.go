// Package transport defines the channel abstraction the redundancy layer
// sends and receives raw PDUs through. Each configured transport channel
// ID maps to exactly one Channel instance.
package transport

import "errors"

// ErrNoMessageReceived is returned by Receive when no datagram is
// currently available. Callers poll; it is not an error condition, just
// an empty result for this tick.
var ErrNoMessageReceived = errors.New("transport: no message received")

// Channel is one physical path a redundancy channel's duplicated PDU
// stream travels over. Implementations are expected to be non-blocking:
// Receive returns ErrNoMessageReceived immediately rather than waiting,
// so the caller's single-threaded tick loop never stalls on one channel.
type Channel interface {
	// ID returns the configured transport channel ID this Channel serves.
	ID() uint32

	// Send transmits data as a single datagram. data never exceeds one
	// redundancy PDU (at most MessageSizeMax bytes).
	Send(data []byte) error

	// Receive copies the next pending datagram into buf and returns its
	// length, or ErrNoMessageReceived if nothing is pending.
	Receive(buf []byte) (int, error)

	// Close releases the underlying transport resource.
	Close() error
}
