// Package seqnum holds the single wrap-around comparison predicate used
// throughout the redundancy and safety/retransmission layers for u32
// sequence numbers. Every ordering comparison in RedCore, DeferQueue and
// SendBuffer delegates to it so the wrap-around rule is defined in exactly
// one place.
package seqnum

// IsOlder reports whether a is strictly older than b in modulo-2^32
// sequence order: true iff (b - (a + 1)) mod 2^32 < 2^31.
func IsOlder(a, b uint32) bool {
	return b-(a+1) < 1<<31
}

// Distance returns how many sequence numbers newer than a, b is, under
// wrap-around: b - a modulo 2^32, as an unsigned count.
func Distance(a, b uint32) uint32 {
	return b - a
}
