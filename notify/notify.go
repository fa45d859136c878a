// Package notify defines the callback surface RedCore and the safety
// layer use to report events upward to the embedding application:
// incoming payloads ready for delivery and periodic diagnostic reports.
package notify

import "github.com/sbb-digital/go-rasta/redundancy"

// Adapter receives redundancy-layer events. Implementations must return
// quickly; RedCore calls them synchronously from its single-threaded
// processing path.
type Adapter interface {
	// MessageReceivedNotification fires each time a payload is appended
	// to redChannelID's receive buffer.
	MessageReceivedNotification(redChannelID uint32)

	// DiagnosticNotification fires whenever a transport channel's delay
	// sampling window fills.
	DiagnosticNotification(redChannelID, trChannelID uint32, diag redundancy.DiagnosticData)
}
