// Package redundancy implements the RaSTA Redundancy Layer core: the
// message codec, defer queue, receive buffer, per-channel state machine,
// diagnostics window and the RedCore orchestrator that merges duplicated
// transport-channel streams into a single in-order stream per redundancy
// channel.
package redundancy

import "github.com/sbb-digital/go-rasta/checkcode"

// ChannelConfig describes one redundancy channel and the transport
// channels multiplexed under it.
type ChannelConfig struct {
	RedChannelID        uint32
	TransportChannelIDs []uint32
}

// Config is the immutable, process-lifetime redundancy layer configuration.
// It is validated by Diagnostics.ValidateConfiguration before Core.Init
// accepts it.
type Config struct {
	CheckCodeType    checkcode.Type
	TSeqMs           uint32
	NDiagnosis       uint32
	NDeferQueueSize  uint32
	RedundancyChannels []ChannelConfig
}

// Configuration bounds for Config's fields.
const (
	TSeqMsMin          = 50
	TSeqMsMax          = 500
	NDiagnosisMin      = 10
	NDiagnosisMax      = 1000
	NDeferQueueSizeMin = 4
	NDeferQueueSizeMax = 10
	RedundancyChannelsMin = 1
	RedundancyChannelsMax = 2
	TransportChannelsPerRedMin = 1
	TransportChannelsPerRedMax = 2

	// PayloadSizeMin/Max bound a redundancy-layer payload (one SafRetL
	// PDU).
	PayloadSizeMin = 28
	PayloadSizeMax = 1101

	// MessageSizeMin/Max bound a whole redundancy PDU.
	MessageSizeMin = 36
	MessageSizeMax = 1113

	// HeaderSize is the fixed 8-byte redundancy PDU header.
	HeaderSize = 8

	// NSendMax is the receive buffer capacity per channel.
	NSendMax = 20
)

// TotalTransportChannels returns the number of transport channels
// configured across every redundancy channel.
func (c Config) TotalTransportChannels() int {
	n := 0
	for _, rc := range c.RedundancyChannels {
		n += len(rc.TransportChannelIDs)
	}
	return n
}
