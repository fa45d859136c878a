// Package rasta is the public facade above the redundancy and safety
// layers: SrInterface in the component design. It is intentionally thin
// — it owns one safety.StateMachine, safety.SendBuffer and
// safety.MessageCodec per connection and drives them with the platform
// adapter and redundancy.Core given at construction. Transport channels
// and the notification adapter are wired into redundancy.Core by its own
// constructor, not by this package.
package rasta

import (
	"github.com/sbb-digital/go-rasta/platform"
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/redundancy"
	"github.com/sbb-digital/go-rasta/safety"
)

// DataAdapter receives application payloads once a connection's SafRetL
// stream has decoded and ordered them. This is the seam application code
// sits on, distinct from notify.Adapter which reports redundancy-layer
// events RedCore itself produces.
type DataAdapter interface {
	ApplicationMessageReceived(connectionID uint32, payload []byte)
}

// Connection is one SafRetL connection riding over a single redundancy
// channel.
type Connection struct {
	id           uint32
	peerID       uint32
	redChannelID uint32

	codec   *safety.MessageCodec
	sendBuf *safety.SendBuffer
	sm      *safety.StateMachine

	seqTx uint32
	seqRx uint32

	heartbeatIntervalMs uint32
	lastActivityMs       uint32
}

// Interface is the SrInterface facade: OpenConnection, SendData, Close,
// HandleReceivedRedundancyPayload and Tick, operating over any number of
// connections multiplexed across the redundancy channels RedCore
// manages.
type Interface struct {
	core     *redundancy.Core
	platform platform.Adapter
	data     DataAdapter
	conns    map[uint32]*Connection // keyed by local connection id
}

// NewInterface builds an Interface bound to core, using plat for timing
// and data for delivering decoded application payloads upward.
func NewInterface(core *redundancy.Core, plat platform.Adapter, data DataAdapter) *Interface {
	return &Interface{
		core:     core,
		platform: plat,
		data:     data,
		conns:    make(map[uint32]*Connection),
	}
}

// OpenConnection starts a new connection identified by localID against
// peerID over redChannelID, queues its ConnReq and opens the redundancy
// channel if this is the first connection using it.
func (i *Interface) OpenConnection(redChannelID, localID, peerID uint32, cfg safety.Config, heartbeatIntervalMs uint32) error {
	if _, exists := i.conns[localID]; exists {
		return raerr.Raise(i.platform, raerr.Newf(raerr.InvalidParameter, "connection %d already open", localID))
	}

	needsChannelInit := !i.redChannelInUse(redChannelID)

	codec := safety.NewMessageCodec(i.platform)
	if err := codec.Init(cfg); err != nil {
		return err
	}

	conn := &Connection{
		id:                  localID,
		peerID:              peerID,
		redChannelID:        redChannelID,
		codec:               codec,
		sendBuf:             safety.NewSendBuffer(i.platform),
		sm:                  safety.NewStateMachine(3),
		heartbeatIntervalMs: heartbeatIntervalMs,
		lastActivityMs:      i.platform.TimerValueMs(),
	}
	i.conns[localID] = conn

	conn.sm.Handle(safety.EventOpen) // Closed -> Down
	conn.sm.Handle(safety.EventOpen) // Down -> Start, sends ConnReq

	if needsChannelInit {
		if err := i.core.InitRedundancyChannelData(redChannelID); err != nil {
			return err
		}
	}

	connReq := safety.Message{
		Type:           safety.ConnReq,
		ReceiverID:     peerID,
		SenderID:       localID,
		SequenceNumber: conn.seqTx,
		Timestamp:      i.platform.TimerValueMs(),
	}
	conn.seqTx++
	return conn.sendBuf.AddToBuffer(connReq)
}

// SendData queues payload for delivery on the connection identified by
// localID.
func (i *Interface) SendData(localID uint32, payload []byte) error {
	conn, err := i.connection(localID)
	if err != nil {
		return err
	}
	msg := safety.Message{
		Type:                    safety.Data,
		ReceiverID:              conn.peerID,
		SenderID:                conn.id,
		SequenceNumber:          conn.seqTx,
		ConfirmedSequenceNumber: conn.seqRx,
		Timestamp:               i.platform.TimerValueMs(),
		Payload:                 payload,
	}
	conn.seqTx++
	conn.sm.Handle(safety.EventSendData)
	return conn.sendBuf.AddToBuffer(msg)
}

// Close signals the connection closed, queuing a DiscReq.
func (i *Interface) Close(localID uint32) error {
	conn, err := i.connection(localID)
	if err != nil {
		return err
	}
	disc := safety.Message{
		Type:           safety.DiscReq,
		ReceiverID:     conn.peerID,
		SenderID:       conn.id,
		SequenceNumber: conn.seqTx,
		Timestamp:      i.platform.TimerValueMs(),
	}
	conn.seqTx++
	if err := conn.sendBuf.AddToBuffer(disc); err != nil {
		return err
	}
	conn.sm.Handle(safety.EventClose)
	return nil
}

// HandleReceivedRedundancyPayload decodes one SafRetL PDU delivered by
// the redundancy layer's receive buffer for localID's connection and
// reacts to it: advances seq_rx, drives the connection state machine,
// and forwards Data payloads to the DataAdapter.
func (i *Interface) HandleReceivedRedundancyPayload(localID uint32, payload []byte) error {
	conn, err := i.connection(localID)
	if err != nil {
		return err
	}
	msg, err := conn.codec.Decode(payload)
	if err != nil {
		return nil // malformed/unauthenticated PDU: drop silently
	}

	switch msg.Type {
	case safety.ConnResp:
		conn.sm.Handle(safety.EventConnRespReceived)
	case safety.Data, safety.RetrData:
		conn.sm.Handle(safety.EventReceivedData)
		if msg.SequenceNumber == conn.seqRx {
			conn.seqRx++
			if i.data != nil {
				i.data.ApplicationMessageReceived(localID, msg.Payload)
			}
		}
	case safety.Heartbeat:
		conn.sm.Handle(safety.EventReceivedData)
	case safety.RetrReq:
		conn.sm.Handle(safety.EventRetrReqReceived)
		next, err := conn.sendBuf.PrepareBufferForRetransmission(msg.ConfirmedSequenceNumber, safety.RetransmissionTemplate{
			SequenceNumber: conn.seqTx,
			ReceiverID:     conn.peerID,
			SenderID:       conn.id,
		})
		if err != nil {
			return err
		}
		conn.seqTx = next
	case safety.DiscReq:
		conn.sm.Handle(safety.EventClose)
	}
	conn.lastActivityMs = i.platform.TimerValueMs()
	return nil
}

// Tick drains every connection's receive buffer, emits a heartbeat on an
// Up connection when the heartbeat interval has elapsed since the last
// received PDU or the last heartbeat it emitted, hands pending
// outbound messages down to RedCore, and runs the redundancy layer's own
// CheckTimings.
func (i *Interface) Tick() error {
	for localID, conn := range i.conns {
		for {
			payload, err := i.core.ReadFromReceiveBuffer(conn.redChannelID)
			if err != nil {
				break
			}
			if err := i.HandleReceivedRedundancyPayload(localID, payload); err != nil {
				return err
			}
		}

		if conn.sm.State() == safety.StateUp {
			now := i.platform.TimerValueMs()
			if now-conn.lastActivityMs >= conn.heartbeatIntervalMs {
				hb := safety.Message{
					Type:                    safety.Heartbeat,
					ReceiverID:              conn.peerID,
					SenderID:                conn.id,
					SequenceNumber:          conn.seqTx,
					ConfirmedSequenceNumber: conn.seqRx,
					Timestamp:               now,
				}
				conn.seqTx++
				if err := conn.sendBuf.AddToBuffer(hb); err != nil {
					return err
				}
				conn.lastActivityMs = now
			}
		}

		for conn.sendBuf.GetNumberOfMessagesToSend() > 0 {
			msg, err := conn.sendBuf.ReadMessageToSend()
			if err != nil {
				break
			}
			raw, err := conn.codec.Encode(msg)
			if err != nil {
				return err
			}
			if err := i.core.WriteMessagePayloadToSendBuffer(conn.redChannelID, raw); err != nil {
				return err
			}
			if err := i.core.SendMessage(conn.redChannelID); err != nil {
				return err
			}
		}
	}
	return i.core.CheckTimings()
}

func (i *Interface) redChannelInUse(redChannelID uint32) bool {
	for _, conn := range i.conns {
		if conn.redChannelID == redChannelID {
			return true
		}
	}
	return false
}

func (i *Interface) connection(localID uint32) (*Connection, error) {
	conn, ok := i.conns[localID]
	if !ok {
		return nil, raerr.Raise(i.platform, raerr.Newf(raerr.InvalidParameter, "no open connection %d", localID))
	}
	return conn, nil
}
