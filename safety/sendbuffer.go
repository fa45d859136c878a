package safety

import (
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/seqnum"
)

// NSendMax is the per-connection send buffer capacity.
const NSendMax = 20

// slot is one buffered outgoing SafRetL PDU.
type slot struct {
	alreadySent bool
	message     Message
}

// SendBuffer is a per-connection, capacity-bounded, insertion-ordered
// buffer of outgoing SafRetL PDUs. Entries are appended in ascending
// sequence order as the connection assigns sequence numbers, and the
// retransmission planner rebuilds the buffer in place when the peer
// requests retransmission.
type SendBuffer struct {
	slots []slot
	fatal raerr.FatalSink
}

// NewSendBuffer builds an empty SendBuffer. fatal receives every
// Fatal-classified raerr.Code this buffer produces.
func NewSendBuffer(fatal raerr.FatalSink) *SendBuffer {
	return &SendBuffer{slots: make([]slot, 0, NSendMax), fatal: fatal}
}

// AddToBuffer appends msg. SendBufferFull once the buffer holds
// NSendMax entries.
func (b *SendBuffer) AddToBuffer(msg Message) error {
	if len(b.slots) >= NSendMax {
		return raerr.Raise(b.fatal, raerr.New(raerr.SendBufferFull, "send buffer full"))
	}
	b.slots = append(b.slots, slot{message: msg})
	return nil
}

// ReadMessageToSend returns the oldest slot not yet marked sent, marking
// it sent without removing it. NoMessageToSend if every slot has
// already been sent.
func (b *SendBuffer) ReadMessageToSend() (Message, error) {
	for i := range b.slots {
		if !b.slots[i].alreadySent {
			b.slots[i].alreadySent = true
			return b.slots[i].message, nil
		}
	}
	return Message{}, raerr.New(raerr.NoMessageToSend, "no message pending to send")
}

// IsSequenceNumberInBuffer reports whether seq is currently buffered.
func (b *SendBuffer) IsSequenceNumberInBuffer(seq uint32) bool {
	for _, s := range b.slots {
		if s.message.SequenceNumber == seq {
			return true
		}
	}
	return false
}

// RemoveFromBuffer removes the slot holding seq. InvalidSequenceNumber
// if seq isn't buffered.
func (b *SendBuffer) RemoveFromBuffer(seq uint32) error {
	for i, s := range b.slots {
		if s.message.SequenceNumber == seq {
			b.slots = append(b.slots[:i], b.slots[i+1:]...)
			return nil
		}
	}
	return raerr.New(raerr.InvalidSequenceNumber, "sequence number not found in send buffer")
}

// GetUsedBufferEntries returns the number of buffered messages.
func (b *SendBuffer) GetUsedBufferEntries() int {
	return len(b.slots)
}

// GetFreeBufferEntries returns how many more messages AddToBuffer can
// accept before failing.
func (b *SendBuffer) GetFreeBufferEntries() int {
	return NSendMax - len(b.slots)
}

// GetNumberOfMessagesToSend counts slots not yet marked sent.
func (b *SendBuffer) GetNumberOfMessagesToSend() int {
	n := 0
	for _, s := range b.slots {
		if !s.alreadySent {
			n++
		}
	}
	return n
}

// RetransmissionTemplate carries the header fields a retransmission plan
// stamps onto every relocated and newly synthesized message.
type RetransmissionTemplate struct {
	SequenceNumber     uint32
	ReceiverID         uint32
	SenderID           uint32
	ConfirmedTimestamp uint32
}

// PrepareBufferForRetransmission rebuilds the send buffer in place into
// a retransmission plan following a peer's RetrReq confirming up to
// lastConfirmedSequenceNumber. It returns the sequence number the
// connection should assign to the next freshly originated message.
//
// The plan: a leading RetrResp at template.SequenceNumber; then every
// still-buffered, already-sent slot in its original order, renumbered
// consecutively from template.SequenceNumber+1 — Data is retyped to
// RetrData, RetrData/RetrReq/Heartbeat keep their type; if none of the
// carried-forward slots was a Heartbeat, a synthetic end-of-retransmission
// Heartbeat is appended; then every still-buffered unsent slot, in
// order, renumbered to continue the same sequence. Every relocated
// slot's receiver_id, sender_id and confirmed_timestamp are rewritten
// from template; since Message is the decoded representation and the
// safety code is a function of the encoded header+payload, it is
// regenerated automatically the next time MessageCodec.Encode is called
// on each relocated message, not stored here.
func (b *SendBuffer) PrepareBufferForRetransmission(lastConfirmedSequenceNumber uint32, template RetransmissionTemplate) (uint32, error) {
	if len(b.slots) == 0 {
		return 0, raerr.New(raerr.InvalidSequenceNumber, "send buffer is empty")
	}

	oldestSent, newestSent, anySent := b.sentSequenceBounds()
	if anySent {
		floor := oldestSent - 1
		if seqnum.IsOlder(lastConfirmedSequenceNumber, floor) || seqnum.IsOlder(newestSent, lastConfirmedSequenceNumber) {
			return 0, raerr.New(raerr.InvalidSequenceNumber, "last confirmed sequence number outside buffered window")
		}
	}

	// Step 2: drop every slot confirmed by the peer.
	kept := b.slots[:0:0]
	for _, s := range b.slots {
		if s.message.SequenceNumber == lastConfirmedSequenceNumber || seqnum.IsOlder(s.message.SequenceNumber, lastConfirmedSequenceNumber) {
			continue
		}
		kept = append(kept, s)
	}

	plan := make([]slot, 0, len(kept)+2)
	nextSeq := template.SequenceNumber

	retrResp := Message{
		Type:                    RetrResp,
		ReceiverID:              template.ReceiverID,
		SenderID:                template.SenderID,
		SequenceNumber:          nextSeq,
		ConfirmedSequenceNumber: lastConfirmedSequenceNumber,
		ConfirmedTimestamp:      template.ConfirmedTimestamp,
	}
	plan = append(plan, slot{message: retrResp})
	nextSeq++

	sawHeartbeat := false
	var deferredUnsent []slot
	for _, s := range kept {
		if !s.alreadySent {
			deferredUnsent = append(deferredUnsent, s)
			continue
		}

		msg := s.message
		switch msg.Type {
		case Data:
			msg.Type = RetrData
		case RetrData, RetrReq:
			// keep type
		case Heartbeat:
			sawHeartbeat = true
		case ConnReq, ConnResp, RetrResp, DiscReq:
			return 0, raerr.Raise(b.fatal, raerr.Newf(raerr.InternalError, "illegal already-sent message type %s in retransmission buffer", msg.Type))
		default:
			return 0, raerr.Raise(b.fatal, raerr.Newf(raerr.InternalError, "unknown message type %d in retransmission buffer", uint16(msg.Type)))
		}

		msg.ReceiverID = template.ReceiverID
		msg.SenderID = template.SenderID
		msg.ConfirmedTimestamp = template.ConfirmedTimestamp
		msg.SequenceNumber = nextSeq
		nextSeq++
		plan = append(plan, slot{message: msg})
	}

	if !sawHeartbeat {
		hb := Message{
			Type:                    Heartbeat,
			ReceiverID:              template.ReceiverID,
			SenderID:                template.SenderID,
			SequenceNumber:          nextSeq,
			ConfirmedSequenceNumber: lastConfirmedSequenceNumber,
			ConfirmedTimestamp:      template.ConfirmedTimestamp,
		}
		plan = append(plan, slot{message: hb})
		nextSeq++
	}

	for _, s := range deferredUnsent {
		msg := s.message
		msg.ReceiverID = template.ReceiverID
		msg.SenderID = template.SenderID
		msg.ConfirmedTimestamp = template.ConfirmedTimestamp
		msg.SequenceNumber = nextSeq
		nextSeq++
		plan = append(plan, slot{message: msg})
	}

	for i := range plan {
		plan[i].alreadySent = false
	}

	b.slots = plan
	return nextSeq, nil
}

// sentSequenceBounds returns the oldest and newest sequence numbers
// among already-sent slots, under wrap-around comparison.
func (b *SendBuffer) sentSequenceBounds() (oldest, newest uint32, any bool) {
	for _, s := range b.slots {
		if !s.alreadySent {
			continue
		}
		if !any {
			oldest, newest, any = s.message.SequenceNumber, s.message.SequenceNumber, true
			continue
		}
		if seqnum.IsOlder(s.message.SequenceNumber, oldest) {
			oldest = s.message.SequenceNumber
		}
		if seqnum.IsOlder(newest, s.message.SequenceNumber) {
			newest = s.message.SequenceNumber
		}
	}
	return oldest, newest, any
}
