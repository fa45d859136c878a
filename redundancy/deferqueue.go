package redundancy

import (
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/seqnum"
)

// deferSlot holds one out-of-order redundancy PDU awaiting its turn,
// tagged with the platform timer value at insertion.
type deferSlot struct {
	used         bool
	insertTimeMs uint32
	message      Message
}

// DeferQueue is a per-redundancy-channel bounded buffer of redundancy
// PDUs whose sequence number lies in the future window. One DeferQueue
// instance holds the slots for every configured redundancy channel,
// indexed by channel position.
type DeferQueue struct {
	capacity int
	tSeqMs   uint32
	now      func() uint32
	slots    [][]deferSlot
	codec    *MessageCodec
	fatal    raerr.FatalSink
}

// NewDeferQueue builds a DeferQueue with the given per-channel capacity
// and defer timeout, for numChannels redundancy channels. fatal receives
// every Fatal-classified raerr.Code this queue produces.
func NewDeferQueue(numChannels, capacity int, tSeqMs uint32, now func() uint32, codec *MessageCodec, fatal raerr.FatalSink) *DeferQueue {
	q := &DeferQueue{
		capacity: capacity,
		tSeqMs:   tSeqMs,
		now:      now,
		slots:    make([][]deferSlot, numChannels),
		codec:    codec,
		fatal:    fatal,
	}
	for i := range q.slots {
		q.slots[i] = make([]deferSlot, capacity)
	}
	return q
}

// Reset clears every slot for chan.
func (q *DeferQueue) Reset(chanIdx int) {
	for i := range q.slots[chanIdx] {
		q.slots[chanIdx][i] = deferSlot{}
	}
}

// Add inserts msg into chan's queue. If the queue is full, the oldest
// slot (by wrap-around sequence order) is overwritten; otherwise the
// first unused slot is taken.
func (q *DeferQueue) Add(chanIdx int, msg Message) {
	slots := q.slots[chanIdx]

	for i := range slots {
		if !slots[i].used {
			slots[i] = deferSlot{used: true, insertTimeMs: q.now(), message: msg}
			return
		}
	}

	oldest := q.oldestIndexLocked(chanIdx)
	slots[oldest] = deferSlot{used: true, insertTimeMs: q.now(), message: msg}
}

// Contains reports whether chan's queue already holds a PDU with sequence
// number seq.
func (q *DeferQueue) Contains(chanIdx int, seq uint32) bool {
	for _, s := range q.slots[chanIdx] {
		if s.used {
			if n, err := q.codec.GetSequenceNumber(s.message); err == nil && n == seq {
				return true
			}
		}
	}
	return false
}

// Get finds and removes the slot matching seq, returning its message.
// InvalidSequenceNumber if no such slot exists.
func (q *DeferQueue) Get(chanIdx int, seq uint32) (Message, error) {
	slots := q.slots[chanIdx]
	for i := range slots {
		if slots[i].used {
			if n, err := q.codec.GetSequenceNumber(slots[i].message); err == nil && n == seq {
				msg := slots[i].message
				slots[i] = deferSlot{}
				return msg, nil
			}
		}
	}
	return Message{}, raerr.Raise(q.fatal, raerr.New(raerr.InvalidSequenceNumber, "sequence number not found in defer queue"))
}

// IsTimeout reports whether the oldest used slot (by insertion order) is
// at least TSeqMs old; false when the queue is empty.
func (q *DeferQueue) IsTimeout(chanIdx int) bool {
	slots := q.slots[chanIdx]
	oldestTime, any := uint32(0), false
	for _, s := range slots {
		if s.used && (!any || s.insertTimeMs < oldestTime) {
			oldestTime = s.insertTimeMs
			any = true
		}
	}
	if !any {
		return false
	}
	return q.now()-oldestTime >= q.tSeqMs
}

// GetOldestSequenceNumber returns the sequence number of the used slot
// whose sequence is oldest under wrap-around comparison. DeferQueueEmpty
// if the queue holds nothing.
func (q *DeferQueue) GetOldestSequenceNumber(chanIdx int) (uint32, error) {
	idx := q.oldestIndexLocked(chanIdx)
	if idx < 0 {
		return 0, raerr.Raise(q.fatal, raerr.New(raerr.DeferQueueEmpty, "defer queue is empty"))
	}
	seq, err := q.codec.GetSequenceNumber(q.slots[chanIdx][idx].message)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// GetUsedEntries counts the used slots in chan's queue.
func (q *DeferQueue) GetUsedEntries(chanIdx int) int {
	n := 0
	for _, s := range q.slots[chanIdx] {
		if s.used {
			n++
		}
	}
	return n
}

// oldestIndexLocked returns the index of the used slot holding the
// wrap-around-oldest sequence number, or -1 if every slot is unused (or
// sequence numbers cannot be read, which cannot happen for messages this
// queue accepted).
func (q *DeferQueue) oldestIndexLocked(chanIdx int) int {
	slots := q.slots[chanIdx]
	best := -1
	var bestSeq uint32
	for i, s := range slots {
		if !s.used {
			continue
		}
		seq, err := q.codec.GetSequenceNumber(s.message)
		if err != nil {
			continue
		}
		if best == -1 || seqnum.IsOlder(seq, bestSeq) {
			best = i
			bestSeq = seq
		}
	}
	return best
}
