package redundancy

import "github.com/sbb-digital/go-rasta/raerr"

// ReceiveBuffer is a bounded FIFO of fully in-order, de-duplicated
// payloads ready for delivery to the safety layer, one queue per
// redundancy channel.
type ReceiveBuffer struct {
	capacity int
	queues   [][][]byte
	fatal    raerr.FatalSink
}

// NewReceiveBuffer builds a ReceiveBuffer for numChannels redundancy
// channels, each holding up to capacity payloads. fatal receives every
// Fatal-classified raerr.Code this buffer produces.
func NewReceiveBuffer(numChannels, capacity int, fatal raerr.FatalSink) *ReceiveBuffer {
	b := &ReceiveBuffer{
		capacity: capacity,
		queues:   make([][][]byte, numChannels),
		fatal:    fatal,
	}
	for i := range b.queues {
		b.queues[i] = make([][]byte, 0, capacity)
	}
	return b
}

// Reset empties chan's queue.
func (b *ReceiveBuffer) Reset(chanIdx int) {
	b.queues[chanIdx] = b.queues[chanIdx][:0]
}

// AddToBuffer appends payload to chan's queue. ReceiveBufferFull if the
// queue is already at capacity.
func (b *ReceiveBuffer) AddToBuffer(chanIdx int, payload []byte) error {
	if len(b.queues[chanIdx]) >= b.capacity {
		return raerr.Raise(b.fatal, raerr.New(raerr.ReceiveBufferFull, "receive buffer full"))
	}
	b.queues[chanIdx] = append(b.queues[chanIdx], payload)
	return nil
}

// ReadFromBuffer pops and returns the oldest payload in chan's queue.
// NoMessageReceived if the queue is empty.
func (b *ReceiveBuffer) ReadFromBuffer(chanIdx int) ([]byte, error) {
	q := b.queues[chanIdx]
	if len(q) == 0 {
		return nil, raerr.New(raerr.NoMessageReceived, "receive buffer empty")
	}
	payload := q[0]
	b.queues[chanIdx] = q[1:]
	return payload, nil
}

// GetFreeBufferEntries returns how many more payloads chan's queue can
// hold before AddToBuffer would fail.
func (b *ReceiveBuffer) GetFreeBufferEntries(chanIdx int) int {
	return b.capacity - len(b.queues[chanIdx])
}
