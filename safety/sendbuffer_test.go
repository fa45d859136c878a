package safety

import (
	"testing"

	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/stretchr/testify/require"
)

func TestSendBuffer_AddReadRemove(t *testing.T) {
	b := NewSendBuffer(raerr.NoopFatalSink{})
	require.NoError(t, b.AddToBuffer(Message{Type: Data, SequenceNumber: 1}))
	require.Equal(t, 1, b.GetUsedBufferEntries())
	require.Equal(t, NSendMax-1, b.GetFreeBufferEntries())

	msg, err := b.ReadMessageToSend()
	require.NoError(t, err)
	require.Equal(t, uint32(1), msg.SequenceNumber)

	_, err = b.ReadMessageToSend()
	require.Error(t, err) // already sent, nothing else pending

	require.True(t, b.IsSequenceNumberInBuffer(1))
	require.NoError(t, b.RemoveFromBuffer(1))
	require.False(t, b.IsSequenceNumberInBuffer(1))
}

func TestSendBuffer_FullAfterNSendMax(t *testing.T) {
	b := NewSendBuffer(raerr.NoopFatalSink{})
	for i := uint32(0); i < NSendMax; i++ {
		require.NoError(t, b.AddToBuffer(Message{Type: Data, SequenceNumber: i}))
	}
	err := b.AddToBuffer(Message{Type: Data, SequenceNumber: NSendMax})
	require.Error(t, err)
}

func TestSendBuffer_GetNumberOfMessagesToSend(t *testing.T) {
	b := NewSendBuffer(raerr.NoopFatalSink{})
	require.NoError(t, b.AddToBuffer(Message{Type: Data, SequenceNumber: 1}))
	require.NoError(t, b.AddToBuffer(Message{Type: Data, SequenceNumber: 2}))
	require.Equal(t, 2, b.GetNumberOfMessagesToSend())

	_, err := b.ReadMessageToSend()
	require.NoError(t, err)
	require.Equal(t, 1, b.GetNumberOfMessagesToSend())
}

// buildScenario6Buffer reproduces the literal retransmission scenario:
// already-sent {Data@10, Data@11, RetrData@12, Heartbeat@13, Data@14},
// unsent {Data@15}.
func buildScenario6Buffer(t *testing.T) *SendBuffer {
	t.Helper()
	b := NewSendBuffer(raerr.NoopFatalSink{})
	seqs := []struct {
		seq  uint32
		typ  MessageType
		sent bool
	}{
		{10, Data, true},
		{11, Data, true},
		{12, RetrData, true},
		{13, Heartbeat, true},
		{14, Data, true},
		{15, Data, false},
	}
	for _, s := range seqs {
		require.NoError(t, b.AddToBuffer(Message{Type: s.typ, SequenceNumber: s.seq}))
	}
	for i := range b.slots {
		b.slots[i].alreadySent = seqs[i].sent
	}
	return b
}

func TestSendBuffer_PrepareBufferForRetransmission_Scenario6(t *testing.T) {
	b := buildScenario6Buffer(t)

	nextSeq, err := b.PrepareBufferForRetransmission(9, RetransmissionTemplate{
		SequenceNumber: 100,
		ReceiverID:     1,
		SenderID:       2,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(107), nextSeq)

	require.Equal(t, 7, b.GetUsedBufferEntries())

	wantTypes := []MessageType{RetrResp, RetrData, RetrData, RetrData, Heartbeat, RetrData, Data}
	wantSeqs := []uint32{100, 101, 102, 103, 104, 105, 106}
	for i, s := range b.slots {
		require.Equal(t, wantTypes[i], s.message.Type, "slot %d type", i)
		require.Equal(t, wantSeqs[i], s.message.SequenceNumber, "slot %d sequence", i)
		require.False(t, s.alreadySent, "slot %d should be pending (re)send", i)
		require.Equal(t, uint32(1), s.message.ReceiverID)
		require.Equal(t, uint32(2), s.message.SenderID)
	}
}

func TestSendBuffer_PrepareBufferForRetransmission_OutOfRangeConfirmFails(t *testing.T) {
	b := buildScenario6Buffer(t)
	_, err := b.PrepareBufferForRetransmission(5, RetransmissionTemplate{SequenceNumber: 100})
	require.Error(t, err)
}

func TestSendBuffer_PrepareBufferForRetransmission_RemovesConfirmedSlots(t *testing.T) {
	b := buildScenario6Buffer(t)
	// Confirm through sequence 11: slots 10 and 11 drop out before the
	// plan is built.
	nextSeq, err := b.PrepareBufferForRetransmission(11, RetransmissionTemplate{SequenceNumber: 200})
	require.NoError(t, err)

	wantTypes := []MessageType{RetrResp, RetrData, Heartbeat, RetrData, Data}
	require.Equal(t, len(wantTypes), b.GetUsedBufferEntries())
	for i, s := range b.slots {
		require.Equal(t, wantTypes[i], s.message.Type, "slot %d type", i)
	}
	require.Equal(t, uint32(200+len(wantTypes)), nextSeq)
}

func TestSendBuffer_PrepareBufferForRetransmission_SynthesizesHeartbeatWhenNoneCarried(t *testing.T) {
	b := NewSendBuffer(raerr.NoopFatalSink{})
	require.NoError(t, b.AddToBuffer(Message{Type: Data, SequenceNumber: 10}))
	require.NoError(t, b.AddToBuffer(Message{Type: Data, SequenceNumber: 11}))
	b.slots[0].alreadySent = true
	b.slots[1].alreadySent = true

	nextSeq, err := b.PrepareBufferForRetransmission(9, RetransmissionTemplate{SequenceNumber: 100})
	require.NoError(t, err)

	wantTypes := []MessageType{RetrResp, RetrData, RetrData, Heartbeat}
	require.Equal(t, len(wantTypes), b.GetUsedBufferEntries())
	for i, s := range b.slots {
		require.Equal(t, wantTypes[i], s.message.Type, "slot %d type", i)
	}
	require.Equal(t, uint32(100+len(wantTypes)), nextSeq)
}

func TestSendBuffer_PrepareBufferForRetransmission_IllegalStateIsInternalError(t *testing.T) {
	b := NewSendBuffer(raerr.NoopFatalSink{})
	require.NoError(t, b.AddToBuffer(Message{Type: ConnReq, SequenceNumber: 10}))
	b.slots[0].alreadySent = true

	_, err := b.PrepareBufferForRetransmission(9, RetransmissionTemplate{SequenceNumber: 100})
	require.Error(t, err)
}
