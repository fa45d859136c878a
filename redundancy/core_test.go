package redundancy

import (
	"testing"

	"github.com/sbb-digital/go-rasta/checkcode"
	"github.com/sbb-digital/go-rasta/notify"
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/transport"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	received    []uint32
	diagnostics int
}

func (f *fakeNotifier) MessageReceivedNotification(redChannelID uint32) {
	f.received = append(f.received, redChannelID)
}

func (f *fakeNotifier) DiagnosticNotification(redChannelID, trChannelID uint32, diag DiagnosticData) {
	f.diagnostics++
}

var _ notify.Adapter = (*fakeNotifier)(nil)

type fakeChannel struct {
	id  uint32
	out [][]byte
}

func (f *fakeChannel) ID() uint32 { return f.id }
func (f *fakeChannel) Send(data []byte) error {
	f.out = append(f.out, append([]byte(nil), data...))
	return nil
}
func (f *fakeChannel) Receive(buf []byte) (int, error) { return 0, transport.ErrNoMessageReceived }
func (f *fakeChannel) Close() error                    { return nil }

var _ transport.Channel = (*fakeChannel)(nil)

func testConfig() Config {
	return Config{
		CheckCodeType:   checkcode.A,
		TSeqMs:          100,
		NDiagnosis:      10,
		NDeferQueueSize: 4,
		RedundancyChannels: []ChannelConfig{
			{RedChannelID: 0, TransportChannelIDs: []uint32{10, 11}},
		},
	}
}

func newTestCore(t *testing.T) (*Core, *fakeNotifier) {
	t.Helper()
	clock := uint32(0)
	notifier := &fakeNotifier{}
	c := NewCore(notifier, func() uint32 { return clock }, map[uint32]transport.Channel{
		10: &fakeChannel{id: 10},
		11: &fakeChannel{id: 11},
	}, raerr.NoopFatalSink{})
	require.NoError(t, c.Init(testConfig()))
	require.NoError(t, c.InitRedundancyChannelData(0))
	return c, notifier
}

func TestCore_InOrderDelivery(t *testing.T) {
	c, notifier := newTestCore(t)
	codec := NewMessageCodec(raerr.NoopFatalSink{})
	require.NoError(t, codec.Init(checkcode.A))

	payload := make([]byte, PayloadSizeMin)
	payload[0] = 0xAB
	msg, err := codec.CreateMessage(0, payload)
	require.NoError(t, err)

	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 10, msg))
	require.NoError(t, c.ProcessReceivedMessage(0))

	got, err := c.ReadFromReceiveBuffer(0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Len(t, notifier.received, 1)
}

func TestCore_DuplicateAcrossTransportIsDropped(t *testing.T) {
	c, _ := newTestCore(t)
	codec := NewMessageCodec(raerr.NoopFatalSink{})
	require.NoError(t, codec.Init(checkcode.A))
	payload := make([]byte, PayloadSizeMin)
	msg, err := codec.CreateMessage(0, payload)
	require.NoError(t, err)

	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 10, msg))
	require.NoError(t, c.ProcessReceivedMessage(0))

	// Same sequence number arrives again on the redundant transport
	// channel.
	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 11, msg))
	require.NoError(t, c.ProcessReceivedMessage(0))

	_, err = c.ReadFromReceiveBuffer(0)
	require.NoError(t, err) // the one legitimate payload is still there

	_, err = c.ReadFromReceiveBuffer(0)
	require.Error(t, err) // the duplicate was never queued
}

func TestCore_ReorderingViaDeferQueue(t *testing.T) {
	c, _ := newTestCore(t)
	codec := NewMessageCodec(raerr.NoopFatalSink{})
	require.NoError(t, codec.Init(checkcode.A))

	p0 := make([]byte, PayloadSizeMin)
	p0[0] = 0
	p1 := make([]byte, PayloadSizeMin)
	p1[0] = 1

	msg1, err := codec.CreateMessage(1, p1)
	require.NoError(t, err)
	msg0, err := codec.CreateMessage(0, p0)
	require.NoError(t, err)

	// Sequence 1 arrives first; must be deferred since seq_rx is 0.
	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 10, msg1))
	require.NoError(t, c.ProcessReceivedMessage(0))
	_, err = c.ReadFromReceiveBuffer(0)
	require.Error(t, err)

	// Sequence 0 arrives, unblocking both.
	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 10, msg0))
	require.NoError(t, c.ProcessReceivedMessage(0))

	got0, err := c.ReadFromReceiveBuffer(0)
	require.NoError(t, err)
	require.Equal(t, p0, got0)
	got1, err := c.ReadFromReceiveBuffer(0)
	require.NoError(t, err)
	require.Equal(t, p1, got1)
}

func TestCore_WindowFilterDropsFarFutureSequence(t *testing.T) {
	c, _ := newTestCore(t)
	codec := NewMessageCodec(raerr.NoopFatalSink{})
	require.NoError(t, codec.Init(checkcode.A))

	payload := make([]byte, PayloadSizeMin)
	// window = 10 * n_defer_queue_size = 40; seq 41 is just beyond it.
	msg, err := codec.CreateMessage(41, payload)
	require.NoError(t, err)

	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 10, msg))
	require.NoError(t, c.ProcessReceivedMessage(0))

	used, err := c.UsedDeferQueueEntries(0)
	require.NoError(t, err)
	require.Equal(t, 0, used)
}

func TestCore_DeferQueueTimeoutLeavesEntryWhenOldestIsNotSeqRx(t *testing.T) {
	c, _ := newTestCore(t)
	codec := NewMessageCodec(raerr.NoopFatalSink{})
	require.NoError(t, codec.Init(checkcode.A))

	p1 := make([]byte, PayloadSizeMin)
	p1[0] = 1
	msg1, err := codec.CreateMessage(1, p1)
	require.NoError(t, err)

	// seq 1 arrives while seq_rx is still 0: deferred, not delivered.
	require.NoError(t, c.WriteReceivedMessageToInputBuffer(0, 10, msg1))
	require.NoError(t, c.ProcessReceivedMessage(0))
	used, err := c.UsedDeferQueueEntries(0)
	require.NoError(t, err)
	require.Equal(t, 1, used)

	// seq 0 never arrives; DeferQueueTimeout alone must not advance
	// seq_rx past a gap it can't fill.
	require.NoError(t, c.DeferQueueTimeout(0))
	used, err = c.UsedDeferQueueEntries(0)
	require.NoError(t, err)
	require.Equal(t, 1, used)
	_, err = c.ReadFromReceiveBuffer(0)
	require.Error(t, err)
}

func TestCore_SendMessageBroadcastsAndAdvancesSeqTx(t *testing.T) {
	ch10 := &fakeChannel{id: 10}
	ch11 := &fakeChannel{id: 11}
	clock := uint32(0)
	c := NewCore(&fakeNotifier{}, func() uint32 { return clock }, map[uint32]transport.Channel{
		10: ch10,
		11: ch11,
	}, raerr.NoopFatalSink{})
	require.NoError(t, c.Init(testConfig()))
	require.NoError(t, c.InitRedundancyChannelData(0))

	payload := make([]byte, PayloadSizeMin)
	require.NoError(t, c.WriteMessagePayloadToSendBuffer(0, payload))
	require.NoError(t, c.SendMessage(0))

	require.Len(t, ch10.out, 1)
	require.Len(t, ch11.out, 1)
	require.Equal(t, ch10.out[0], ch11.out[0])

	require.NoError(t, c.WriteMessagePayloadToSendBuffer(0, payload))
	require.NoError(t, c.SendMessage(0))
	require.Len(t, ch10.out, 2)
}

func TestCore_SendBufferFullRejectsSecondWrite(t *testing.T) {
	c, _ := newTestCore(t)
	payload := make([]byte, PayloadSizeMin)
	require.NoError(t, c.WriteMessagePayloadToSendBuffer(0, payload))
	require.Error(t, c.WriteMessagePayloadToSendBuffer(0, payload))
}

func TestCore_SendMessageWithNothingPendingIsNoMessageToSend(t *testing.T) {
	c, _ := newTestCore(t)
	require.Error(t, c.SendMessage(0))
}
