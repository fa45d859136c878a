package rasta

import (
	"testing"

	"github.com/sbb-digital/go-rasta/checkcode"
	"github.com/sbb-digital/go-rasta/logx"
	"github.com/sbb-digital/go-rasta/md4"
	"github.com/sbb-digital/go-rasta/notify"
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/redundancy"
	"github.com/sbb-digital/go-rasta/safety"
	"github.com/sbb-digital/go-rasta/transport"
	"github.com/stretchr/testify/require"
)

type loopChannel struct {
	id   uint32
	peer *loopChannel
	msgs [][]byte
}

func (c *loopChannel) ID() uint32 { return c.id }
func (c *loopChannel) Send(data []byte) error {
	c.peer.msgs = append(c.peer.msgs, append([]byte(nil), data...))
	return nil
}
func (c *loopChannel) Receive(buf []byte) (int, error) {
	if len(c.msgs) == 0 {
		return 0, transport.ErrNoMessageReceived
	}
	n := copy(buf, c.msgs[0])
	c.msgs = c.msgs[1:]
	return n, nil
}
func (c *loopChannel) Close() error { return nil }

var _ transport.Channel = (*loopChannel)(nil)

type recordingDataAdapter struct {
	delivered [][]byte
}

func (r *recordingDataAdapter) ApplicationMessageReceived(connectionID uint32, payload []byte) {
	r.delivered = append(r.delivered, payload)
}

func newLoopCore(t *testing.T, clock *uint32) *redundancy.Core {
	t.Helper()
	cfg := redundancy.Config{
		CheckCodeType:   checkcode.A,
		TSeqMs:          100,
		NDiagnosis:      10,
		NDeferQueueSize: 4,
		RedundancyChannels: []redundancy.ChannelConfig{
			{RedChannelID: 0, TransportChannelIDs: []uint32{10}},
		},
	}
	ch := &loopChannel{id: 10}
	ch.peer = ch // looped to itself: messages sent are immediately receivable
	core := redundancy.NewCore(notify.NewLogAdapter(logx.Noop{}), func() uint32 { return *clock }, map[uint32]transport.Channel{10: ch}, raerr.NoopFatalSink{})
	require.NoError(t, core.Init(cfg))
	return core
}

func TestInterface_OpenConnectionQueuesConnReq(t *testing.T) {
	clock := uint32(0)
	core := newLoopCore(t, &clock)
	data := &recordingDataAdapter{}
	iface := NewInterface(core, testPlatform{now: &clock}, data)

	cfg := safety.Config{IV: md4.DefaultIV, SafetyCodeType: safety.SafetyCodeNone}
	require.NoError(t, iface.OpenConnection(0, 100, 200, cfg, 1000))

	conn := iface.conns[100]
	require.Equal(t, safety.StateStart, conn.sm.State())
	require.Equal(t, 1, conn.sendBuf.GetNumberOfMessagesToSend())
}

func TestInterface_SendDataQueuesDataMessage(t *testing.T) {
	clock := uint32(0)
	core := newLoopCore(t, &clock)
	iface := NewInterface(core, testPlatform{now: &clock}, nil)

	cfg := safety.Config{IV: md4.DefaultIV, SafetyCodeType: safety.SafetyCodeNone}
	require.NoError(t, iface.OpenConnection(0, 100, 200, cfg, 1000))

	payload := make([]byte, safety.PayloadSizeMin)
	require.NoError(t, iface.SendData(100, payload))

	require.Equal(t, 2, iface.conns[100].sendBuf.GetNumberOfMessagesToSend())
}

func TestInterface_TickDrainsSendBufferThroughRedCore(t *testing.T) {
	clock := uint32(0)
	core := newLoopCore(t, &clock)
	iface := NewInterface(core, testPlatform{now: &clock}, nil)

	cfg := safety.Config{IV: md4.DefaultIV, SafetyCodeType: safety.SafetyCodeNone}
	require.NoError(t, iface.OpenConnection(0, 100, 200, cfg, 1000))

	require.NoError(t, iface.Tick())

	conn := iface.conns[100]
	require.Equal(t, 0, conn.sendBuf.GetNumberOfMessagesToSend())
}

type testPlatform struct {
	now    *uint32
	fatals *[]raerr.Code
}

func (p testPlatform) TimerValueMs() uint32       { return *p.now }
func (p testPlatform) TimerGranularityMs() uint32 { return 1 }
func (p testPlatform) RandomUint32() uint32       { return 42 }
func (p testPlatform) FatalError(code raerr.Code, detail string) {
	if p.fatals != nil {
		*p.fatals = append(*p.fatals, code)
	}
}

func TestInterface_FatalErrorRoutedToPlatformOnDuplicateOpen(t *testing.T) {
	clock := uint32(0)
	core := newLoopCore(t, &clock)
	var fatals []raerr.Code
	iface := NewInterface(core, testPlatform{now: &clock, fatals: &fatals}, nil)

	cfg := safety.Config{IV: md4.DefaultIV, SafetyCodeType: safety.SafetyCodeNone}
	require.NoError(t, iface.OpenConnection(0, 100, 200, cfg, 1000))

	err := iface.OpenConnection(0, 100, 200, cfg, 1000)
	require.Error(t, err)
	require.Equal(t, []raerr.Code{raerr.InvalidParameter}, fatals)
}
