package redundancy

import (
	"github.com/sbb-digital/go-rasta/notify"
	"github.com/sbb-digital/go-rasta/raerr"
	"github.com/sbb-digital/go-rasta/seqnum"
	"github.com/sbb-digital/go-rasta/transport"
)

// channelData is the per-redundancy-channel state RedCore maintains:
// sequence counters, pending input/send buffers and transport-channel
// pending flags.
type channelData struct {
	redChannelID uint32
	trChannelIDs []uint32

	seqRx uint32
	seqTx uint32

	inputBufferHasMessage bool
	inputBufferMessage    Message
	inputBufferTrID       uint32

	sendBufferHasMessage bool
	sendBufferPayload    []byte

	pending map[uint32]bool

	state *StateMachine
}

// Core is the redundancy layer orchestrator: RedCore in the component
// design. It merges the duplicated, per-transport-channel PDU streams of
// each redundancy channel into one de-duplicated, in-order payload
// stream, and fans payloads to send back out across every transport
// channel under that redundancy channel.
type Core struct {
	initialized bool
	cfg         Config
	codec       *MessageCodec
	diag        *Diagnostics
	deferQueue  *DeferQueue
	recvBuffer  *ReceiveBuffer
	notifier    notify.Adapter
	channels    []*channelData
	chanIndex   map[uint32]int // redChannelID -> index into channels
	trToChanIdx map[uint32]int // transport channel ID -> index into channels
	trChannels  map[uint32]transport.Channel
	now         func() uint32
	lastArrival map[uint32]uint32
	fatal       raerr.FatalSink
}

// NewCore builds an uninitialized Core. Call Init before any other
// method. fatal receives every Fatal-classified raerr.Code this Core (and
// the message codec, defer queue and receive buffer it owns) produces,
// per raerr.Raise's routing policy.
func NewCore(notifier notify.Adapter, now func() uint32, trChannels map[uint32]transport.Channel, fatal raerr.FatalSink) *Core {
	return &Core{
		notifier:    notifier,
		now:         now,
		trChannels:  trChannels,
		lastArrival: make(map[uint32]uint32),
		fatal:       fatal,
	}
}

// windowFactor bounds how far into the future (as a multiple of
// n_defer_queue_size) a sequence number may lie before it's treated as
// noise and dropped without updating diagnostics.
const windowFactor = 10

// Init validates cfg, then constructs the message codec, diagnostics,
// defer queues and receive buffers for every configured redundancy
// channel. A second call fails with AlreadyInitialized.
func (c *Core) Init(cfg Config) error {
	if c.initialized {
		return raerr.Raise(c.fatal, raerr.New(raerr.AlreadyInitialized, "redundancy core already initialized"))
	}
	if err := ValidateConfiguration(cfg); err != nil {
		return err
	}

	codec := NewMessageCodec(c.fatal)
	if err := codec.Init(cfg.CheckCodeType); err != nil {
		return err
	}

	c.cfg = cfg
	c.codec = codec
	c.diag = NewDiagnostics(cfg)
	c.deferQueue = NewDeferQueue(len(cfg.RedundancyChannels), int(cfg.NDeferQueueSize), cfg.TSeqMs, c.now, codec, c.fatal)
	c.recvBuffer = NewReceiveBuffer(len(cfg.RedundancyChannels), NSendMax, c.fatal)
	c.chanIndex = make(map[uint32]int, len(cfg.RedundancyChannels))
	c.trToChanIdx = make(map[uint32]int)
	c.channels = make([]*channelData, len(cfg.RedundancyChannels))

	for i, rc := range cfg.RedundancyChannels {
		cd := &channelData{
			redChannelID: rc.RedChannelID,
			trChannelIDs: append([]uint32(nil), rc.TransportChannelIDs...),
			pending:      make(map[uint32]bool, len(rc.TransportChannelIDs)),
			state:        NewStateMachine(),
		}
		c.channels[i] = cd
		c.chanIndex[rc.RedChannelID] = i
		for _, trID := range rc.TransportChannelIDs {
			c.trToChanIdx[trID] = i
		}
	}

	c.initialized = true
	return nil
}

// InitRedundancyChannelData zeros sequence counters, pending flags and
// both message buffers for R, and opens its state machine.
func (c *Core) InitRedundancyChannelData(redChannelID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	cd.seqRx = 0
	cd.seqTx = 0
	cd.inputBufferHasMessage = false
	cd.sendBufferHasMessage = false
	cd.sendBufferPayload = nil
	for trID := range cd.pending {
		cd.pending[trID] = false
	}
	idx := c.chanIndex[redChannelID]
	c.deferQueue.Reset(idx)
	c.recvBuffer.Reset(idx)
	cd.state.Handle(EventOpen)
	return nil
}

// GetAssociatedRedundancyChannel looks up the redundancy channel ID that
// transport channel trID belongs to. InvalidParameter if trID is not
// configured under any redundancy channel.
func (c *Core) GetAssociatedRedundancyChannel(trID uint32) (uint32, error) {
	idx, ok := c.trToChanIdx[trID]
	if !ok {
		return 0, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "transport channel %d not configured", trID))
	}
	return c.channels[idx].redChannelID, nil
}

// WriteReceivedMessageToInputBuffer validates trID belongs to
// redChannelID and msg's wire length is in range, then stages it as the
// redundancy channel's pending input message.
func (c *Core) WriteReceivedMessageToInputBuffer(redChannelID, trID uint32, msg Message) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	if !contains(cd.trChannelIDs, trID) {
		return raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "transport channel %d not part of redundancy channel %d", trID, redChannelID))
	}
	if len(msg.Raw) < MessageSizeMin || len(msg.Raw) > MessageSizeMax {
		return raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "message size %d out of range [%d,%d]", len(msg.Raw), MessageSizeMin, MessageSizeMax))
	}
	cd.inputBufferMessage = msg
	cd.inputBufferTrID = trID
	cd.inputBufferHasMessage = true
	return nil
}

// ProcessReceivedMessage runs the core receive algorithm against
// redChannelID's pending input message: CRC check, window filter,
// diagnostics update, then in-order delivery, future-window deferral or
// silent drop.
func (c *Core) ProcessReceivedMessage(redChannelID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	if !cd.inputBufferHasMessage {
		return raerr.New(raerr.NoMessageReceived, "no message in input buffer")
	}
	idx := c.chanIndex[redChannelID]
	msg := cd.inputBufferMessage
	trID := cd.inputBufferTrID
	defer func() { cd.inputBufferHasMessage = false }()

	// Step 1: CRC check, silent drop on failure.
	if err := c.codec.CheckMessageCrc(msg); err != nil {
		return nil
	}

	// Step 2.
	s, err := c.codec.GetSequenceNumber(msg)
	if err != nil {
		return nil
	}
	expected := cd.seqRx
	window := uint32(windowFactor) * c.cfg.NDeferQueueSize
	ahead := s != expected && seqnum.IsOlder(expected, s)

	// Step 3: window filter, applies only to messages running ahead of
	// seq_rx; a message running behind falls through to diagnostics and
	// the past/duplicate branch instead.
	if ahead && seqnum.Distance(expected, s) > window {
		return nil
	}

	// Step 4: diagnostics, keyed on inter-arrival time for this
	// transport channel.
	now := c.now()
	last, hadLast := c.lastArrival[trID]
	c.lastArrival[trID] = now
	if hadLast {
		if delay, ok := c.diag.RecordDelay(trID, now-last); ok {
			c.notifier.DiagnosticNotification(redChannelID, trID, delay)
		}
	}

	payload, err := c.codec.GetPayload(msg)
	if err != nil {
		return nil
	}

	switch {
	case s == expected:
		// Step 5: in-order delivery.
		if err := c.recvBuffer.AddToBuffer(idx, payload); err != nil {
			return nil
		}
		cd.seqRx++
		c.notifier.MessageReceivedNotification(redChannelID)
		c.drainDeferQueueForward(cd, idx)
	case ahead:
		// Step 6: future in-window.
		if !c.deferQueue.Contains(idx, s) {
			c.deferQueue.Add(idx, msg)
		}
	default:
		// Step 7: past or duplicate.
	}

	return nil
}

// drainDeferQueueForward moves consecutive deferred messages into the
// receive buffer as long as their sequence number matches seqRx, without
// regard to the defer timeout (shared by ProcessReceivedMessage and
// DeferQueueTimeout).
func (c *Core) drainDeferQueueForward(cd *channelData, idx int) {
	for {
		if c.deferQueue.GetUsedEntries(idx) == 0 {
			return
		}
		oldest, err := c.deferQueue.GetOldestSequenceNumber(idx)
		if err != nil || oldest != cd.seqRx {
			return
		}
		msg, err := c.deferQueue.Get(idx, oldest)
		if err != nil {
			return
		}
		payload, err := c.codec.GetPayload(msg)
		if err != nil {
			return
		}
		if err := c.recvBuffer.AddToBuffer(idx, payload); err != nil {
			return
		}
		cd.seqRx++
		c.notifier.MessageReceivedNotification(cd.redChannelID)
	}
}

// DeferQueueTimeout moves consecutive deferred messages into the receive
// buffer while the oldest deferred sequence equals seq_rx.
func (c *Core) DeferQueueTimeout(redChannelID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	idx := c.chanIndex[redChannelID]
	c.drainDeferQueueForward(cd, idx)
	return nil
}

// WriteMessagePayloadToSendBuffer stages a SafRetL payload for
// redChannelID to be broadcast by the next SendMessage call.
// SendBufferFull if a payload is already pending.
func (c *Core) WriteMessagePayloadToSendBuffer(redChannelID uint32, payload []byte) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	if len(payload) < PayloadSizeMin || len(payload) > PayloadSizeMax {
		return raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "payload size %d out of range [%d,%d]", len(payload), PayloadSizeMin, PayloadSizeMax))
	}
	if cd.sendBufferHasMessage {
		return raerr.Raise(c.fatal, raerr.New(raerr.SendBufferFull, "send buffer already has a pending message"))
	}
	cd.sendBufferPayload = payload
	cd.sendBufferHasMessage = true
	return nil
}

// SendMessage builds a RedundancyMessage from the pending send-buffer
// payload and broadcasts the same bytes to every transport channel
// configured under redChannelID, then advances seq_tx (wrapping) and
// clears the send buffer.
func (c *Core) SendMessage(redChannelID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	if !cd.sendBufferHasMessage {
		return raerr.New(raerr.NoMessageToSend, "no message pending in send buffer")
	}

	msg, err := c.codec.CreateMessage(cd.seqTx, cd.sendBufferPayload)
	if err != nil {
		return err
	}
	for _, trID := range cd.trChannelIDs {
		ch, ok := c.trChannels[trID]
		if !ok {
			continue
		}
		if err := ch.Send(msg.Raw); err != nil {
			return err
		}
	}
	cd.seqTx++
	cd.sendBufferHasMessage = false
	cd.sendBufferPayload = nil
	return nil
}

// SetMessagePendingFlag marks trID as having data waiting to be read on
// redChannelID.
func (c *Core) SetMessagePendingFlag(redChannelID, trID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	cd.pending[trID] = true
	return nil
}

// GetMessagePendingFlag reports trID's pending flag under redChannelID.
func (c *Core) GetMessagePendingFlag(redChannelID, trID uint32) (bool, error) {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return false, err
	}
	return cd.pending[trID], nil
}

// ClearMessagePendingFlag clears trID's pending flag under redChannelID.
func (c *Core) ClearMessagePendingFlag(redChannelID, trID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	cd.pending[trID] = false
	return nil
}

// ClearInputBufferMessagePendingFlag clears redChannelID's input buffer
// occupancy flag directly, independent of ProcessReceivedMessage.
func (c *Core) ClearInputBufferMessagePendingFlag(redChannelID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	cd.inputBufferHasMessage = false
	return nil
}

// ClearSendBufferMessagePendingFlag clears redChannelID's send buffer
// occupancy flag directly, independent of SendMessage.
func (c *Core) ClearSendBufferMessagePendingFlag(redChannelID uint32) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	cd.sendBufferHasMessage = false
	return nil
}

// State returns redChannelID's current lifecycle state.
func (c *Core) State(redChannelID uint32) (State, error) {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return StateClosed, err
	}
	return cd.state.State(), nil
}

// Signal applies event to redChannelID's state machine.
func (c *Core) Signal(redChannelID uint32, e Event) error {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return err
	}
	cd.state.Handle(e)
	return nil
}

// RedundancyChannelIDs returns every configured redundancy channel ID,
// in configuration order.
func (c *Core) RedundancyChannelIDs() []uint32 {
	ids := make([]uint32, len(c.channels))
	for i, cd := range c.channels {
		ids[i] = cd.redChannelID
	}
	return ids
}

// TransportChannelIDs returns redChannelID's configured transport
// channel IDs, in configuration order.
func (c *Core) TransportChannelIDs(redChannelID uint32) ([]uint32, error) {
	cd, err := c.channelByRedID(redChannelID)
	if err != nil {
		return nil, err
	}
	return append([]uint32(nil), cd.trChannelIDs...), nil
}

// FreeReceiveBufferEntries and UsedDeferQueueEntries expose the
// admission-control inputs CheckTimings needs.
func (c *Core) FreeReceiveBufferEntries(redChannelID uint32) (int, error) {
	if _, err := c.channelByRedID(redChannelID); err != nil {
		return 0, err
	}
	return c.recvBuffer.GetFreeBufferEntries(c.chanIndex[redChannelID]), nil
}

func (c *Core) UsedDeferQueueEntries(redChannelID uint32) (int, error) {
	if _, err := c.channelByRedID(redChannelID); err != nil {
		return 0, err
	}
	return c.deferQueue.GetUsedEntries(c.chanIndex[redChannelID]), nil
}

// DeferQueueIsTimeout reports whether redChannelID's defer queue has an
// entry at least TSeqMs old.
func (c *Core) DeferQueueIsTimeout(redChannelID uint32) (bool, error) {
	if _, err := c.channelByRedID(redChannelID); err != nil {
		return false, err
	}
	return c.deferQueue.IsTimeout(c.chanIndex[redChannelID]), nil
}

// ReadFromReceiveBuffer pops the oldest ready payload for redChannelID.
func (c *Core) ReadFromReceiveBuffer(redChannelID uint32) ([]byte, error) {
	if _, err := c.channelByRedID(redChannelID); err != nil {
		return nil, err
	}
	return c.recvBuffer.ReadFromBuffer(c.chanIndex[redChannelID])
}

func (c *Core) channelByRedID(redChannelID uint32) (*channelData, error) {
	if !c.initialized {
		return nil, raerr.Raise(c.fatal, raerr.New(raerr.NotInitialized, "redundancy core not initialized"))
	}
	idx, ok := c.chanIndex[redChannelID]
	if !ok {
		return nil, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "redundancy channel %d not configured", redChannelID))
	}
	return c.channels[idx], nil
}

func contains(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
