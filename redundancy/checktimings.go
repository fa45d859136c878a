package redundancy

import "github.com/sbb-digital/go-rasta/transport"

// CheckTimings is the periodic tick driving the redundancy layer's
// receive path: for every configured redundancy channel it drains
// pending transport channels (subject to admission control), reacts to
// defer-queue timeouts, and discards inbound data on channels that
// aren't Up.
func (c *Core) CheckTimings() error {
	for _, cd := range c.channels {
		redChannelID := cd.redChannelID
		idx := c.chanIndex[redChannelID]
		state := cd.state.State()

		if state == StateUp {
			free := c.recvBuffer.GetFreeBufferEntries(idx)
			usedDefer := c.deferQueue.GetUsedEntries(idx)

			for anyPending(cd.pending) && free > usedDefer {
				trID, ok := nextPending(cd.trChannelIDs, cd.pending)
				if !ok {
					break
				}
				ch, hasChannel := c.trChannels[trID]
				if !hasChannel {
					cd.pending[trID] = false
					continue
				}

				buf := make([]byte, MessageSizeMax)
				n, err := ch.Receive(buf)
				if err == nil {
					msg := Message{Raw: append([]byte(nil), buf[:n]...)}
					if werr := c.WriteReceivedMessageToInputBuffer(redChannelID, trID, msg); werr == nil {
						cd.state.Handle(EventReceiveData)
						c.ProcessReceivedMessage(redChannelID)
					}
					cd.inputBufferHasMessage = false
				} else {
					cd.pending[trID] = false
				}

				free = c.recvBuffer.GetFreeBufferEntries(idx)
				usedDefer = c.deferQueue.GetUsedEntries(idx)
			}

			if c.deferQueue.IsTimeout(idx) {
				cd.state.Handle(EventDeferTimeout)
				c.DeferQueueTimeout(redChannelID)
			}
		}

		if state == StateClosed {
			for _, trID := range cd.trChannelIDs {
				if !cd.pending[trID] {
					continue
				}
				ch, ok := c.trChannels[trID]
				if !ok {
					cd.pending[trID] = false
					continue
				}
				drainChannel(ch)
				cd.pending[trID] = false
			}
		}
	}
	return nil
}

func anyPending(pending map[uint32]bool) bool {
	for _, v := range pending {
		if v {
			return true
		}
	}
	return false
}

// nextPending returns the first transport channel (in configured order)
// with a set pending flag.
func nextPending(trChannelIDs []uint32, pending map[uint32]bool) (uint32, bool) {
	for _, id := range trChannelIDs {
		if pending[id] {
			return id, true
		}
	}
	return 0, false
}

// drainChannel reads and discards every pending datagram on ch until it
// reports no more data available.
func drainChannel(ch transport.Channel) {
	buf := make([]byte, MessageSizeMax)
	for {
		_, err := ch.Receive(buf)
		if err == transport.ErrNoMessageReceived {
			return
		}
		if err != nil {
			return
		}
	}
}
