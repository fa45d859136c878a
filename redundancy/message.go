package redundancy

import (
	"encoding/binary"

	"github.com/sbb-digital/go-rasta/checkcode"
	"github.com/sbb-digital/go-rasta/raerr"
)

// Message is a decoded view over a redundancy PDU's raw wire bytes. Raw
// always holds the full, on-wire byte sequence: header, payload and
// trailing check code.
type Message struct {
	Raw []byte
}

// MessageCodec lays out, inspects and CRC-verifies redundancy PDUs for a
// fixed, configured check code type.
type MessageCodec struct {
	initialized   bool
	checkCodeType checkcode.Type
	fatal         raerr.FatalSink
}

// NewMessageCodec constructs an uninitialized codec; call Init before use.
// fatal receives every Fatal-classified raerr.Code this codec produces.
func NewMessageCodec(fatal raerr.FatalSink) *MessageCodec {
	return &MessageCodec{fatal: fatal}
}

// Init persists the configured check code type. A second call fails with
// AlreadyInitialized.
func (c *MessageCodec) Init(t checkcode.Type) error {
	if c.initialized {
		return raerr.Raise(c.fatal, raerr.New(raerr.AlreadyInitialized, "redundancy message codec already initialized"))
	}
	if !t.Valid() {
		return raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "invalid check code type %d", int(t)))
	}
	c.checkCodeType = t
	c.initialized = true
	return nil
}

// CreateMessage lays out a new RedundancyMessage: 8-byte header (length,
// reserve=0, sequence_number), the payload, then the check code computed
// over header+payload. payload.len must lie in [PayloadSizeMin,
// PayloadSizeMax].
func (c *MessageCodec) CreateMessage(sequenceNumber uint32, payload []byte) (Message, error) {
	if !c.initialized {
		return Message{}, raerr.Raise(c.fatal, raerr.New(raerr.NotInitialized, "redundancy message codec not initialized"))
	}
	if len(payload) < PayloadSizeMin || len(payload) > PayloadSizeMax {
		return Message{}, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "payload length %d out of range [%d,%d]", len(payload), PayloadSizeMin, PayloadSizeMax))
	}

	codeLen := c.checkCodeType.Len()
	total := HeaderSize + len(payload) + codeLen
	raw := make([]byte, total)

	binary.LittleEndian.PutUint16(raw[0:2], uint16(total))
	binary.LittleEndian.PutUint16(raw[2:4], 0) // reserve
	binary.LittleEndian.PutUint32(raw[4:8], sequenceNumber)
	copy(raw[HeaderSize:HeaderSize+len(payload)], payload)

	if c.checkCodeType != checkcode.A {
		code, err := checkcode.Calculate(c.checkCodeType, raw[:HeaderSize+len(payload)])
		if err != nil {
			return Message{}, err
		}
		copy(raw[HeaderSize+len(payload):], code)
	}

	return Message{Raw: raw}, nil
}

// CheckMessageCrc recomputes the check code over the message's
// header+payload range and compares it with the trailing bytes. Type A
// messages always report success without comparison.
func (c *MessageCodec) CheckMessageCrc(msg Message) error {
	if !c.initialized {
		return raerr.Raise(c.fatal, raerr.New(raerr.NotInitialized, "redundancy message codec not initialized"))
	}
	length, err := c.validatedLength(msg)
	if err != nil {
		return err
	}
	if c.checkCodeType == checkcode.A {
		return nil
	}

	codeLen := c.checkCodeType.Len()
	bodyEnd := length - codeLen
	expected, err := checkcode.Calculate(c.checkCodeType, msg.Raw[:bodyEnd])
	if err != nil {
		return err
	}
	actual := msg.Raw[bodyEnd:length]
	for i := range expected {
		if expected[i] != actual[i] {
			return raerr.New(raerr.InvalidMessageCrc, "check code mismatch")
		}
	}
	return nil
}

// GetSequenceNumber reads the sequence number field (offset 4, 4 bytes,
// little-endian).
func (c *MessageCodec) GetSequenceNumber(msg Message) (uint32, error) {
	if _, err := c.validatedLength(msg); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(msg.Raw[4:8]), nil
}

// GetPayload extracts the payload range [8, length-codeLen).
func (c *MessageCodec) GetPayload(msg Message) ([]byte, error) {
	length, err := c.validatedLength(msg)
	if err != nil {
		return nil, err
	}
	codeLen := c.checkCodeType.Len()
	payloadEnd := length - codeLen
	if payloadEnd < HeaderSize {
		return nil, raerr.Raise(c.fatal, raerr.New(raerr.InvalidParameter, "message length too small for configured check code"))
	}
	payloadLen := payloadEnd - HeaderSize
	if payloadLen < PayloadSizeMin || payloadLen > PayloadSizeMax {
		return nil, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "decoded payload length %d out of range", payloadLen))
	}
	return msg.Raw[HeaderSize:payloadEnd], nil
}

// validatedLength reads and range-checks the header length field against
// both the wire bounds and the message's actual byte count.
func (c *MessageCodec) validatedLength(msg Message) (int, error) {
	if len(msg.Raw) < HeaderSize {
		return 0, raerr.Raise(c.fatal, raerr.New(raerr.InvalidParameter, "message shorter than header"))
	}
	length := int(binary.LittleEndian.Uint16(msg.Raw[0:2]))
	if length < MessageSizeMin || length > MessageSizeMax {
		return 0, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "message length %d out of range [%d,%d]", length, MessageSizeMin, MessageSizeMax))
	}
	if length != len(msg.Raw) {
		return 0, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "header length %d does not match buffer size %d", length, len(msg.Raw)))
	}
	return length, nil
}
