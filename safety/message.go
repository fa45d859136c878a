// Package safety implements the Safety & Retransmission Layer (SafRetL)
// core: the SafRetL PDU codec, the per-connection send buffer with its
// retransmission-plan algorithm, and the connection lifecycle state
// machine.
package safety

import (
	"encoding/binary"

	"github.com/sbb-digital/go-rasta/md4"
	"github.com/sbb-digital/go-rasta/raerr"
)

// MessageType tags a SafRetL PDU's role in the connection lifecycle.
type MessageType uint16

const (
	ConnReq   MessageType = 6200
	ConnResp  MessageType = 6201
	RetrReq   MessageType = 6212
	RetrResp  MessageType = 6213
	DiscReq   MessageType = 6216
	Heartbeat MessageType = 6220
	Data      MessageType = 6240
	RetrData  MessageType = 6241
)

func (t MessageType) String() string {
	switch t {
	case ConnReq:
		return "ConnReq"
	case ConnResp:
		return "ConnResp"
	case RetrReq:
		return "RetrReq"
	case RetrResp:
		return "RetrResp"
	case DiscReq:
		return "DiscReq"
	case Heartbeat:
		return "Heartbeat"
	case Data:
		return "Data"
	case RetrData:
		return "RetrData"
	default:
		return "Unknown"
	}
}

// HasPayload reports whether t carries a payload_size+payload section on
// the wire (only Data and RetrData do).
func (t MessageType) HasPayload() bool {
	return t == Data || t == RetrData
}

// SafetyCodeType selects the trailing safety code length. Full is a
// complete MD4 digest; the truncated variants keep only its leading
// bytes, trading authentication strength for wire size on constrained
// links. None disables the safety code entirely.
type SafetyCodeType int

const (
	SafetyCodeNone SafetyCodeType = iota
	SafetyCode4
	SafetyCode6
	SafetyCode8
	SafetyCodeFull
)

// Len returns the wire length of t's safety code.
func (t SafetyCodeType) Len() int {
	switch t {
	case SafetyCodeNone:
		return 0
	case SafetyCode4:
		return 4
	case SafetyCode6:
		return 6
	case SafetyCode8:
		return 8
	case SafetyCodeFull:
		return 16
	default:
		return -1
	}
}

func (t SafetyCodeType) Valid() bool {
	return t.Len() >= 0
}

const (
	HeaderSize        = 28
	PayloadSizeHeader = 2 // the payload_size field preceding Data/RetrData payloads

	PayloadSizeMin = 28
	PayloadSizeMax = 1055
)

// Message is a decoded SafRetL PDU.
type Message struct {
	Type                    MessageType
	ReceiverID              uint32
	SenderID                uint32
	SequenceNumber          uint32
	ConfirmedSequenceNumber uint32
	Timestamp               uint32
	ConfirmedTimestamp      uint32
	Payload                 []byte // only meaningful when Type.HasPayload()
}

// Config is the immutable per-connection codec configuration: the MD4
// initial vector and safety code length to use for every message this
// connection exchanges.
type Config struct {
	IV             md4.IV
	SafetyCodeType SafetyCodeType
}

// MessageCodec lays out, inspects and safety-code-verifies SafRetL PDUs
// for one connection's fixed configuration.
type MessageCodec struct {
	initialized bool
	cfg         Config
	fatal       raerr.FatalSink
}

// NewMessageCodec constructs an uninitialized codec; call Init before
// use. fatal receives every Fatal-classified raerr.Code this codec
// produces.
func NewMessageCodec(fatal raerr.FatalSink) *MessageCodec {
	return &MessageCodec{fatal: fatal}
}

// Init persists cfg. A second call fails with AlreadyInitialized.
func (c *MessageCodec) Init(cfg Config) error {
	if c.initialized {
		return raerr.Raise(c.fatal, raerr.New(raerr.AlreadyInitialized, "safety message codec already initialized"))
	}
	if !cfg.SafetyCodeType.Valid() {
		return raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "invalid safety code type %d", int(cfg.SafetyCodeType)))
	}
	c.cfg = cfg
	c.initialized = true
	return nil
}

// Encode lays out msg as wire bytes: 28-byte header, optional
// payload_size+payload, then the safety code computed over every
// preceding byte.
func (c *MessageCodec) Encode(msg Message) ([]byte, error) {
	if !c.initialized {
		return nil, raerr.Raise(c.fatal, raerr.New(raerr.NotInitialized, "safety message codec not initialized"))
	}

	bodyLen := HeaderSize
	if msg.Type.HasPayload() {
		if len(msg.Payload) < PayloadSizeMin || len(msg.Payload) > PayloadSizeMax {
			return nil, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "payload length %d out of range [%d,%d]", len(msg.Payload), PayloadSizeMin, PayloadSizeMax))
		}
		bodyLen += PayloadSizeHeader + len(msg.Payload)
	}

	codeLen := c.cfg.SafetyCodeType.Len()
	total := bodyLen + codeLen
	raw := make([]byte, total)

	binary.LittleEndian.PutUint16(raw[0:2], uint16(total))
	binary.LittleEndian.PutUint16(raw[2:4], uint16(msg.Type))
	binary.LittleEndian.PutUint32(raw[4:8], msg.ReceiverID)
	binary.LittleEndian.PutUint32(raw[8:12], msg.SenderID)
	binary.LittleEndian.PutUint32(raw[12:16], msg.SequenceNumber)
	binary.LittleEndian.PutUint32(raw[16:20], msg.ConfirmedSequenceNumber)
	binary.LittleEndian.PutUint32(raw[20:24], msg.Timestamp)
	binary.LittleEndian.PutUint32(raw[24:28], msg.ConfirmedTimestamp)

	if msg.Type.HasPayload() {
		binary.LittleEndian.PutUint16(raw[28:30], uint16(len(msg.Payload)))
		copy(raw[30:30+len(msg.Payload)], msg.Payload)
	}

	if codeLen > 0 {
		code, err := c.safetyCode(raw[:bodyLen])
		if err != nil {
			return nil, err
		}
		copy(raw[bodyLen:], code[:codeLen])
	}

	return raw, nil
}

// Decode parses raw wire bytes into a Message and verifies the safety
// code. InvalidMessageCrc on mismatch (the safety-code analogue of the
// redundancy layer's check-code failure).
func (c *MessageCodec) Decode(raw []byte) (Message, error) {
	if !c.initialized {
		return Message{}, raerr.Raise(c.fatal, raerr.New(raerr.NotInitialized, "safety message codec not initialized"))
	}
	if len(raw) < HeaderSize {
		return Message{}, raerr.Raise(c.fatal, raerr.New(raerr.InvalidParameter, "message shorter than header"))
	}

	length := int(binary.LittleEndian.Uint16(raw[0:2]))
	if length != len(raw) {
		return Message{}, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "header length %d does not match buffer size %d", length, len(raw)))
	}

	msg := Message{
		Type:                    MessageType(binary.LittleEndian.Uint16(raw[2:4])),
		ReceiverID:              binary.LittleEndian.Uint32(raw[4:8]),
		SenderID:                binary.LittleEndian.Uint32(raw[8:12]),
		SequenceNumber:          binary.LittleEndian.Uint32(raw[12:16]),
		ConfirmedSequenceNumber: binary.LittleEndian.Uint32(raw[16:20]),
		Timestamp:               binary.LittleEndian.Uint32(raw[20:24]),
		ConfirmedTimestamp:      binary.LittleEndian.Uint32(raw[24:28]),
	}

	bodyLen := HeaderSize
	if msg.Type.HasPayload() {
		if len(raw) < HeaderSize+PayloadSizeHeader {
			return Message{}, raerr.Raise(c.fatal, raerr.New(raerr.InvalidParameter, "message too short for payload header"))
		}
		payloadSize := int(binary.LittleEndian.Uint16(raw[28:30]))
		if payloadSize < PayloadSizeMin || payloadSize > PayloadSizeMax {
			return Message{}, raerr.Raise(c.fatal, raerr.Newf(raerr.InvalidParameter, "payload size %d out of range [%d,%d]", payloadSize, PayloadSizeMin, PayloadSizeMax))
		}
		bodyLen += PayloadSizeHeader + payloadSize
		if bodyLen > len(raw) {
			return Message{}, raerr.Raise(c.fatal, raerr.New(raerr.InvalidParameter, "payload extends past message end"))
		}
		msg.Payload = append([]byte(nil), raw[30:bodyLen]...)
	}

	codeLen := c.cfg.SafetyCodeType.Len()
	if bodyLen+codeLen != len(raw) {
		return Message{}, raerr.Raise(c.fatal, raerr.New(raerr.InvalidParameter, "message length inconsistent with safety code length"))
	}
	if codeLen > 0 {
		expected, err := c.safetyCode(raw[:bodyLen])
		if err != nil {
			return Message{}, err
		}
		actual := raw[bodyLen:]
		for i := 0; i < codeLen; i++ {
			if expected[i] != actual[i] {
				return Message{}, raerr.New(raerr.InvalidMessageCrc, "safety code mismatch")
			}
		}
	}

	return msg, nil
}

// safetyCode hashes data, which is always the 28-byte header alone or
// the header plus the 2-byte payload_size field and a [28,1055]-byte
// payload — [28,1085] total, exactly Md4Engine's accepted range.
func (c *MessageCodec) safetyCode(data []byte) ([16]byte, error) {
	return md4.Calculate(c.cfg.IV, data)
}
