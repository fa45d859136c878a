// Package checkcode computes the redundancy layer's CRC check code over a
// byte range. Type A carries no check code at all; B/C are 4-byte CRC-32
// variants, D/E are 2-byte CRC-16 variants.
package checkcode

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/sbb-digital/go-rasta/raerr"
)

// Type selects the check code algorithm.
type Type int

const (
	// A means no check code: the codec emits/verifies zero bytes.
	A Type = iota
	B
	C
	D
	E
)

// Len returns the number of trailing check-code bytes for t.
func (t Type) Len() int {
	switch t {
	case A:
		return 0
	case B, C:
		return 4
	case D, E:
		return 2
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case A:
		return "A"
	case B:
		return "B"
	case C:
		return "C"
	case D:
		return "D"
	case E:
		return "E"
	default:
		return "invalid"
	}
}

// Valid reports whether t is one of {A,B,C,D,E}.
func (t Type) Valid() bool {
	return t >= A && t <= E
}

// DataLenMin and DataLenMax bound the byte range calculate() accepts,
// matching the redundancy message header+payload range.
const (
	DataLenMin = 36
	DataLenMax = 1109
)

// crc16 runs a bit-at-a-time CRC-16 with the given polynomial and initial
// value, MSB first. hash/crc32 has no CRC-16 counterpart in the standard
// library, and nothing in the example corpus imports a third-party CRC-16
// package, so this is a direct, textbook bitwise implementation rather
// than a reach for an unavailable ecosystem library.
func crc16(poly, init uint16, data []byte) uint16 {
	crc := init
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

const (
	// polyD/initD and polyE/initE are the two CRC-16 variants distinguished
	// by polynomial and initial value.
	polyD uint16 = 0x1021 // CRC-16/CCITT-FALSE
	initD uint16 = 0xFFFF
	polyE uint16 = 0x8005 // CRC-16/UMTS (BUYPASS): unreflected, no final XOR
	initE uint16 = 0x0000
)

// Calculate computes the check code for data under the given Type. The
// returned slice has length t.Len() (possibly zero). data.len must lie in
// [DataLenMin, DataLenMax].
//
// Type A is rejected with InternalError: the codec never calls Calculate
// for type A, it emits/verifies a zero-length code directly.
func Calculate(t Type, data []byte) ([]byte, error) {
	if len(data) < DataLenMin || len(data) > DataLenMax {
		return nil, raerr.Newf(raerr.InvalidParameter, "checkcode: data length %d out of range [%d,%d]", len(data), DataLenMin, DataLenMax)
	}

	switch t {
	case A:
		return nil, raerr.New(raerr.InternalError, "checkcode: Calculate must not be called for type A")
	case B:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, crc32.ChecksumIEEE(data))
		return out, nil
	case C:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)))
		return out, nil
	case D:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, crc16(polyD, initD, data))
		return out, nil
	case E:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, crc16(polyE, initE, data))
		return out, nil
	default:
		return nil, raerr.Newf(raerr.InvalidParameter, "checkcode: invalid type %d", int(t))
	}
}
