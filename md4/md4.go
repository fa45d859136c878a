// Package md4 computes the safety code used to authenticate SafRetL PDUs.
// It follows the RFC 1320 Merkle-Damgard/F-G-H pipeline the
// same way golang.org/x/crypto/md4 does, but golang.org/x/crypto/md4 bakes
// in the RFC 1320 constants as the only initial vector and only exposes
// the hash.Hash interface; the safety code requires an arbitrary
// caller-supplied 4-word IV, so the pipeline is reimplemented here
// parameterized on that IV instead of wrapped.
package md4

import (
	"encoding/binary"

	"github.com/sbb-digital/go-rasta/raerr"
)

// IV is the 4-word initial chaining value. The RFC 1320 defaults are
// exposed as DefaultIV for callers that want the standard digest.
type IV struct {
	A, B, C, D uint32
}

// DefaultIV is the RFC 1320 initial vector.
var DefaultIV = IV{A: 0x67452301, B: 0xefcdab89, C: 0x98badcfe, D: 0x10325476}

const (
	// DataLenMin and DataLenMax bound the input accepted by Calculate,
	// matching the SafRetL PDU range the safety code authenticates
	// (header+payload).
	DataLenMin = 28
	DataLenMax = 1085
)

// Calculate computes the 16-byte MD4 digest of data using iv as the
// initial chaining value in place of the RFC 1320 constants. data.len
// must lie in [DataLenMin, DataLenMax].
func Calculate(iv IV, data []byte) ([16]byte, error) {
	var out [16]byte
	if len(data) < DataLenMin || len(data) > DataLenMax {
		return out, raerr.Newf(raerr.InvalidParameter, "md4: data length %d out of range [%d,%d]", len(data), DataLenMin, DataLenMax)
	}

	a, b, c, d := iv.A, iv.B, iv.C, iv.D

	padded := pad(data)
	var block [16]uint32
	for off := 0; off < len(padded); off += 64 {
		for i := 0; i < 16; i++ {
			block[i] = binary.LittleEndian.Uint32(padded[off+4*i:])
		}
		a, b, c, d = transform(a, b, c, d, &block)
	}

	binary.LittleEndian.PutUint32(out[0:4], a)
	binary.LittleEndian.PutUint32(out[4:8], b)
	binary.LittleEndian.PutUint32(out[8:12], c)
	binary.LittleEndian.PutUint32(out[12:16], d)
	return out, nil
}

// pad appends the RFC 1320 message padding: a single 1 bit, zero bits up
// to 448 mod 512, then the 64-bit little-endian bit length.
func pad(data []byte) []byte {
	bitLen := uint64(len(data)) * 8
	padded := make([]byte, len(data), len(data)+72)
	copy(padded, data)
	padded = append(padded, 0x80)
	for len(padded)%64 != 56 {
		padded = append(padded, 0x00)
	}
	var lenBytes [8]byte
	binary.LittleEndian.PutUint64(lenBytes[:], bitLen)
	padded = append(padded, lenBytes[:]...)
	return padded
}

func f(x, y, z uint32) uint32 { return (x & y) | (^x & z) }
func g(x, y, z uint32) uint32 { return (x & y) | (x & z) | (y & z) }
func h(x, y, z uint32) uint32 { return x ^ y ^ z }

func rotl(x uint32, n uint) uint32 { return (x << n) | (x >> (32 - n)) }

// round2Order and round3Order are the RFC 1320 message word
// access patterns for rounds 2 and 3 (round 1 is sequential).
var round2Order = [16]int{0, 4, 8, 12, 1, 5, 9, 13, 2, 6, 10, 14, 3, 7, 11, 15}
var round3Order = [16]int{0, 8, 4, 12, 2, 10, 6, 14, 1, 9, 5, 13, 3, 11, 7, 15}

var round1Shifts = [4]uint{3, 7, 11, 19}
var round2Shifts = [4]uint{3, 5, 9, 13}
var round3Shifts = [4]uint{3, 9, 11, 15}

const (
	k2 uint32 = 0x5a827999
	k3 uint32 = 0x6ed9eba1
)

func transform(a0, b0, c0, d0 uint32, x *[16]uint32) (a, b, c, d uint32) {
	a, b, c, d = a0, b0, c0, d0

	// Round 1: F, sequential word order, no additive constant.
	for i := 0; i < 16; i++ {
		shift := round1Shifts[i%4]
		switch i % 4 {
		case 0:
			a = rotl(a+f(b, c, d)+x[i], shift)
		case 1:
			d = rotl(d+f(a, b, c)+x[i], shift)
		case 2:
			c = rotl(c+f(d, a, b)+x[i], shift)
		case 3:
			b = rotl(b+f(c, d, a)+x[i], shift)
		}
	}

	// Round 2: G, interleaved word order, constant k2.
	for i := 0; i < 16; i++ {
		shift := round2Shifts[i%4]
		j := round2Order[i]
		switch i % 4 {
		case 0:
			a = rotl(a+g(b, c, d)+x[j]+k2, shift)
		case 1:
			d = rotl(d+g(a, b, c)+x[j]+k2, shift)
		case 2:
			c = rotl(c+g(d, a, b)+x[j]+k2, shift)
		case 3:
			b = rotl(b+g(c, d, a)+x[j]+k2, shift)
		}
	}

	// Round 3: H, bit-reversed-pair word order, constant k3.
	for i := 0; i < 16; i++ {
		shift := round3Shifts[i%4]
		j := round3Order[i]
		switch i % 4 {
		case 0:
			a = rotl(a+h(b, c, d)+x[j]+k3, shift)
		case 1:
			d = rotl(d+h(a, b, c)+x[j]+k3, shift)
		case 2:
			c = rotl(c+h(d, a, b)+x[j]+k3, shift)
		case 3:
			b = rotl(b+h(c, d, a)+x[j]+k3, shift)
		}
	}

	return a0 + a, b0 + b, c0 + c, d0 + d
}
