// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package crc implements the frame-check-sequence algorithms used by the
// HDLC-LL framer: an additive 8-bit checksum, and the CCITT-16/CCITT-32
// cyclic redundancy checks from RFC 1662.
//
// Every Kind exposes both a block form (Sum) and a streaming byte-at-a-time
// form (Update), so the low-level HDLC codec can fold CRC computation into
// its escape-byte state machine without buffering the whole frame twice.
package crc

import "errors"

// ErrUnsupportedKind names a Kind value with no registered algorithm. The
// Kind methods do not return it; they treat such a value like Off.
var ErrUnsupportedKind = errors.New("crc: unsupported kind")

// Kind selects the CRC algorithm used for a frame's trailing check sequence.
type Kind uint8

const (
	// Off disables the frame check sequence entirely; frames carry no FCS.
	Off Kind = iota
	// C8 is an 8-bit modular sum with seed 0x0000.
	C8
	// C16 is CCITT-16 (poly 0x8408 reflected) per RFC 1662.
	C16
	// C32 is CCITT-32 (poly 0xEDB88320 reflected) per RFC 1662.
	C32
)

// String returns a human-readable name for the Kind, for logging.
func (k Kind) String() string {
	switch k {
	case Off:
		return "off"
	case C8:
		return "crc8"
	case C16:
		return "crc16"
	case C32:
		return "crc32"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes the FCS field occupies on the wire.
func (k Kind) Size() int {
	switch k {
	case Off:
		return 0
	case C8:
		return 1
	case C16:
		return 2
	case C32:
		return 4
	default:
		return 0
	}
}

// Seed returns the initial running value for the algorithm, widened to
// uint32 so callers can hold one register regardless of Kind.
func (k Kind) Seed() uint32 {
	switch k {
	case C16:
		return 0xFFFF
	case C32:
		return 0xFFFFFFFF
	default:
		return 0x0000
	}
}

// Good is the expected residue of the running CRC computed over
// payload||transmitted-FCS, i.e. the value a correct receiver observes.
func (k Kind) Good() uint32 {
	switch k {
	case C16:
		return 0xF0B8
	case C32:
		return 0xDEBB20E3
	default:
		return 0x0000
	}
}

// Valid reports whether k names a known algorithm (including Off).
func (k Kind) Valid() bool {
	switch k {
	case Off, C8, C16, C32:
		return true
	default:
		return false
	}
}

// Update folds one byte into the running CRC value seeded by Seed and
// returns the new running value. Callers drive this one byte at a time from
// a state machine; Sum is the block-oriented equivalent.
func (k Kind) Update(crc uint32, b byte) uint32 {
	switch k {
	case C8:
		return (crc + uint32(b)) & 0xFF
	case C16:
		return uint32(crc16Byte(uint16(crc), b))
	case C32:
		return crc32Byte(crc, b)
	default:
		return crc
	}
}

// Sum computes the CRC over data starting from Seed.
func (k Kind) Sum(data []byte) uint32 {
	crc := k.Seed()
	for _, b := range data {
		crc = k.Update(crc, b)
	}
	return crc
}

// Finalize converts a running CRC value into the bytes transmitted on the
// wire (little-endian, ones-complemented where the algorithm requires it).
func (k Kind) Finalize(crc uint32) []byte {
	switch k {
	case C8:
		// Two's complement so payload||FCS sums to 0 mod 256, matching
		// Good()'s zero residue for this kind.
		return []byte{byte(-crc)}
	case C16:
		v := ^uint16(crc)
		return []byte{byte(v), byte(v >> 8)}
	case C32:
		v := ^crc
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	default:
		return nil
	}
}

// crc16Byte updates a CCITT-16 (RFC 1662) running value with one byte.
func crc16Byte(crc uint16, b byte) uint16 {
	crc ^= uint16(b)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0x8408
		} else {
			crc >>= 1
		}
	}
	return crc
}

// crc32Byte updates a CCITT-32 (RFC 1662) running value with one byte.
func crc32Byte(crc uint32, b byte) uint32 {
	crc ^= uint32(b)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ 0xEDB88320
		} else {
			crc >>= 1
		}
	}
	return crc
}
