// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hdlc implements the low-level byte framer shared by every Tiny
// Protocol transport: start/stop flagging, byte stuffing, and
// frame-check-sequence verification, per RFC 1662 (ISO 3309 byte-oriented
// HDLC).
//
// Wire format: FLAG body CRC FLAG, where FLAG is 0x7E. Any 0x7E or 0x7D
// byte inside body||CRC is escaped as 0x7D, byte^0x20 on the wire. A Codec
// runs independent TX and RX state machines that share no mutable state, so
// one Codec is safe to drive concurrently from one reader goroutine and one
// writer goroutine (but not two of the same direction at once).
//
// Codec does not perform I/O itself: Put stages a frame body for sending,
// RunTX drains encoded bytes into a caller-supplied buffer, and RunRX feeds
// raw bytes in and invokes a callback for each decoded frame. This mirrors
// the on_frame_read/on_frame_sent callback contract of the original C
// implementation this package replaces, translated into Go closures instead
// of function pointers plus a void* user_data argument.
package hdlc

import (
	"errors"

	"code.hybscloud.com/tinyproto/crc"
)

const (
	flagByte   byte = 0x7E
	escapeByte byte = 0x7D
	escapeXOR  byte = 0x20
	// FillByte is ignored by RunRX when seen outside a frame.
	FillByte byte = 0xFF
)

var (
	// ErrInvalidArgument reports a nil/empty Put argument.
	ErrInvalidArgument = errors.New("hdlc: invalid argument")
	// ErrBusy reports Put called while a previous frame is still being
	// drained by RunTX.
	ErrBusy = errors.New("hdlc: tx busy")
	// ErrDataTooLarge reports a decoded frame exceeding the configured
	// MaxFrameLen, or a Put payload exceeding it.
	ErrDataTooLarge = errors.New("hdlc: frame too large")
	// ErrWrongCRC reports a decoded frame whose check sequence did not
	// validate; the frame is discarded and decoding resumes at the next
	// flag.
	ErrWrongCRC = errors.New("hdlc: wrong crc")
)

// ResetScope selects which half of a Codec Reset clears.
type ResetScope uint8

const (
	ResetBoth ResetScope = iota
	ResetTXOnly
	ResetRXOnly
)

type rxPhase uint8

const (
	rxStart rxPhase = iota
	rxData
)

type txPhase uint8

const (
	txIdle txPhase = iota
	txStart
	txBody
	txCRC
	txEnd
)

// Codec implements one HDLC-LL endpoint: a TX byte-stuffing encoder and an
// RX byte-stuffing decoder with CRC verification, sharing a single CRC Kind.
type Codec struct {
	crc         crc.Kind
	maxFrameLen int

	onFrame func(body []byte)
	onSent  func(body []byte)
	onErr   func(err error)

	rxState    rxPhase
	rxBuf      []byte
	rxEscape   bool
	rxOverflow bool

	txState         txPhase
	txBody          []byte
	txFrame         []byte
	txPos           int
	txEscapePending bool
	txEscapeByte    byte
}

// New constructs a Codec. OnFrameRead and OnFrameSent are optional; a nil
// callback simply means that event is not observed.
func New(opts ...Option) *Codec {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	c := &Codec{
		crc:         o.CRC,
		maxFrameLen: o.MaxFrameLen,
		onFrame:     o.OnFrameRead,
		onSent:      o.OnFrameSent,
		onErr:       o.OnFrameErr,
	}
	c.rxBuf = make([]byte, 0, o.MaxFrameLen)
	c.txState = txIdle
	return c
}

// Reset clears TX state, RX state, or both, per scope. Use this after a
// hardware error on the underlying channel forces cancellation of whatever
// frame was in flight.
func (c *Codec) Reset(scope ResetScope) {
	if scope != ResetTXOnly {
		c.rxState = rxStart
		c.rxBuf = c.rxBuf[:0]
		c.rxEscape = false
		c.rxOverflow = false
	}
	if scope != ResetRXOnly {
		c.txState = txIdle
		c.txBody = nil
		c.txFrame = nil
		c.txPos = 0
		c.txEscapePending = false
	}
}

// CRC returns the check-sequence kind this Codec was configured with.
func (c *Codec) CRC() crc.Kind { return c.crc }

// MaxFrameLen returns the maximum decoded frame body length (address +
// control + payload + CRC), i.e. the capacity of the RX decode buffer.
func (c *Codec) MaxFrameLen() int { return c.maxFrameLen }

// SetOnFrameRead installs (or replaces) the callback invoked once per
// successfully decoded frame. body excludes the trailing CRC and is only
// valid until the next RunRX call returns; callers that need to retain it
// must copy.
func (c *Codec) SetOnFrameRead(fn func(body []byte)) { c.onFrame = fn }

// SetOnFrameSent installs (or replaces) the callback invoked once the frame
// most recently passed to Put has been fully drained by RunTX.
func (c *Codec) SetOnFrameSent(fn func(body []byte)) { c.onSent = fn }

// SetOnFrameErr installs (or replaces) the callback invoked when RunRX
// discards a malformed or oversized frame.
func (c *Codec) SetOnFrameErr(fn func(err error)) { c.onErr = fn }
