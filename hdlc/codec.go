// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hdlc

import "code.hybscloud.com/tinyproto/crc"

// Put stages payload (already including address/control octets, excluding
// the CRC trailer) for sending: the trailer is computed now, and RunTX
// drains the flagged, byte-stuffed frame on subsequent calls. Put fails with
// ErrBusy if a previous frame is still in flight, and with ErrDataTooLarge
// if payload plus the CRC trailer would not fit in MaxFrameLen.
func (c *Codec) Put(payload []byte) error {
	if len(payload) == 0 {
		return ErrInvalidArgument
	}
	if c.txState != txIdle {
		return ErrBusy
	}
	trailer := c.crc.Finalize(c.crc.Sum(payload))
	if len(payload)+len(trailer) > c.maxFrameLen {
		return ErrDataTooLarge
	}
	frame := make([]byte, 0, len(payload)+len(trailer))
	frame = append(frame, payload...)
	frame = append(frame, trailer...)
	c.txBody = payload
	c.txFrame = frame
	c.txPos = 0
	c.txEscapePending = false
	c.txState = txStart
	return nil
}

// IsSending reports whether a frame staged by Put is still draining through
// RunTX.
func (c *Codec) IsSending() bool { return c.txState != txIdle }

// RunTX fills out with as many encoded bytes as fit and returns the count
// written. It is a no-op returning 0 when no frame is staged. Call
// repeatedly with fresh buffers until it again returns 0 to fully drain one
// frame; OnFrameSent fires exactly once, on the call that writes the
// trailing flag.
func (c *Codec) RunTX(out []byte) int {
	n := 0
	for n < len(out) {
		switch c.txState {
		case txIdle:
			return n
		case txStart:
			out[n] = flagByte
			n++
			c.txState = txBody
		case txBody:
			if c.txEscapePending {
				out[n] = c.txEscapeByte
				n++
				c.txEscapePending = false
				continue
			}
			if c.txPos >= len(c.txFrame) {
				c.txState = txEnd
				continue
			}
			b := c.txFrame[c.txPos]
			c.txPos++
			if b == flagByte || b == escapeByte {
				out[n] = escapeByte
				n++
				c.txEscapePending = true
				c.txEscapeByte = b ^ escapeXOR
				continue
			}
			out[n] = b
			n++
		case txEnd:
			out[n] = flagByte
			n++
			sent := c.txBody
			c.txBody = nil
			c.txFrame = nil
			c.txPos = 0
			c.txState = txIdle
			if c.onSent != nil {
				c.onSent(sent)
			}
		}
	}
	return n
}

// RunRX feeds raw, possibly byte-stuffed wire bytes into the decoder. Each
// complete, CRC-valid frame invokes OnFrameRead with its body (payload plus
// any address/control octets, excluding the trailer). Malformed frames
// invoke OnFrameErr and are discarded; decoding resumes at the next flag.
// RunRX always consumes the entire slice and returns the number of frames
// successfully decoded.
func (c *Codec) RunRX(data []byte) int {
	frames := 0
	for _, b := range data {
		if c.rxEscape {
			c.rxEscape = false
			c.appendRX(b ^ escapeXOR)
			continue
		}
		switch b {
		case escapeByte:
			if c.rxState == rxData {
				c.rxEscape = true
			}
		case flagByte:
			if c.rxState == rxData && len(c.rxBuf) > 0 {
				if c.finishFrame() {
					frames++
				}
			}
			c.rxBuf = c.rxBuf[:0]
			c.rxOverflow = false
			c.rxState = rxData
		default:
			if c.rxState == rxData {
				c.appendRX(b)
			}
			// byte seen before any opening flag: noise or fill, ignored
		}
	}
	return frames
}

func (c *Codec) appendRX(b byte) {
	if c.rxOverflow {
		return
	}
	if len(c.rxBuf) >= c.maxFrameLen {
		c.rxOverflow = true
		return
	}
	c.rxBuf = append(c.rxBuf, b)
}

// finishFrame validates and delivers the accumulated rxBuf, reporting
// success. The caller resets rxBuf regardless of outcome.
func (c *Codec) finishFrame() bool {
	if c.rxOverflow {
		c.reportErr(ErrDataTooLarge)
		return false
	}
	size := c.crc.Size()
	if len(c.rxBuf) < size {
		c.reportErr(ErrWrongCRC)
		return false
	}
	if c.crc != crc.Off && c.crc.Sum(c.rxBuf) != c.crc.Good() {
		c.reportErr(ErrWrongCRC)
		return false
	}
	if c.onFrame != nil {
		c.onFrame(c.rxBuf[:len(c.rxBuf)-size])
	}
	return true
}

func (c *Codec) reportErr(err error) {
	if c.onErr != nil {
		c.onErr(err)
	}
}
