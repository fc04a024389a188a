// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hdlc

import "code.hybscloud.com/tinyproto/crc"

// Options holds a Codec's configuration, built up by applying Option values
// over defaultOptions.
type Options struct {
	CRC         crc.Kind
	MaxFrameLen int
	OnFrameRead func(body []byte)
	OnFrameSent func(body []byte)
	OnFrameErr  func(err error)
}

// Option mutates an Options value during New.
type Option func(*Options)

var defaultOptions = Options{
	CRC:         crc.C16,
	MaxFrameLen: 1024,
}

// WithCRC selects the frame-check-sequence algorithm. The zero value,
// crc.Off, disables FCS verification entirely.
func WithCRC(kind crc.Kind) Option {
	return func(o *Options) { o.CRC = kind }
}

// WithMaxFrameLen bounds the decoded frame size (address + control +
// payload + CRC). RunRX reports ErrDataTooLarge and resyncs at the next
// flag if a frame would exceed it.
func WithMaxFrameLen(n int) Option {
	return func(o *Options) { o.MaxFrameLen = n }
}

// WithOnFrameRead sets the callback invoked once per decoded frame.
func WithOnFrameRead(fn func(body []byte)) Option {
	return func(o *Options) { o.OnFrameRead = fn }
}

// WithOnFrameSent sets the callback invoked once a Put frame finishes
// draining through RunTX.
func WithOnFrameSent(fn func(body []byte)) Option {
	return func(o *Options) { o.OnFrameSent = fn }
}

// WithOnFrameErr sets the callback invoked when RunRX discards a frame for
// being oversized (ErrDataTooLarge) or failing CRC verification
// (ErrWrongCRC). Decoding resumes at the next flag either way.
func WithOnFrameErr(fn func(err error)) Option {
	return func(o *Options) { o.OnFrameErr = fn }
}
