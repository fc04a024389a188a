// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tinyproto is the thin facade over crc, hal, queue, hdlc, and fd:
// one Endpoint type plus a Run loop that pumps an opaque io.ReadWriter
// transport, for callers who would otherwise hand-drive RunTX/RunRX
// themselves.
package tinyproto

import (
	"context"
	"io"
	"time"

	"code.hybscloud.com/tinyproto/fd"
)

// Re-exported so callers need only import this package for the common path.
type (
	Config = fd.Config
	Option = fd.Option
	Mode   = fd.Mode
	State  = fd.State
	Status = fd.Status
)

const (
	ABM = fd.ABM
	NRM = fd.NRM
)

const AddrPrimary = fd.AddrPrimary

const defaultPollInterval = 20 * time.Millisecond

// Endpoint wraps fd.Endpoint with a byte-stream pump loop, relaying frames
// to and from an io.ReadWriter transport without the caller having to drive
// RunTX/RunRX by hand.
type Endpoint struct {
	*fd.Endpoint
	pollInterval time.Duration
}

// New builds an Endpoint. See fd.New for the available Options.
func New(opts ...Option) (*Endpoint, error) {
	fe, err := fd.New(opts...)
	if err != nil {
		return nil, err
	}
	return &Endpoint{Endpoint: fe, pollInterval: defaultPollInterval}, nil
}

// SetPollInterval adjusts how often Run ticks the retry/keep-alive
// scheduler and flushes any frame it produces while idle. The default is
// 20ms; shorter intervals tighten retransmission latency at the cost of
// more wakeups.
func (e *Endpoint) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = defaultPollInterval
	}
	e.pollInterval = d
}

// Run pumps rw until ctx is cancelled or rw reports a read or write error.
// One goroutine issues blocking Reads against rw and feeds the decoded
// bytes to the HDLC-LL layer; the calling goroutine ticks the scheduler and
// flushes whatever frame it selects. This read/write split mirrors the
// retry-until-complete pump that a direct byte-transport forwarder needs,
// adapted here to drive a stateful protocol engine instead of relaying
// discrete messages.
//
// When ctx is cancelled Run returns ctx.Err() at once, but the read
// goroutine stays blocked inside rw.Read until that call returns: plain
// io.Reader has no cancellation contract, so callers needing the goroutine
// to exit should close or unblock rw themselves (e.g. closing the
// underlying file descriptor) alongside cancelling ctx.
func (e *Endpoint) Run(ctx context.Context, rw io.ReadWriter) error {
	if rw == nil {
		return ErrInvalidArgument
	}

	readErrCh := make(chan error, 1)
	go e.readPump(rw, readErrCh)

	writeBuf := make([]byte, e.MTU()+32)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrCh:
			return err
		case <-ticker.C:
			if err := e.flush(rw, writeBuf); err != nil {
				return err
			}
		}
	}
}

func (e *Endpoint) readPump(rw io.ReadWriter, errCh chan<- error) {
	buf := make([]byte, e.MTU()+32)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			e.RunRX(buf[:n])
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

// flush drains every frame the scheduler currently has ready, writing each
// to w in full before asking for the next.
func (e *Endpoint) flush(w io.Writer, buf []byte) error {
	for {
		n := e.RunTX(buf)
		if n == 0 {
			return nil
		}
		if err := writeFull(w, buf[:n]); err != nil {
			return err
		}
	}
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
