// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fd implements the full-duplex sliding-window ARQ layer riding on
// top of the hdlc low-level byte codec: per-peer connection state machines,
// window accounting, S/U control traffic, and poll/final marker passing in
// both Asynchronous Balanced Mode (peer-to-peer) and Normal Response Mode
// (primary polling multiple secondaries).
package fd

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"code.hybscloud.com/tinyproto/hal"
	"code.hybscloud.com/tinyproto/hdlc"
	"code.hybscloud.com/tinyproto/queue"
)

const queueHasFreeSlots uint8 = 0x01

// suQueueCapacity bounds the small control-traffic queue; 4 slots, per the
// "small constant (≥ 4)" sizing rule.
const suQueueCapacity = 4

type pendingTX struct {
	peer  *peer
	isI   bool
	isCmd bool
}

// Endpoint is one station: an HDLC-LL codec, an I-queue and S/U-queue, a
// peer table, and the scheduler that multiplexes them onto one byte stream.
type Endpoint struct {
	mu sync.Mutex

	cfg    Config
	h      hal.HAL
	logger *slog.Logger

	codec *hdlc.Codec
	iq    *queue.Queue
	suq   *queue.Queue

	peers    []*peer
	byAddr   map[byte]*peer
	nextPeer int

	hasMarker    bool
	lastMarkerTS time.Time

	globalEvents hal.EventGroup

	pending pendingTX

	closed   bool
	closedCh chan struct{}
}

// New constructs an Endpoint. Callers must RegisterPeer at least one
// address before traffic can flow.
func New(opts ...Option) (*Endpoint, error) {
	cfg := defaultConfig()
	for _, fn := range opts {
		fn(&cfg)
	}
	if cfg.WindowFrames < 2 || cfg.WindowFrames > 7 {
		return nil, ErrInvalidArgument
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = cfg.SendTimeout / time.Duration(cfg.Retries+1)
	}
	if cfg.HAL == nil {
		cfg.HAL = hal.NewStandard()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	logger = logger.With("component", "fd")

	e := &Endpoint{
		cfg:          cfg,
		h:            cfg.HAL,
		logger:       logger,
		iq:           queue.New(cfg.WindowFrames, cfg.MTU),
		suq:          queue.New(suQueueCapacity, 0),
		byAddr:       make(map[byte]*peer),
		globalEvents: cfg.HAL.NewEventGroup(),
		closedCh:     make(chan struct{}),
	}
	e.globalEvents.Set(queueHasFreeSlots)
	e.codec = hdlc.New(
		hdlc.WithCRC(cfg.CRC),
		hdlc.WithMaxFrameLen(cfg.MTU+2+cfg.CRC.Size()),
		hdlc.WithOnFrameRead(e.handleFrame),
		hdlc.WithOnFrameSent(e.handleFrameSent),
		hdlc.WithOnFrameErr(e.handleFrameErr),
	)
	if cfg.Mode == ABM {
		e.hasMarker = true
	} else {
		e.hasMarker = cfg.Addr == AddrPrimary
	}
	e.lastMarkerTS = cfg.HAL.Now()
	return e, nil
}

// RegisterPeer adds addr to the peer table. It fails with ErrTooManyPeers
// beyond the configured PeersCount and ErrPeerExists for a duplicate.
func (e *Endpoint) RegisterPeer(addr byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byAddr[addr]; ok {
		return ErrPeerExists
	}
	if len(e.peers) >= e.cfg.PeersCount {
		return ErrTooManyPeers
	}
	p := newPeer(addr, e.h, e.cfg.Retries, e.cfg.WindowFrames)
	e.peers = append(e.peers, p)
	e.byAddr[addr] = p
	return nil
}

// MTU returns the configured maximum I-frame payload size.
func (e *Endpoint) MTU() int { return e.cfg.MTU }

// SetKeepAliveTimeout adjusts the keep-alive idle interval at runtime.
func (e *Endpoint) SetKeepAliveTimeout(d time.Duration) {
	e.mu.Lock()
	e.cfg.KATimeout = d
	e.mu.Unlock()
}

// PeerStatus reports a snapshot of a registered peer's connection state.
func (e *Endpoint) PeerStatus(addr byte) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.byAddr[addr]
	if !ok {
		return Status{}, ErrUnknownPeer
	}
	return Status{
		Addr:      p.addr,
		State:     p.state,
		NextNS:    p.nextNS,
		ConfirmNS: p.confirmNS,
		LastNS:    p.lastNS,
		NextNR:    p.nextNR,
	}, nil
}

// EstimateMemory gives a rough byte count an equivalent fixed-arena
// implementation would need for cfg: peer table, I-queue, and S/U-queue
// backing storage. It is informational; the Go implementation itself
// allocates on the heap via slices and does not require a caller-supplied
// region.
func EstimateMemory(cfg Config) int {
	const peerOverhead = 64
	const slotOverhead = 8
	i := cfg.WindowFrames * (slotOverhead + cfg.MTU)
	su := suQueueCapacity * slotOverhead
	return cfg.PeersCount*peerOverhead + i + su + cfg.MTU + 2 + cfg.CRC.Size()
}

// Disconnect queues a DISC for addr and returns immediately; it is not a
// cancellation of in-flight SendPacket calls.
func (e *Endpoint) Disconnect(addr byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.byAddr[addr]
	if !ok {
		return ErrUnknownPeer
	}
	if p.state != Connected {
		return nil
	}
	e.enqueueU(p, ctrlDISC, true)
	p.state = Disconnecting
	return nil
}

// Close flushes unsent queued frames without firing their on_send
// callback, releases HAL objects, and causes any blocked SendPacket to
// return ErrFailed.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.closedCh)
	e.iq.Reset()
	e.suq.Reset()
	e.mu.Unlock()
	return nil
}

// SendPacket queues payload as an I-frame addressed to addr, blocking up to
// SendTimeout (or until ctx is done) for a free window slot and a free
// queue slot. It returns ErrDataTooLarge if payload exceeds the configured
// MTU and ErrUnknownPeer if addr is not registered.
func (e *Endpoint) SendPacket(ctx context.Context, addr byte, payload []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrFailed
	}
	p, ok := e.byAddr[addr]
	if !ok {
		e.mu.Unlock()
		return ErrUnknownPeer
	}
	if len(payload) > e.cfg.MTU {
		e.mu.Unlock()
		return ErrDataTooLarge
	}
	e.mu.Unlock()

	waitCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.SendTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, e.cfg.SendTimeout)
	} else {
		waitCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	go func() {
		select {
		case <-e.closedCh:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	if _, err := e.globalEvents.Wait(waitCtx, queueHasFreeSlots, false); err != nil {
		if e.isClosed() {
			return ErrFailed
		}
		return classifyWaitErr(err)
	}
	if _, err := p.events.Wait(waitCtx, canAcceptIFrames, false); err != nil {
		if e.isClosed() {
			return ErrFailed
		}
		return classifyWaitErr(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrFailed
	}
	ns := p.lastNS
	ctrl := iControl(ns, 0, false)
	if _, err := e.iq.Allocate(queue.I, makeAddress(p.addr, true), ctrl, payload); err != nil {
		return ErrTimeout
	}
	p.lastNS = seqAdvance(p.lastNS)
	p.refreshAcceptEvent()
	if !e.iq.HasFreeSlots() {
		e.globalEvents.Clear(queueHasFreeSlots)
	}
	return nil
}

func (e *Endpoint) isClosed() bool {
	select {
	case <-e.closedCh:
		return true
	default:
		return false
	}
}

func classifyWaitErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrFailed
}

// RunTX drives the scheduler and the HDLC-LL TX machine, writing as many
// encoded bytes as fit into out and returning the count written.
func (e *Endpoint) RunTX(out []byte) int {
	e.mu.Lock()
	if !e.codec.IsSending() {
		e.runIdleChecks()
		e.selectNextFrame()
	}
	e.mu.Unlock()
	return e.codec.RunTX(out)
}

// RunRX feeds raw bytes received from the transport into the HDLC-LL RX
// machine, which synchronously invokes handleFrame for each decoded frame.
func (e *Endpoint) RunRX(data []byte) {
	e.codec.RunRX(data)
}

func (e *Endpoint) enqueueU(p *peer, base byte, command bool) {
	_, _ = e.suq.Allocate(queue.U, makeAddress(p.addr, command), base, nil)
}

func (e *Endpoint) enqueueS(p *peer, subtype byte, command bool) {
	ctrl := sControl(subtype, p.nextNR, false)
	_, _ = e.suq.Allocate(queue.S, makeAddress(p.addr, command), ctrl, nil)
	p.sentNR = p.nextNR
}

func (e *Endpoint) isPrimary() bool {
	return e.cfg.Mode == NRM && e.cfg.Addr == AddrPrimary
}

func (e *Endpoint) currentPeer() *peer {
	if len(e.peers) == 0 {
		return nil
	}
	if e.cfg.Mode == ABM {
		return e.peers[0]
	}
	if e.nextPeer >= len(e.peers) {
		e.nextPeer = 0
	}
	return e.peers[e.nextPeer]
}

func (e *Endpoint) advanceNextPeer() {
	if len(e.peers) == 0 {
		return
	}
	e.nextPeer = (e.nextPeer + 1) % len(e.peers)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
