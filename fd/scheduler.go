// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd

import (
	"code.hybscloud.com/tinyproto/queue"
)

// runIdleChecks implements run_tx_step's step 2: retry/KA timers for every
// peer, and primary-side connection (re)attempts. Called with mu held.
func (e *Endpoint) runIdleChecks() {
	now := e.h.Now()
	for _, p := range e.peers {
		switch p.state {
		case Connected:
			unconfirmed := p.confirmNS != p.nextNS
			allSent := p.nextNS == p.lastNS
			if unconfirmed && allSent && now.Sub(p.lastITS) >= e.cfg.RetryTimeout {
				if p.retries > 0 {
					p.retries--
					p.nextNS = p.confirmNS
					p.lastITS = now
					e.logger.Debug("retry timeout, rewinding window", "addr", p.addr, "retries_left", p.retries)
				} else {
					e.transitionDisconnected(p)
					continue
				}
			}
			if now.Sub(p.lastKATS) >= e.cfg.KATimeout {
				if !p.kaConfirmed {
					e.logger.Info("keep-alive missed, disconnecting", "addr", p.addr)
					e.transitionDisconnected(p)
					continue
				}
				e.enqueueS(p, sSubtypeRR, e.frameDirectionCommand(p))
				p.lastKATS = now
				p.kaConfirmed = false
			}
		case Disconnected:
			if e.initiatesConnections() && now.Sub(p.lastConnectAttempt) >= e.cfg.RetryTimeout {
				base := ctrlSABM
				if e.cfg.Mode == NRM {
					base = ctrlSNRM
				}
				e.enqueueU(p, base, true)
				p.state = Connecting
				p.lastConnectAttempt = now
			}
		}
	}
}

// initiatesConnections reports whether this endpoint is responsible for
// spontaneously (re)issuing SABM/SNRM: the NRM primary, or either station
// in ABM (symmetric peer-to-peer).
func (e *Endpoint) initiatesConnections() bool {
	return e.cfg.Mode == ABM || e.isPrimary()
}

// frameDirectionCommand reports whether frames this endpoint originates for
// p should carry C/R=1. The NRM primary always commands; NRM secondaries
// always respond; ABM stations always command.
func (e *Endpoint) frameDirectionCommand(p *peer) bool {
	if e.cfg.Mode == NRM {
		return e.isPrimary()
	}
	return true
}

func (e *Endpoint) transitionDisconnected(p *peer) {
	p.enterDisconnected()
	e.iq.FreeByAddress(makeAddress(p.addr, false))
	e.suq.FreeByAddress(makeAddress(p.addr, false))
	if e.cfg.OnConnectEvent != nil {
		e.mu.Unlock()
		e.cfg.OnConnectEvent(p.addr, false)
		e.mu.Lock()
	}
}

// hasIFramePending reports whether an I-frame slot is ready to send for p
// at its current next_ns.
func (e *Endpoint) hasIFramePending(p *peer) bool {
	_, ok := e.iq.Next(queue.I, makeAddress(p.addr, false), p.nextNS)
	return ok
}

// hasPendingTraffic reports whether anything at all is queued for p.
func (e *Endpoint) hasPendingTraffic(p *peer) bool {
	if _, ok := e.suq.Next(queue.U|queue.S, makeAddress(p.addr, false), 0); ok {
		return true
	}
	return e.hasIFramePending(p)
}

// confirm implements §4.6 step 3: free and acknowledge every I-queue slot
// from confirm_ns up to (excluding) nr, then reopen the window if room
// freed up.
func (e *Endpoint) confirm(p *peer, nr byte) {
	for p.confirmNS != nr {
		if idx, ok := e.iq.Next(queue.I, makeAddress(p.addr, false), p.confirmNS); ok {
			slot := e.iq.Slot(idx)
			payload := append([]byte(nil), slot.Payload()...)
			e.iq.Free(idx)
			if e.cfg.OnSend != nil {
				e.mu.Unlock()
				e.cfg.OnSend(p.addr, payload)
				e.mu.Lock()
			}
		}
		p.confirmNS = seqAdvance(p.confirmNS)
	}
	p.refreshAcceptEvent()
	if e.iq.HasFreeSlots() {
		e.globalEvents.Set(queueHasFreeSlots)
	}
}

// selectNextFrame implements run_tx_step's steps 3-4: priority selection
// among S/U traffic, I-frame retransmission/new-send, and NRM marker
// fabrication, guarded by HasMarker. Called with mu held.
func (e *Endpoint) selectNextFrame() {
	if !e.hasMarker {
		if e.isPrimary() && e.h.Now().Sub(e.lastMarkerTS) >= e.cfg.RetryTimeout {
			e.hasMarker = true
			e.lastMarkerTS = e.h.Now()
		} else {
			return
		}
	}

	p := e.currentPeer()
	if p == nil {
		return
	}
	command := e.frameDirectionCommand(p)

	if idx, ok := e.suq.Next(queue.U|queue.S, makeAddress(p.addr, false), 0); ok {
		slot := e.suq.Slot(idx)
		ctrl := slot.Control
		switch classify(ctrl) {
		case kindU:
			ctrl = uControl(uBaseOf(ctrl), true)
		default:
			ctrl = sControl(sSubtype(ctrl), p.nextNR, true)
		}
		body := append([]byte{slot.Address, ctrl}, slot.Payload()...)
		if e.codec.Put(body) == nil {
			e.markSent(p, false, command)
		}
		e.suq.Free(idx)
		return
	}

	if p.state == Connected {
		if idx, ok := e.iq.Next(queue.I, makeAddress(p.addr, false), p.nextNS); ok {
			slot := e.iq.Slot(idx)
			ctrl := iControl(p.nextNS, p.nextNR, true)
			body := append([]byte{makeAddress(p.addr, command), ctrl}, slot.Payload()...)
			if e.codec.Put(body) == nil {
				p.nextNS = seqAdvance(p.nextNS)
				p.sentNR = p.nextNR
				p.lastITS = e.h.Now()
				e.markSent(p, true, command)
			}
			return
		}
	}

	if e.cfg.Mode == NRM {
		var ctrl byte
		if p.state != Connected {
			ctrl = uControl(ctrlSNRM, true)
		} else {
			ctrl = sControl(sSubtypeRR, p.nextNR, true)
		}
		body := []byte{makeAddress(p.addr, command), ctrl}
		if e.codec.Put(body) == nil {
			e.markSent(p, false, command)
		}
	}
}

func (e *Endpoint) markSent(p *peer, isI bool, command bool) {
	e.pending = pendingTX{peer: p, isI: isI, isCmd: command}
}

// handleFrameSent is the HDLC-LL on_frame_sent callback: it releases the
// marker once a held transmission finishes draining, per §4.7.
func (e *Endpoint) handleFrameSent(body []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pend := e.pending
	e.pending = pendingTX{}
	if pend.peer == nil {
		return
	}
	if e.cfg.Mode == NRM {
		e.hasMarker = false
		if e.isPrimary() {
			e.advanceNextPeer()
			e.hasMarker = true
			e.lastMarkerTS = e.h.Now()
		}
	}
}

func (e *Endpoint) handleFrameErr(err error) {
	e.logger.Debug("frame decode error", "err", err)
}
