// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd

// handleFrame is the HDLC-LL on_frame_read callback: it classifies the
// decoded frame and dispatches to the I/S/U handlers. It executes under
// mu for the classification logic proper, released around user callbacks,
// per the concurrency model's re-entrancy rule.
func (e *Endpoint) handleFrame(body []byte) {
	if len(body) < 2 {
		return
	}
	addr, control := body[0], body[1]
	payload := body[2:]

	e.mu.Lock()
	p := e.lookupPeer(addr)
	if p == nil {
		e.logger.Warn("frame from unregistered peer", "station", stationOf(addr))
		e.mu.Unlock()
		return
	}
	if isPF(control) {
		e.hasMarker = true
	}
	p.kaConfirmed = true
	cmd := isCommand(addr)

	switch classify(control) {
	case kindU:
		e.handleU(p, control)
	case kindS:
		e.handleS(p, control, cmd)
	case kindI:
		e.handleI(p, control, payload)
	}
	e.mu.Unlock()
}

// lookupPeer maps a received frame to a peer. Senders stamp the destination
// station, so a frame carrying this endpoint's own station comes from its
// peer when the table holds exactly one.
func (e *Endpoint) lookupPeer(wireAddr byte) *peer {
	st := stationOf(wireAddr)
	if st == e.cfg.Addr && len(e.peers) == 1 {
		return e.peers[0]
	}
	for _, p := range e.peers {
		if p.addr == st {
			return p
		}
	}
	return nil
}

func (e *Endpoint) fireConnectEvent(addr byte, connected bool) {
	if e.cfg.OnConnectEvent == nil {
		return
	}
	e.mu.Unlock()
	e.cfg.OnConnectEvent(addr, connected)
	e.mu.Lock()
}

func (e *Endpoint) handleU(p *peer, control byte) {
	switch uBaseOf(control) {
	case ctrlSABM, ctrlSNRM:
		wasConnected := p.state == Connected
		p.enterConnected(e.h.Now(), e.cfg.Retries)
		e.iq.FreeByAddress(makeAddress(p.addr, false))
		e.enqueueU(p, ctrlUA, false)
		if !wasConnected {
			e.fireConnectEvent(p.addr, true)
		}
	case ctrlDISC:
		e.enqueueU(p, ctrlUA, false)
		p.enterDisconnected()
		e.iq.FreeByAddress(makeAddress(p.addr, false))
		e.suq.FreeByAddress(makeAddress(p.addr, false))
		e.fireConnectEvent(p.addr, false)
	case ctrlUA:
		switch p.state {
		case Connecting:
			p.enterConnected(e.h.Now(), e.cfg.Retries)
			e.iq.FreeByAddress(makeAddress(p.addr, false))
			e.fireConnectEvent(p.addr, true)
		case Disconnecting:
			p.enterDisconnected()
			e.fireConnectEvent(p.addr, false)
		}
	case ctrlFRMR:
		// Receive-and-log: no peer-side state reset on receipt, matching
		// the original implementation's minimal handling of this frame.
		e.logger.Warn("received FRMR", "addr", p.addr)
	case ctrlRSET:
		e.logger.Debug("received RSET", "addr", p.addr)
	default:
		e.logger.Debug("unhandled U-frame", "control", control)
	}
}

func (e *Endpoint) handleS(p *peer, control byte, cmd bool) {
	nr := nrOf(control)
	switch sSubtype(control) {
	case sSubtypeRR:
		e.confirm(p, nr)
		if cmd && !e.hasPendingTraffic(p) {
			e.enqueueS(p, sSubtypeRR, false)
		}
	case sSubtypeREJ:
		// Validate nr as a rewind point against the still-unconfirmed window
		// before calling confirm: confirm would otherwise free and fire
		// OnSend for I-queue slots past next_ns that were never transmitted.
		if windowDepth(p.confirmNS, nr) <= windowDepth(p.confirmNS, p.nextNS) {
			e.confirm(p, nr)
			p.nextNS = nr
		} else {
			e.enqueueU(p, ctrlFRMR, false)
		}
	}
}

func (e *Endpoint) handleI(p *peer, control byte, payload []byte) {
	ns := nsOf(control)
	nr := nrOf(control)

	if ns == p.nextNR {
		p.nextNR = seqAdvance(p.nextNR)
		p.sentReject = false
		if e.cfg.OnRead != nil {
			cp := append([]byte(nil), payload...)
			e.mu.Unlock()
			e.cfg.OnRead(p.addr, cp)
			e.mu.Lock()
		}
	} else if !p.sentReject {
		e.enqueueS(p, sSubtypeREJ, false)
		p.sentReject = true
	}

	e.confirm(p, nr)

	if !e.hasIFramePending(p) && p.sentNR != p.nextNR {
		e.enqueueS(p, sSubtypeRR, false)
	}
}
