// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd

import (
	"time"

	"code.hybscloud.com/tinyproto/hal"
)

// State is a peer's connection state.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// canAcceptIFrames is the one event bit used per peer: set whenever the
// sliding window has room for another producer-allocated N(S).
const canAcceptIFrames uint8 = 0x01

// peer holds the per-remote-station bookkeeping from the data model: window
// sequence counters, retry/keep-alive timestamps, and connection state.
type peer struct {
	addr  byte
	state State

	nextNR    byte
	sentNR    byte
	nextNS    byte
	confirmNS byte
	lastNS    byte

	sentReject  bool
	lastITS     time.Time
	lastKATS    time.Time
	kaConfirmed bool
	retries     int

	lastConnectAttempt time.Time

	window byte
	events hal.EventGroup
}

func newPeer(addr byte, h hal.HAL, retries, window int) *peer {
	p := &peer{
		addr:        addr,
		state:       Disconnected,
		kaConfirmed: true,
		retries:     retries,
		window:      byte(window),
		events:      h.NewEventGroup(),
	}
	p.events.Set(canAcceptIFrames)
	return p
}

// windowHasRoom reports whether a new N(S) may be allocated: fewer than
// window outstanding (allocated but not yet confirmed) sequence numbers.
func (p *peer) windowHasRoom() bool {
	return windowDepth(p.confirmNS, p.lastNS) < p.window
}

func (p *peer) refreshAcceptEvent() {
	if p.windowHasRoom() {
		p.events.Set(canAcceptIFrames)
	} else {
		p.events.Clear(canAcceptIFrames)
	}
}

// enterConnected resets sequence counters and window state per §4.5.
func (p *peer) enterConnected(now time.Time, retries int) {
	p.state = Connected
	p.confirmNS = 0
	p.nextNS = 0
	p.lastNS = 0
	p.nextNR = 0
	p.sentNR = 0
	p.sentReject = false
	p.retries = retries
	p.kaConfirmed = true
	p.lastITS = now
	p.lastKATS = now
	p.refreshAcceptEvent()
}

func (p *peer) enterDisconnected() {
	p.state = Disconnected
	p.events.Set(canAcceptIFrames)
}

// Status is a point-in-time snapshot returned by Endpoint.PeerStatus.
type Status struct {
	Addr      byte
	State     State
	NextNS    byte
	ConfirmNS byte
	LastNS    byte
	NextNR    byte
}
