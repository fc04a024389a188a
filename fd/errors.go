// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd

import "errors"

var (
	// ErrTimeout reports SendPacket exhausting its wait for a window slot.
	ErrTimeout = errors.New("fd: timeout")
	// ErrFailed reports a call made after Close, or cancelled by Close while
	// waiting.
	ErrFailed = errors.New("fd: failed")
	// ErrUnknownPeer reports an address with no entry in the peer table.
	ErrUnknownPeer = errors.New("fd: unknown peer")
	// ErrInvalidArgument reports bad configuration passed to New
	// (WindowFrames outside 2..7).
	ErrInvalidArgument = errors.New("fd: invalid argument")
	// ErrDataTooLarge reports a SendPacket payload exceeding the configured MTU.
	ErrDataTooLarge = errors.New("fd: payload exceeds mtu")
	// ErrTooManyPeers reports RegisterPeer called beyond PeersCount capacity.
	ErrTooManyPeers = errors.New("fd: too many peers")
	// ErrPeerExists reports RegisterPeer called twice for the same address.
	ErrPeerExists = errors.New("fd: peer already registered")
)
