// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fd_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/tinyproto/fd"
)

// pump relays bytes between two endpoints' HDLC-LL streams until neither
// side has anything left to say, or the round budget is exhausted.
func pump(a, b *fd.Endpoint, rounds int) {
	buf := make([]byte, 1024)
	for i := 0; i < rounds; i++ {
		if n := a.RunTX(buf); n > 0 {
			b.RunRX(buf[:n])
		}
		if n := b.RunTX(buf); n > 0 {
			a.RunRX(buf[:n])
		}
	}
}

func mustNew(t *testing.T, opts ...fd.Option) *fd.Endpoint {
	t.Helper()
	e, err := fd.New(opts...)
	if err != nil {
		t.Fatalf("fd.New: %v", err)
	}
	return e
}

func newConnectedPair(t *testing.T, extraA, extraB []fd.Option) (*fd.Endpoint, *fd.Endpoint) {
	t.Helper()
	a := mustNew(t, append([]fd.Option{fd.WithAddr(1)}, extraA...)...)
	b := mustNew(t, append([]fd.Option{fd.WithAddr(2)}, extraB...)...)
	if err := a.RegisterPeer(2); err != nil {
		t.Fatalf("a.RegisterPeer: %v", err)
	}
	if err := b.RegisterPeer(1); err != nil {
		t.Fatalf("b.RegisterPeer: %v", err)
	}
	pump(a, b, 20)
	sa, err := a.PeerStatus(2)
	if err != nil {
		t.Fatalf("a.PeerStatus: %v", err)
	}
	sb, err := b.PeerStatus(1)
	if err != nil {
		t.Fatalf("b.PeerStatus: %v", err)
	}
	if sa.State != fd.Connected || sb.State != fd.Connected {
		t.Fatalf("expected both connected after handshake, got a=%s b=%s", sa.State, sb.State)
	}
	return a, b
}

func TestHandshakeReachesConnected(t *testing.T) {
	newConnectedPair(t, nil, nil)
}

func TestSendPacketDeliversPayload(t *testing.T) {
	var mu sync.Mutex
	var got []byte
	received := make(chan struct{}, 1)

	a, b := newConnectedPair(t, nil, []fd.Option{fd.WithOnRead(func(addr byte, payload []byte) {
		mu.Lock()
		got = append([]byte(nil), payload...)
		mu.Unlock()
		received <- struct{}{}
	})})

	if err := a.SendPacket(context.Background(), 2, []byte("hello")); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}
	pump(a, b, 10)

	select {
	case <-received:
	default:
		t.Fatal("payload was not delivered via OnRead")
	}
	mu.Lock()
	defer mu.Unlock()
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestSendPacketRejectsOversizedPayload(t *testing.T) {
	a := mustNew(t, fd.WithAddr(1), fd.WithMTU(8))
	if err := a.RegisterPeer(2); err != nil {
		t.Fatal(err)
	}
	err := a.SendPacket(context.Background(), 2, make([]byte, 9))
	if err != fd.ErrDataTooLarge {
		t.Fatalf("got %v, want ErrDataTooLarge", err)
	}
}

func TestSendPacketRejectsUnknownPeer(t *testing.T) {
	a := mustNew(t, fd.WithAddr(1))
	err := a.SendPacket(context.Background(), 9, []byte("x"))
	if err != fd.ErrUnknownPeer {
		t.Fatalf("got %v, want ErrUnknownPeer", err)
	}
}

func TestCloseFailsPendingSendPacket(t *testing.T) {
	a := mustNew(t, fd.WithAddr(1), fd.WithWindowFrames(2), fd.WithSendTimeout(2*time.Second))
	if err := a.RegisterPeer(2); err != nil {
		t.Fatal(err)
	}
	// Saturate the window so the next SendPacket blocks.
	for i := 0; i < 2; i++ {
		if err := a.SendPacket(context.Background(), 2, []byte("x")); err != nil {
			t.Fatalf("priming send %d: %v", i, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.SendPacket(context.Background(), 2, []byte("blocked"))
	}()

	time.Sleep(20 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-errCh:
		if err != fd.ErrFailed {
			t.Fatalf("got %v, want ErrFailed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendPacket did not unblock after Close")
	}
}

func TestGoBackNRetransmitsDroppedFrame(t *testing.T) {
	var mu sync.Mutex
	var receivedB [][]byte
	a, b := newConnectedPair(t, nil, []fd.Option{fd.WithOnRead(func(addr byte, payload []byte) {
		mu.Lock()
		receivedB = append(receivedB, append([]byte(nil), payload...))
		mu.Unlock()
	})})

	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for i, m := range msgs {
		if err := a.SendPacket(context.Background(), 2, m); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	buf := make([]byte, 1024)
	droppedOnce := false
	for i := 0; i < 60; i++ {
		if n := a.RunTX(buf); n > 0 {
			if !droppedOnce {
				droppedOnce = true
				// Drop this frame on the wire to simulate loss.
			} else {
				b.RunRX(buf[:n])
			}
		}
		if n := b.RunTX(buf); n > 0 {
			a.RunRX(buf[:n])
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(receivedB) != len(msgs) {
		t.Fatalf("got %d payloads, want %d: %v", len(receivedB), len(msgs), receivedB)
	}
	for i, m := range msgs {
		if string(receivedB[i]) != string(m) {
			t.Errorf("payload %d = %q, want %q", i, receivedB[i], m)
		}
	}
}

func TestNRMAddressingIsolatesSecondaries(t *testing.T) {
	clk := newFakeHAL(time.Unix(0, 0))
	primary := mustNew(t,
		fd.WithMode(fd.NRM),
		fd.WithAddr(fd.AddrPrimary),
		fd.WithPeersCount(2),
		fd.WithHAL(clk),
	)
	var mu sync.Mutex
	receivedFrom := map[byte][]byte{}
	onRead := func(addr byte, payload []byte) {
		mu.Lock()
		receivedFrom[addr] = append([]byte(nil), payload...)
		mu.Unlock()
	}
	sec1 := mustNew(t, fd.WithMode(fd.NRM), fd.WithAddr(1), fd.WithHAL(clk), fd.WithOnRead(onRead))
	sec2 := mustNew(t, fd.WithMode(fd.NRM), fd.WithAddr(2), fd.WithHAL(clk), fd.WithOnRead(onRead))

	if err := primary.RegisterPeer(1); err != nil {
		t.Fatal(err)
	}
	if err := primary.RegisterPeer(2); err != nil {
		t.Fatal(err)
	}
	if err := sec1.RegisterPeer(fd.AddrPrimary); err != nil {
		t.Fatal(err)
	}
	if err := sec2.RegisterPeer(fd.AddrPrimary); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1024)
	for i := 0; i < 60; i++ {
		if n := primary.RunTX(buf); n > 0 {
			sec1.RunRX(buf[:n])
			sec2.RunRX(buf[:n])
		}
		if n := sec1.RunTX(buf); n > 0 {
			primary.RunRX(buf[:n])
		}
		if n := sec2.RunTX(buf); n > 0 {
			primary.RunRX(buf[:n])
		}
	}

	s1, err := primary.PeerStatus(1)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := primary.PeerStatus(2)
	if err != nil {
		t.Fatal(err)
	}
	if s1.State != fd.Connected || s2.State != fd.Connected {
		t.Fatalf("expected both secondaries connected, got s1=%s s2=%s", s1.State, s2.State)
	}

	if err := sec1.SendPacket(context.Background(), fd.AddrPrimary, []byte("from-1")); err != nil {
		t.Fatalf("sec1 send: %v", err)
	}
	for i := 0; i < 40; i++ {
		if n := primary.RunTX(buf); n > 0 {
			sec1.RunRX(buf[:n])
			sec2.RunRX(buf[:n])
		}
		if n := sec1.RunTX(buf); n > 0 {
			primary.RunRX(buf[:n])
		}
		if n := sec2.RunTX(buf); n > 0 {
			primary.RunRX(buf[:n])
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := receivedFrom[1]; ok {
		t.Fatal("secondary 1 must not see a frame addressed to it as a station 2 reply")
	}
}

func TestKeepAliveDisconnectsOnMissedResponse(t *testing.T) {
	clk := newFakeHAL(time.Unix(0, 0))
	var mu sync.Mutex
	disconnected := false
	a := mustNew(t,
		fd.WithAddr(1),
		fd.WithHAL(clk),
		fd.WithKATimeout(30*time.Millisecond),
		fd.WithRetryTimeout(5*time.Millisecond),
		fd.WithOnConnectEvent(func(addr byte, connected bool) {
			if !connected {
				mu.Lock()
				disconnected = true
				mu.Unlock()
			}
		}),
	)
	b := mustNew(t, fd.WithAddr(2), fd.WithHAL(clk))
	if err := a.RegisterPeer(2); err != nil {
		t.Fatal(err)
	}
	if err := b.RegisterPeer(1); err != nil {
		t.Fatal(err)
	}
	pump(a, b, 20)

	sa, err := a.PeerStatus(2)
	if err != nil {
		t.Fatal(err)
	}
	if sa.State != fd.Connected {
		t.Fatalf("expected connected before isolating peer b, got %s", sa.State)
	}

	// Stop relaying b's responses: a's keep-alive RR will go unanswered.
	buf := make([]byte, 1024)
	for i := 0; i < 6; i++ {
		clk.Advance(40 * time.Millisecond)
		a.RunTX(buf)
	}

	mu.Lock()
	defer mu.Unlock()
	if !disconnected {
		t.Fatal("expected OnConnectEvent(false) after missed keep-alive")
	}
}

func TestAccessors(t *testing.T) {
	a := mustNew(t, fd.WithAddr(1), fd.WithMTU(64))
	if a.MTU() != 64 {
		t.Errorf("MTU() = %d, want 64", a.MTU())
	}
	a.SetKeepAliveTimeout(2 * time.Second)

	if _, err := a.PeerStatus(9); err != fd.ErrUnknownPeer {
		t.Fatalf("PeerStatus(unregistered) = %v, want ErrUnknownPeer", err)
	}
	if err := a.RegisterPeer(2); err != nil {
		t.Fatal(err)
	}
	if err := a.RegisterPeer(2); err != fd.ErrPeerExists {
		t.Fatalf("RegisterPeer(dup) = %v, want ErrPeerExists", err)
	}
	if err := a.RegisterPeer(3); err != fd.ErrTooManyPeers {
		t.Fatalf("RegisterPeer(beyond capacity) = %v, want ErrTooManyPeers", err)
	}

	n := fd.EstimateMemory(fd.Config{PeersCount: 2, WindowFrames: 4, MTU: 128, CRC: 0})
	if n <= 0 {
		t.Fatalf("EstimateMemory = %d, want positive", n)
	}
}

func TestNewRejectsInvalidWindow(t *testing.T) {
	if _, err := fd.New(fd.WithWindowFrames(1)); err == nil {
		t.Fatal("expected error for window_frames below 2")
	}
	if _, err := fd.New(fd.WithWindowFrames(8)); err == nil {
		t.Fatal("expected error for window_frames above 7")
	}
}
