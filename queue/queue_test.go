// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package queue_test

import (
	"bytes"
	"testing"

	"code.hybscloud.com/tinyproto/queue"
)

func TestAllocateAndFree(t *testing.T) {
	q := queue.New(4, 8)
	if !q.HasFreeSlots() {
		t.Fatal("fresh queue should have free slots")
	}

	idx, err := q.Allocate(queue.I, 0x04, 0x00, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !bytes.Equal(q.Slot(idx).Payload(), []byte{1, 2, 3}) {
		t.Fatalf("payload = %v", q.Slot(idx).Payload())
	}

	q.Free(idx)
	if q.Slot(idx).Type != queue.Free {
		t.Fatal("freed slot should report Free type")
	}
}

func TestAllocateFullQueue(t *testing.T) {
	q := queue.New(2, 4)
	if _, err := q.Allocate(queue.S, 0, 0, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Allocate(queue.S, 0, 0, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Allocate(queue.S, 0, 0, nil); err != queue.ErrFull {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestAllocateRejectsOversizedPayload(t *testing.T) {
	q := queue.New(2, 4)
	if _, err := q.Allocate(queue.I, 0, 0, []byte{1, 2, 3, 4, 5}); err != queue.ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestNextMatchesAddressIgnoringCRBit(t *testing.T) {
	q := queue.New(4, 4)
	// address 0x04 with C/R bit (0x02) set vs clear should be treated the
	// same for lookup purposes.
	idx, _ := q.Allocate(queue.S, 0x06, 0x00, nil)

	found, ok := q.Next(queue.S, 0x04, 0)
	if !ok || found != idx {
		t.Fatalf("Next() = %d, %v, want %d, true", found, ok, idx)
	}
}

func TestNextMatchesIFrameBySequence(t *testing.T) {
	q := queue.New(4, 4)
	// N(S)=3 encoded in bits 1-3 of control: 3<<1 = 0x06.
	idxA, _ := q.Allocate(queue.I, 0x04, 0x06, nil)
	q.Allocate(queue.I, 0x04, 0x00, nil) // N(S)=0

	found, ok := q.Next(queue.I, 0x04, 3)
	if !ok || found != idxA {
		t.Fatalf("Next() = %d, %v, want %d, true", found, ok, idxA)
	}
}

func TestFreeAdvancesLookupHintForFIFOBias(t *testing.T) {
	q := queue.New(3, 4)
	a, _ := q.Allocate(queue.S, 0, 0, []byte("a"))
	b, _ := q.Allocate(queue.S, 0, 0, []byte("b"))
	q.Allocate(queue.S, 0, 0, []byte("c"))

	q.Free(a)
	q.Free(b)

	idx, ok := q.Next(queue.Free, 0, 0)
	if !ok || idx != a {
		t.Fatalf("Next(Free) = %d, %v, want first-freed slot %d", idx, ok, a)
	}
}

func TestFreeByAddressAndReset(t *testing.T) {
	q := queue.New(4, 4)
	q.Allocate(queue.I, 0x04, 0, []byte("x"))
	q.Allocate(queue.I, 0x08, 0, []byte("y"))

	q.FreeByAddress(0x04)
	if _, ok := q.Next(queue.I, 0x04, 0); ok {
		t.Fatal("address 0x04 slot should have been freed")
	}
	if _, ok := q.Next(queue.I, 0x08, 0); !ok {
		t.Fatal("address 0x08 slot should remain")
	}

	q.Reset()
	if !q.HasFreeSlots() {
		t.Fatal("Reset should free every slot")
	}
}
