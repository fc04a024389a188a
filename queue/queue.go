// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package queue implements the fixed-capacity slotted frame store shared by
// the fd engine's I-queue (outbound I-frames awaiting acknowledgment) and
// S/U-queue (control traffic). Every slot is one of Free, U, S, or I; a
// linear scan from a FIFO-biased hint index finds slots by address and,
// for I-frames, by sequence number.
package queue

import "errors"

// ErrFull reports Allocate called with no Free slot available.
var ErrFull = errors.New("queue: full")

// ErrPayloadTooLarge reports an Allocate payload exceeding the queue's MTU.
var ErrPayloadTooLarge = errors.New("queue: payload exceeds mtu")

// Type tags a slot's contents. Free marks an unused slot.
// Values double as a bitmask so Next can match more than one type per call.
type Type uint8

const (
	Free Type = 1 << iota
	U
	S
	I
)

// AnyControl matches every occupied slot regardless of type.
const AnyControl = U | S | I

// addrMask strips the C/R bit (bit1) when comparing addresses for slot
// lookup: a queued frame matches its peer regardless of which direction it
// was stamped for.
const addrMask = 0xFC

// Slot is one entry in the queue. Payload is the slot's private backing
// array truncated to Len; callers must not retain it past the next mutation
// of the same Queue (Allocate into a reused index, Free, Reset).
type Slot struct {
	Type    Type
	Address byte
	Control byte
	Len     int
	payload []byte
}

// Payload returns the slot's stored bytes.
func (s *Slot) Payload() []byte { return s.payload[:s.Len] }

// Queue is a fixed-capacity array of Slots with Free/U/S/I tagging and a
// FIFO-biased lookup hint, grounded on the original frame_queue's
// pointer-table design reimagined as a flat slice of values.
type Queue struct {
	slots      []Slot
	mtu        int
	lookupHint int
}

// New allocates a Queue with room for capacity slots, each able to hold up
// to mtu bytes of payload.
func New(capacity, mtu int) *Queue {
	q := &Queue{
		slots: make([]Slot, capacity),
		mtu:   mtu,
	}
	for i := range q.slots {
		q.slots[i].Type = Free
		q.slots[i].payload = make([]byte, mtu)
	}
	return q
}

// MTU returns the maximum payload length a slot can hold.
func (q *Queue) MTU() int { return q.mtu }

// Capacity returns the number of slots.
func (q *Queue) Capacity() int { return len(q.slots) }

// HasFreeSlots reports whether Allocate would currently succeed.
func (q *Queue) HasFreeSlots() bool {
	for i := range q.slots {
		if q.slots[i].Type == Free {
			return true
		}
	}
	return false
}

// Allocate finds a Free slot, copies payload into it, tags it typ, and
// returns its index. It fails with ErrFull if no slot is free and with
// ErrPayloadTooLarge if len(payload) exceeds the queue's MTU.
func (q *Queue) Allocate(typ Type, address, control byte, payload []byte) (int, error) {
	if len(payload) > q.mtu {
		return -1, ErrPayloadTooLarge
	}
	for i := range q.slots {
		if q.slots[i].Type == Free {
			s := &q.slots[i]
			s.Type = typ
			s.Address = address
			s.Control = control
			s.Len = copy(s.payload, payload)
			return i, nil
		}
	}
	return -1, ErrFull
}

// Next performs a linear scan starting at the FIFO hint, returning the
// index of the first slot matching typeMask and address.
//
// Free is matched irrespective of address or arg. For non-Free types, a
// slot matches when its Address equals address with the C/R bit masked off;
// if typeMask includes I, an I-frame slot additionally must carry N(S) ==
// arg in the low 3 bits (shifted right 1) of Control, per the I-frame
// control layout N(R)[3]|P/F|N(S)[3]|0.
func (q *Queue) Next(typeMask Type, address byte, arg byte) (int, bool) {
	n := len(q.slots)
	for k := 0; k < n; k++ {
		i := (q.lookupHint + k) % n
		s := &q.slots[i]
		if s.Type&typeMask == 0 {
			continue
		}
		if s.Type == Free {
			return i, true
		}
		if s.Address&addrMask != address&addrMask {
			continue
		}
		if s.Type == I && typeMask&I != 0 {
			if ns(s.Control) != arg {
				continue
			}
		}
		return i, true
	}
	return -1, false
}

// ns extracts the N(S) field (bits 1-3) from an I-frame control byte.
func ns(control byte) byte { return (control >> 1) & 0x07 }

// Free marks the slot at index as Free, advancing the lookup hint past it
// so subsequent scans bias toward FIFO order.
func (q *Queue) Free(index int) {
	if index < 0 || index >= len(q.slots) {
		return
	}
	q.slots[index] = Slot{Type: Free, payload: q.slots[index].payload}
	q.lookupHint = (index + 1) % len(q.slots)
}

// FreeByAddress frees every slot belonging to address, of any occupied
// type. Used when a peer disconnects and its queued traffic must be
// discarded.
func (q *Queue) FreeByAddress(address byte) {
	for i := range q.slots {
		if q.slots[i].Type != Free && q.slots[i].Address&addrMask == address&addrMask {
			q.Free(i)
		}
	}
}

// Reset frees every slot.
func (q *Queue) Reset() {
	for i := range q.slots {
		q.Free(i)
	}
	q.lookupHint = 0
}

// Slot returns a pointer to the slot at index for direct inspection or
// in-place mutation (e.g. stamping N(R) into Control before transmit). The
// pointer is invalidated by Free or Reset on the same index.
func (q *Queue) Slot(index int) *Slot { return &q.slots[index] }
