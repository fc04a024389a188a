// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package crc_test

import (
	"testing"

	"code.hybscloud.com/tinyproto/crc"
)

func TestGoodResidue(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	for _, k := range []crc.Kind{crc.C8, crc.C16, crc.C32} {
		sum := k.Sum(payload)
		fcs := k.Finalize(sum)

		running := k.Seed()
		for _, b := range payload {
			running = k.Update(running, b)
		}
		for _, b := range fcs {
			running = k.Update(running, b)
		}

		if running != k.Good() {
			t.Errorf("%s: residue = 0x%x, want good value 0x%x", k, running, k.Good())
		}
	}
}

func TestSizeAndSeed(t *testing.T) {
	cases := []struct {
		kind crc.Kind
		size int
		seed uint32
	}{
		{crc.Off, 0, 0},
		{crc.C8, 1, 0},
		{crc.C16, 2, 0xFFFF},
		{crc.C32, 4, 0xFFFFFFFF},
	}
	for _, c := range cases {
		if got := c.kind.Size(); got != c.size {
			t.Errorf("%s: Size() = %d, want %d", c.kind, got, c.size)
		}
		if got := c.kind.Seed(); got != c.seed {
			t.Errorf("%s: Seed() = 0x%x, want 0x%x", c.kind, got, c.seed)
		}
	}
}

func TestOffIsNoop(t *testing.T) {
	if got := crc.Off.Sum([]byte{1, 2, 3}); got != 0 {
		t.Fatalf("Off.Sum() = %d, want 0", got)
	}
	if got := crc.Off.Finalize(0); got != nil {
		t.Fatalf("Off.Finalize() = %v, want nil", got)
	}
}

func TestValid(t *testing.T) {
	for _, k := range []crc.Kind{crc.Off, crc.C8, crc.C16, crc.C32} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if crc.Kind(99).Valid() {
		t.Fatal("kind 99 should not be valid")
	}
}

func TestC8AdditiveSum(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30}
	want := uint32((0x10 + 0x20 + 0x30) & 0xFF)
	if got := crc.C8.Sum(data); got != want {
		t.Fatalf("C8.Sum() = %d, want %d", got, want)
	}
}
