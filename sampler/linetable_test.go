// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sampler

import (
	"testing"

	"github.com/austin-profiler/austin/layout"
)

func TestDecodeLnotabFixedPair(t *testing.T) {
	// bytecode deltas 2,4,6 paired with line deltas 1,1,1, starting at
	// line 10: instruction 0 is line 10, instruction 2 is line 11,
	// instruction 6 is line 12, instruction 12 is line 13.
	table := []byte{2, 1, 4, 1, 6, 1}
	cases := []struct {
		instr int32
		want  int32
	}{
		{0, 10},
		{1, 10},
		{2, 11},
		{5, 11},
		{6, 12},
		{100, 13},
	}
	for _, c := range cases {
		got := decodeLnotabFixedPair(table, 10, c.instr)
		if got != c.want {
			t.Errorf("decodeLnotabFixedPair(instr=%d) = %d, want %d", c.instr, got, c.want)
		}
	}
}

func TestDecodeLnotabSignedDelta(t *testing.T) {
	// A negative line delta (a loop jumping back) encoded as a signed byte.
	table := []byte{4, 255 /* int8(-1) */}
	got := decodeLnotabSignedDelta(table, 10, 10)
	if got != 9 {
		t.Errorf("got %d, want 9", got)
	}
}

func TestDecodeLnotabSignedDeltaExtendedAddress(t *testing.T) {
	// 0xff,0x00 is a continuation marker extending the address run without
	// changing the line: the first line change is at 255+2 = 257, so
	// instruction 256 is still on line 10.
	table := []byte{0xff, 0x00, 2, 1}
	got := decodeLnotabSignedDelta(table, 10, 256)
	if got != 10 {
		t.Errorf("got %d, want 10", got)
	}
}

func TestDecodeLineTablePEP626(t *testing.T) {
	// length 3, delta +4
	table := []byte{0x02, 0x08}
	got := decodeLineTablePEP626(table, 5, 2)
	if got != 9 {
		t.Errorf("got %d, want 9", got)
	}
}

func TestReadSignedVarintNegative(t *testing.T) {
	// This scheme's encoding of -3 is (3<<1)|1 = 7, a single byte.
	v, i := readSignedVarint([]byte{0x07}, 0)
	if v != -3 || i != 1 {
		t.Errorf("got (%d, %d), want (-3, 1)", v, i)
	}
}

func TestReadSignedVarintTruncated(t *testing.T) {
	v, _ := readSignedVarint([]byte{0x40}, 0) // continuation bit set, no more bytes
	if v != noLineDelta {
		t.Errorf("got %d, want noLineDelta for a truncated varint", v)
	}
}

func TestLineForInstructionEmptyTableReturnsFirstLine(t *testing.T) {
	if got := lineForInstruction(nil, 7, 0, layout.LnotabFixedPair); got != 7 {
		t.Errorf("empty table should return firstLine unchanged, got %d", got)
	}
}
