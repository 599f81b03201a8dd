// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"errors"
	"testing"

	"github.com/austin-profiler/austin/errs"
)

type fakeHandle struct{ pid int }

func (f fakeHandle) PID() int { return f.pid }

func TestBoundsContains(t *testing.T) {
	b := Bounds{Min: 0x1000, Max: 0x2000}
	cases := []struct {
		addr Address
		n    int64
		want bool
	}{
		{0x1000, 16, true},
		{0x1ff0, 16, true},
		{0x1ff1, 16, false}, // would run past Max
		{0x0ff0, 16, false}, // starts before Min
		{0x1000, 0, false},
		{0x1000, -1, false},
	}
	for _, c := range cases {
		if got := b.Contains(c.addr, c.n); got != c.want {
			t.Errorf("Contains(%s, %d) = %v, want %v", c.addr, c.n, got, c.want)
		}
	}
}

func TestValidateRejectsOutOfBoundsWithoutSyscall(t *testing.T) {
	b := Bounds{Min: 0x1000, Max: 0x2000}
	_, err := b.Validate(fakeHandle{pid: 1}, 0x5000, 8)
	if err == nil {
		t.Fatal("expected an error for an out-of-bounds address")
	}
	if !errors.Is(err, errs.ErrMemoryFault) {
		t.Errorf("got %v, want MemoryFault", err)
	}
}

func TestValidateAccepts(t *testing.T) {
	b := Bounds{Min: 0x1000, Max: 0x2000}
	ra, err := b.Validate(fakeHandle{pid: 1}, 0x1500, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ra.Addr() != 0x1500 {
		t.Errorf("Addr() = %s, want 0x1500", ra.Addr())
	}
}
