// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package remote copies byte ranges out of a foreign process's address
// space. It is the lowest layer of the sampler (spec.md §2 "Remote Memory
// Reader", ~5% of the core) and the only layer that issues a read syscall;
// every other package works in terms of the Reader interface so platform
// differences never leak upward.
//
// The design generalizes golang.org/x/debug/internal/core.Process, which
// reads an already-captured ELF core file, to a live, running inferior:
// the Address type and its bounds-checked construction here play the role
// that core.Address and core.Process.Readable played there, but every read
// now reaches across process boundaries instead of into an mmap'd file.
package remote

import "fmt"

// Address is a raw, unvalidated pointer value in a target process's
// address space. It cannot be read directly: Bounds.Validate turns it
// into a RemoteAddress, which is what a Reader accepts, and is the single
// choke point spec.md §3's invariant ("every remote read address X must
// satisfy min_addr ≤ X < max_addr") passes through.
type Address uint64

func (a Address) String() string { return fmt.Sprintf("0x%x", uint64(a)) }

// Add returns a + Address(n). n may be negative.
func (a Address) Add(n int64) Address { return Address(int64(a) + n) }

// Sub returns a - b as a byte count.
func (a Address) Sub(b Address) int64 { return int64(a) - int64(b) }

// Bounds is the [min, max) window a RemoteAddress must fall within. It is
// populated once, from the Process Map Introspector, and never mutated
// (spec.md §3 Lifecycle: "session-wide state ... built once on attach").
type Bounds struct {
	Min, Max Address
}

// Contains reports whether the half-open range [a, a+n) lies entirely
// within b. A zero or negative n is never contained.
func (b Bounds) Contains(a Address, n int64) bool {
	if n <= 0 {
		return false
	}
	end := a.Add(n)
	return a >= b.Min && end <= b.Max && end > a
}

// Validate returns a RemoteAddress for (handle, addr) if addr is within
// bounds, or a *errs.Error of kind MemoryFault if not — without issuing a
// syscall, per spec.md §4.6 ("rejected without a read syscall").
func (b Bounds) Validate(handle ProcessHandle, addr Address, length int64) (RemoteAddress, error) {
	if !b.Contains(addr, length) {
		return RemoteAddress{}, outOfBounds(addr, length, b)
	}
	return RemoteAddress{handle: handle, addr: addr}, nil
}

// RemoteAddress is an opaque reference into another process's address
// space: (process_handle, address), per spec.md §3. It is never
// dereferenceable locally.
type RemoteAddress struct {
	handle ProcessHandle
	addr   Address
}

// Addr returns the raw remote address, for diagnostics and for
// constructing a derived RemoteAddress via Bounds.Validate.
func (r RemoteAddress) Addr() Address { return r.addr }
