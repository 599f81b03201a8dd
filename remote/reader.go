// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"github.com/austin-profiler/austin/errs"
)

// ProcessHandle is an opaque, platform-specific handle on an attached
// target: a pid on Linux, a task port on macOS, a process handle on
// Windows. It is valid for the lifetime of the attached session (spec.md
// §3); Reader implementations type-assert it back to their own concrete
// type.
type ProcessHandle interface {
	// PID returns the target's process id, used for diagnostics and for
	// the gopsutil-based liveness check in procmap.
	PID() int
}

// Reader copies bytes out of a foreign process. Implementations never
// retry; per spec.md §4.1 "the Reader never retries; the caller decides."
type Reader interface {
	// Read atomically copies len(dst) bytes starting at remote.Addr()
	// into dst. A partial read is a failure: either dst is fully
	// populated and err is nil, or dst's contents are unspecified and err
	// is non-nil.
	Read(remote RemoteAddress, dst []byte) error

	// Close releases any OS resources (e.g. an open /proc/pid/mem file
	// descriptor or a Windows process handle) associated with the
	// reader. Close is not idempotent: a second call may return an
	// error.
	Close() error
}

// outOfBounds builds the MemoryFault error for an address rejected before
// any syscall is issued.
func outOfBounds(addr Address, length int64, b Bounds) error {
	return errs.New(errs.MemoryFault,
		"address %s (+%d bytes) outside mapped bounds [%s, %s)", addr, length, b.Min, b.Max)
}

// classifySyscallError maps an OS-level read failure to one of the three
// ReadError kinds spec.md §4.1 names. It is shared by every platform's
// reader so the Kind taxonomy stays centralized (spec.md §9 "ad-hoc
// pointer validation ... centralize in the Reader").
func classifySyscallError(kind errs.Kind, pid int, addr Address, cause error) error {
	return errs.Wrap(kind, cause, "pid %d, addr %s", pid, addr)
}
