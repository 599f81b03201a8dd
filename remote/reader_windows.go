// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package remote

import (
	"golang.org/x/sys/windows"

	"github.com/austin-profiler/austin/errs"
)

// windowsHandle wraps an OpenProcess handle, held for the session's
// lifetime.
type windowsHandle struct {
	pid    int
	handle windows.Handle
}

func (h windowsHandle) PID() int { return h.pid }

// NewHandle opens pid with the access rights ReadProcessMemory and
// VirtualQueryEx require.
func NewHandle(pid int) (ProcessHandle, error) {
	const access = windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ
	h, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		if err == windows.ERROR_INVALID_PARAMETER {
			return nil, errs.New(errs.NoSuchProcess, "pid %d", pid)
		}
		return nil, errs.Wrap(errs.PermissionDenied, err, "OpenProcess(%d)", pid)
	}
	return windowsHandle{pid: pid, handle: h}, nil
}

type windowsReader struct {
	h windowsHandle
}

// NewReader builds a Reader around a handle acquired by NewHandle.
func NewReader(h ProcessHandle) (Reader, error) {
	wh, ok := h.(windowsHandle)
	if !ok {
		return nil, errs.New(errs.PermissionDenied, "not a windows process handle")
	}
	return &windowsReader{h: wh}, nil
}

func (r *windowsReader) Read(remote RemoteAddress, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	var nread uintptr
	err := windows.ReadProcessMemory(r.h.handle, uintptr(remote.Addr()), &dst[0], uintptr(len(dst)), &nread)
	if err != nil {
		return classify(r.h.pid, remote.Addr(), err)
	}
	if int(nread) != len(dst) {
		return errs.New(errs.MemoryFault, "short read at %s: got %d of %d bytes", remote.Addr(), nread, len(dst))
	}
	return nil
}

func (r *windowsReader) Close() error {
	return windows.CloseHandle(r.h.handle)
}

func classify(pid int, addr Address, cause error) error {
	switch cause {
	case windows.ERROR_INVALID_PARAMETER, windows.ERROR_INVALID_HANDLE:
		return classifySyscallError(errs.NoSuchProcess, pid, addr, cause)
	case windows.ERROR_ACCESS_DENIED:
		return classifySyscallError(errs.PermissionDenied, pid, addr, cause)
	default:
		return classifySyscallError(errs.MemoryFault, pid, addr, cause)
	}
}
