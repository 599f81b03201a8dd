// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin

package remote

/*
#cgo LDFLAGS: -framework CoreFoundation
#include <mach/mach.h>
#include <mach/mach_vm.h>

static kern_return_t read_mem(task_t task, mach_vm_address_t addr, void *buf, mach_vm_size_t size) {
	mach_vm_size_t outsize = 0;
	return mach_vm_read_overwrite(task, addr, size, (mach_vm_address_t)buf, &outsize);
}
*/
import "C"

import (
	"unsafe"

	"github.com/austin-profiler/austin/errs"
)

// darwinHandle wraps a Mach task port, acquired once at attach and held
// for the session's lifetime (spec.md §5 "process handle ... acquired at
// attach, released at session teardown").
type darwinHandle struct {
	pid  int
	task C.task_t
}

func (h darwinHandle) PID() int { return h.pid }

// NewHandle acquires a send right to pid's task port via task_for_pid.
// This requires either running as root or the target having granted
// task_for_pid access (e.g. via a codesigning entitlement); failure here
// is PermissionDenied, matching spec.md §7 ("Fatal at attach; reported
// with remediation hint").
func NewHandle(pid int) (ProcessHandle, error) {
	var task C.task_t
	kr := C.task_for_pid(C.mach_task_self_, C.int(pid), &task)
	if kr != C.KERN_SUCCESS {
		return nil, errs.New(errs.PermissionDenied,
			"task_for_pid(%d) failed (kern_return_t=%d); try running as root", pid, int(kr))
	}
	return darwinHandle{pid: pid, task: task}, nil
}

type darwinReader struct {
	h darwinHandle
}

// NewReader builds a Reader around a task port acquired by NewHandle.
func NewReader(h ProcessHandle) (Reader, error) {
	dh, ok := h.(darwinHandle)
	if !ok {
		return nil, errs.New(errs.PermissionDenied, "not a darwin process handle")
	}
	return &darwinReader{h: dh}, nil
}

func (r *darwinReader) Read(remote RemoteAddress, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	kr := C.read_mem(r.h.task, C.mach_vm_address_t(remote.Addr()), unsafe.Pointer(&dst[0]), C.mach_vm_size_t(len(dst)))
	if kr != C.KERN_SUCCESS {
		// KERN_INVALID_ADDRESS (1) is the expected race case; anything
		// else (most commonly KERN_PROTECTION_FAILURE) is reported the
		// same way, since both mean "this read did not land."
		return classifySyscallError(errs.MemoryFault, r.h.pid, remote.Addr(),
			errs.New(errs.MemoryFault, "mach_vm_read_overwrite: kern_return_t=%d", int(kr)))
	}
	return nil
}

func (r *darwinReader) Close() error {
	C.mach_port_deallocate(C.mach_task_self_, r.h.task)
	return nil
}
