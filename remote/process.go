// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package remote

import (
	"os"
)

// Attach opens a ProcessHandle and a Reader for an already-running
// target. It is the remote-memory half of spec.md §6's session
// operation attach(pid); the rest (locating the runtime) is the Probe's
// job.
func Attach(pid int) (ProcessHandle, Reader, error) {
	h, err := NewHandle(pid)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewReader(h)
	if err != nil {
		return nil, nil, err
	}
	return h, r, nil
}

// Spawn execs name with argv (argv[0] conventionally equal to name) and
// returns the child's *os.Process alongside a ProcessHandle/Reader pair
// for it, mirroring spec.md §6's session operation spawn(argv).
//
// This generalizes golang.org/x/debug/program/server/ptrace.go's
// startProcess, which also wraps os.StartProcess, but that version ran
// the call on a dedicated, locked OS thread because it immediately
// followed up with PTRACE_ATTACH (ptrace state is per-thread). This
// sampler never attaches as a debugger (spec.md Non-goals), so no thread
// pinning is required here — only the scheduler's wait-for-child worker
// needs a stable OS thread, and only because blocking wait4 calls must
// not migrate goroutines across threads arbitrarily mid-syscall.
func Spawn(name string, argv []string) (*os.Process, ProcessHandle, Reader, error) {
	proc, err := os.StartProcess(name, argv, &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	})
	if err != nil {
		return nil, nil, nil, err
	}
	h, r, err := Attach(proc.Pid)
	if err != nil {
		proc.Kill()
		return nil, nil, nil, err
	}
	return proc, h, r, nil
}
