// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"os"
	"runtime"
)

// Reaper is the wait-for-child worker spec.md §5 describes: "a separate
// wait-for-child worker exists only to reap a child interpreter when the
// sampler spawned it; it performs no shared-state access beyond
// observing the child's exit."
//
// This generalizes golang.org/x/debug/program/server/ptrace.go's
// ptraceRun/wait pattern: that code pinned a dedicated OS thread because
// every ptrace call after the first must come from the same thread that
// issued PTRACE_ATTACH. This sampler never ptraces its target, so the
// thread pin isn't required for correctness here, but the reaper still
// uses one: a blocking wait4 (which os.Process.Wait ultimately performs)
// must not have the calling goroutine rescheduled onto a thread that is
// itself blocked in a different process's wait, which LockOSThread rules
// out.
type Reaper struct {
	proc *os.Process
	done chan *os.ProcessState
}

// NewReaper starts watching proc for exit. Done returns a channel that
// receives exactly once, when proc exits.
func NewReaper(proc *os.Process) *Reaper {
	r := &Reaper{proc: proc, done: make(chan *os.ProcessState, 1)}
	go r.run()
	return r
}

func (r *Reaper) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	state, err := r.proc.Wait()
	if err != nil {
		// The process may already have been reaped by another waiter
		// (e.g. a test harness); report a nil state rather than block
		// forever.
		r.done <- nil
		return
	}
	r.done <- state
}

// Done returns the channel that fires once, with the child's exit state,
// when it terminates.
func (r *Reaper) Done() <-chan *os.ProcessState {
	return r.done
}
