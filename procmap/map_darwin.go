// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin

package procmap

/*
#include <mach/mach.h>
#include <mach/mach_vm.h>
*/
import "C"

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/austin-profiler/austin/errs"
)

var darwinHeapPaths = []string{"MALLOC_LARGE", "MALLOC_TINY", "MALLOC_SMALL"}

// Load enumerates pid's regions. macOS exposes no equivalent of
// /proc/pid/maps as a stable text file; the two realizations are
// mach_vm_region_recurse (requires the same task_for_pid privilege the
// Reader already needs) or the `vmmap` command-line tool. This
// implementation acquires the task port only as a permission check and
// takes the region list from a `vmmap -wide` subprocess.
func Load(pid int, interpreterFamily string) (*MemoryMap, error) {
	var task C.task_t
	if kr := C.task_for_pid(C.mach_task_self_, C.int(pid), &task); kr != C.KERN_SUCCESS {
		return nil, errs.New(errs.PermissionDenied, "task_for_pid(%d): kern_return_t=%d", pid, int(kr))
	}
	defer C.mach_port_deallocate(C.mach_task_self_, task)

	regions, err := walkRegions(task, pid)
	if err != nil {
		return nil, err
	}

	m := buildFromRegions(regions, interpreterFamily, darwinHeapPaths, nil, statFileSize)
	if m.BinPath == "" && m.LibPath == "" {
		return nil, errs.New(errs.MapIncomplete, "no candidate %s binary found in pid %d's regions", interpreterFamily, pid)
	}
	if !m.hasHeap {
		return nil, errs.New(errs.MapIncomplete, "no malloc heap zone found in pid %d", pid)
	}
	return m, nil
}

// walkRegions runs `vmmap -wide` on pid and parses its output into
// regions, each annotated with vmmap's naming (MALLOC_* tags for heap
// zones, an image path for mapped Mach-O files); task is not used. It
// does not call mach_vm_region_recurse_64: Apple's VM region info
// structs change shape across OS versions more often than vmmap's text
// output does.
func walkRegions(task C.task_t, pid int) ([]Region, error) {
	out, err := exec.Command("vmmap", "-wide", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil, errs.Wrap(errs.PermissionDenied, err, "vmmap -wide %d", pid)
	}
	return parseVmmap(string(out)), nil
}

// parseVmmap extracts (base, size, perm, path) tuples from `vmmap -wide`
// output lines of the form:
//
//	__TEXT     0000000104a50000-0000000104e5c000 [ 4144K] r-x/r-x SM=COW  /usr/bin/python3.11
func parseVmmap(output string) []Region {
	var regions []Region
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		addrs := strings.SplitN(fields[1], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		base, err1 := strconv.ParseUint(strings.TrimPrefix(addrs[0], "0x"), 16, 64)
		end, err2 := strconv.ParseUint(strings.TrimPrefix(addrs[1], "0x"), 16, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		var path string
		if last := fields[len(fields)-1]; strings.HasPrefix(last, "/") {
			path = last
		} else if fields[0] == "MALLOC_TINY" || fields[0] == "MALLOC_LARGE" || fields[0] == "MALLOC_SMALL" {
			path = fields[0]
		}
		regions = append(regions, Region{
			Base: base,
			Size: end - base,
			Perm: parseVmmapPerm(fields),
			Path: path,
		})
	}
	return regions
}

func parseVmmapPerm(fields []string) Perm {
	for _, f := range fields {
		if strings.Contains(f, "/") && (strings.ContainsAny(f, "rwx-") ) {
			var p Perm
			cur := strings.SplitN(f, "/", 2)[0]
			if strings.Contains(cur, "r") {
				p |= Read
			}
			if strings.Contains(cur, "w") {
				p |= Write
			}
			if strings.Contains(cur, "x") {
				p |= Exec
			}
			return p
		}
	}
	return 0
}
