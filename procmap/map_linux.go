// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package procmap

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/austin-profiler/austin/errs"
)

// linuxPseudoPaths are backing "paths" /proc/pid/maps reports for regions
// that are not real memory-backed mappings (spec.md §4.2: "pseudo-regions
// like virtual-syscall pages are excluded").
var linuxPseudoPaths = []string{"[vvar]", "[vdso]", "[vsyscall]", "[vsyscall64]"}

var linuxHeapPaths = []string{"[heap]"}

// Load parses /proc/pid/maps for the given pid and interpreter family
// name (e.g. "python", "python3").
func Load(pid int, interpreterFamily string) (*MemoryMap, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.NoSuchProcess, err, "pid %d", pid)
		}
		if os.IsPermission(err) {
			return nil, errs.Wrap(errs.PermissionDenied, err, "pid %d", pid)
		}
		return nil, err
	}
	defer f.Close()

	regions, err := parseMaps(f)
	if err != nil {
		return nil, err
	}

	m := buildFromRegions(regions, interpreterFamily, linuxHeapPaths, linuxPseudoPaths, statFileSize)
	if m.BinPath == "" && m.LibPath == "" {
		return nil, errs.New(errs.MapIncomplete, "no candidate %s binary found in pid %d's maps", interpreterFamily, pid)
	}
	if !m.hasHeap {
		return nil, errs.New(errs.MapIncomplete, "no heap region found in pid %d's maps", pid)
	}
	return m, nil
}

// parseMaps parses the text format of /proc/pid/maps:
//
//	55d1a2b9d000-55d1a2bb1000 r-xp 00000000 08:01 1234567  /usr/bin/python3.11
func parseMaps(f *os.File) ([]Region, error) {
	var regions []Region
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		base, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			continue
		}
		perm := parsePerm(fields[1])
		var path string
		if len(fields) >= 6 {
			path = fields[5]
		}
		regions = append(regions, Region{
			Base: base,
			Size: end - base,
			Perm: perm,
			Path: path,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

func parsePerm(s string) Perm {
	var p Perm
	if strings.Contains(s, "r") {
		p |= Read
	}
	if strings.Contains(s, "w") {
		p |= Write
	}
	if strings.Contains(s, "x") {
		p |= Exec
	}
	return p
}
