// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package procmap

import (
	"os"
	"testing"
)

const sampleMaps = `55d1a2b00000-55d1a2b9d000 r-xp 00000000 08:01 1234567  /usr/bin/python3.11
55d1a2b9d000-55d1a2bb1000 r-xp 00000000 08:01 1234567  /usr/bin/python3.11
7f1234500000-7f1234600000 rw-p 00000000 00:00 0        [heap]
7f1234600000-7f1234700000 rw-p 00000000 00:00 0
7ffee0000000-7ffee0021000 r--p 00000000 00:00 0        [vvar]
7ffee0021000-7ffee0023000 r-xp 00000000 00:00 0        [vdso]
`

func writeTempMaps(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "maps")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestParseMaps(t *testing.T) {
	f := writeTempMaps(t, sampleMaps)
	defer f.Close()

	regions, err := parseMaps(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 6 {
		t.Fatalf("got %d regions, want 6", len(regions))
	}
	if regions[0].Path != "/usr/bin/python3.11" {
		t.Errorf("regions[0].Path = %q", regions[0].Path)
	}
	if regions[2].Path != "[heap]" {
		t.Errorf("regions[2].Path = %q, want [heap]", regions[2].Path)
	}
	if regions[0].Perm&Exec == 0 {
		t.Errorf("regions[0] should be executable")
	}
}

// fakeSizer builds a fileSizer backed by a fixed path->size table, so
// tests can exercise the on-disk-size threshold without real files on
// disk backing their synthetic map paths.
func fakeSizer(sizes map[string]uint64) fileSizer {
	return func(path string) (uint64, error) {
		if s, ok := sizes[path]; ok {
			return s, nil
		}
		return 0, os.ErrNotExist
	}
}

func TestBuildFromRegionsSelectsHeapAndBinary(t *testing.T) {
	f := writeTempMaps(t, sampleMaps)
	defer f.Close()
	regions, err := parseMaps(f)
	if err != nil {
		t.Fatal(err)
	}

	// The fixture's two python3.11 regions are each under 1 MiB (only
	// part of the binary is mapped); the on-disk file is what must clear
	// the threshold.
	sizer := fakeSizer(map[string]uint64{"/usr/bin/python3.11": MinInterpreterBinarySize + 1})
	m := buildFromRegions(regions, "python", linuxHeapPaths, linuxPseudoPaths, sizer)
	if m.BinPath != "/usr/bin/python3.11" {
		t.Errorf("BinPath = %q, want /usr/bin/python3.11", m.BinPath)
	}
	if !m.hasHeap {
		t.Fatal("expected a heap region")
	}
	if m.MinAddr != 0x55d1a2b00000 {
		t.Errorf("MinAddr = %s, want 0x55d1a2b00000", m.MinAddr)
	}
	// The vvar/vdso pseudo-regions must not widen MaxAddr past the heap.
	if m.MaxAddr >= 0x7ffee0023000 {
		t.Errorf("MaxAddr = %s should exclude pseudo-regions", m.MaxAddr)
	}
}

func TestBuildFromRegionsFindsBssAdjacentToBinary(t *testing.T) {
	const maps = `55d1a2b00000-55d1a2b9d000 r-xp 00000000 08:01 1234567  /usr/bin/python3.11
55d1a2b9d000-55d1a2bb1000 rw-p 00000000 08:01 1234567  /usr/bin/python3.11
55d1a2bb1000-55d1a2bc0000 rw-p 00000000 00:00 0
7f1234500000-7f1234600000 rw-p 00000000 00:00 0        [heap]
7f1234600000-7f1234700000 rw-p 00000000 00:00 0
`
	f := writeTempMaps(t, maps)
	defer f.Close()
	regions, err := parseMaps(f)
	if err != nil {
		t.Fatal(err)
	}

	sizer := fakeSizer(map[string]uint64{"/usr/bin/python3.11": MinInterpreterBinarySize + 1})
	m := buildFromRegions(regions, "python", linuxHeapPaths, linuxPseudoPaths, sizer)

	bss, ok := m.Bss()
	if !ok {
		t.Fatal("expected a bss region")
	}
	if bss.Base != 0x55d1a2bb1000 {
		t.Errorf("bss.Base = %#x, want 0x55d1a2bb1000 (the anonymous region adjacent to the binary's data segment)", bss.Base)
	}
	// Regression check: an unrelated anonymous region that merely comes
	// later in the map, with no real adjacency to the binary, must never
	// be picked just because BinPath/LibPath happen not to match it.
	if bss.Base == 0x7f1234600000 {
		t.Error("bss must not be the unrelated trailing anonymous region")
	}
}

func TestIsCandidateInterpreterFile(t *testing.T) {
	sizer := fakeSizer(map[string]uint64{
		"/usr/bin/python3.11": MinInterpreterBinarySize,
		"/usr/bin/bash":       MinInterpreterBinarySize + 1,
	})
	if isCandidateInterpreterFile("/usr/bin/python3.11", fakeSizer(map[string]uint64{"/usr/bin/python3.11": MinInterpreterBinarySize - 1}), "python") {
		t.Error("a file under the size threshold should not be a candidate")
	}
	if isCandidateInterpreterFile("/usr/bin/python3.11", sizer, "python") {
		t.Error("a file of exactly the threshold size should not be a candidate")
	}
	if !isCandidateInterpreterFile("/usr/bin/python3.11", fakeSizer(map[string]uint64{"/usr/bin/python3.11": MinInterpreterBinarySize + 1}), "python") {
		t.Error("expected a candidate just over the threshold")
	}
	if isCandidateInterpreterFile("/usr/bin/bash", sizer, "python") {
		t.Error("bash should not match the python family substring")
	}
}
