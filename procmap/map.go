// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package procmap enumerates the virtual memory regions of a target
// process: its loaded binaries, heap, and BSS (spec.md §2 "Process Map
// Introspector", ~10% of the core). It generalizes the region-building
// half of golang.org/x/debug/internal/core.Process (readLoad, splicedMemory)
// from "replay the PT_LOAD segments of a captured core file" to "list the
// OS's live view of a running process's mappings."
package procmap

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/austin-profiler/austin/remote"
)

// MinInterpreterBinarySize is the on-disk size, in bytes, a candidate
// backing file must exceed to be considered the interpreter's main
// executable or shared library (spec.md §4.2, §9 Open Questions: "whether
// that threshold is tuned or arbitrary is unclear" — kept as-is per the
// spec's instruction not to guess a replacement).
const MinInterpreterBinarySize = 1 << 20 // 1 MiB

// Perm is a region's access permissions.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
)

// Region is one contiguous mapping in the target's address space.
type Region struct {
	Base, Size uint64
	Perm       Perm
	Path       string // backing file, or "" for anonymous mappings like [heap]
}

func (r Region) Min() remote.Address { return remote.Address(r.Base) }
func (r Region) Max() remote.Address { return remote.Address(r.Base + r.Size) }

// MemoryMap is the ordered set of regions backing a target process, plus
// the derived bounds and named sub-regions spec.md §3 names.
type MemoryMap struct {
	Regions []Region

	MinAddr, MaxAddr remote.Address

	// Heap is the process heap region, required for the scan fallback
	// (spec.md §4.6) and absent only for MapIncomplete.
	Heap Region
	// hasHeap distinguishes a genuinely zero-valued Region (Base 0, no
	// permissions) from "no heap region was found."
	hasHeap bool

	// ELF is the interpreter's main executable or shared library region,
	// selected per the heuristic in spec.md §4.2.
	ELF Region
	// BinPath is ELF.Path if ELF is an executable, LibPath if it is a
	// shared library; exactly one of the two is set (spec.md §3).
	BinPath, LibPath string

	bss    Region
	hasBss bool
}

func (m *MemoryMap) Bounds() remote.Bounds {
	return remote.Bounds{Min: m.MinAddr, Max: m.MaxAddr}
}

// HasHeap reports whether a heap region was found.
func (m *MemoryMap) HasHeap() bool { return m.hasHeap }

// Bss returns the interpreter binary's BSS-like anonymous region: on
// Linux/ELF this is the anonymous mapping immediately following the
// binary's data segment, which carries the same backing path as the ELF
// region up to the kernel (both report the binary's path, or "" once the
// mapping is anonymous). Implementations populate it directly in
// buildFromRegions; this accessor exists so callers never need to know
// the platform-specific trick used to find it.
func (m *MemoryMap) Bss() (Region, bool) {
	return m.bss, m.hasBss
}

// fileSizer returns path's on-disk size in bytes. Production loaders pass
// statFileSize; tests substitute a fake so fixtures don't need real files
// backing their synthetic map paths.
type fileSizer func(path string) (uint64, error)

// statFileSize is the fileSizer used by every platform's Load.
func statFileSize(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

// isCandidateInterpreterFile reports whether path looks like it backs the
// interpreter's executable or one of its shared libraries: the basename
// must contain interpreterFamily (e.g. "python") and the file must be
// larger than MinInterpreterBinarySize bytes on disk (spec.md §4.2: "whose
// on-disk size exceeds 1 MiB" — a region's mapped span is not the same
// thing, since only the touched pages of a large binary may be resident).
func isCandidateInterpreterFile(path string, sizer fileSizer, interpreterFamily string) bool {
	if path == "" {
		return false
	}
	base := strings.ToLower(filepath.Base(path))
	if !strings.Contains(base, interpreterFamily) {
		return false
	}
	size, err := sizer(path)
	if err != nil || size <= MinInterpreterBinarySize {
		return false
	}
	return true
}

// looksLikeSharedLibrary reports whether path's basename matches the
// platform's shared-library naming convention, used to tell a library
// candidate apart from an executable candidate (spec.md §4.2: "An
// executable ELF/PE/Mach-O file is preferred over a shared library; once
// an executable is found, libraries are ignored.").
func looksLikeSharedLibrary(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.Contains(base, ".so") || strings.HasSuffix(base, ".dylib") || strings.HasSuffix(base, ".dll")
}

// buildFromRegions applies the common selection logic (min/max bounds,
// heap, elf/lib picking) shared by every platform's loader, given the raw
// region list, the interpreter family name (e.g. "python", "python3"), and
// the on-disk-size lookup to use for the candidate-binary threshold.
func buildFromRegions(regions []Region, interpreterFamily string, heapPaths, pseudoPaths []string, sizer fileSizer) *MemoryMap {
	m := &MemoryMap{Regions: regions}
	haveExecutableCandidate := false
	var lastBinaryRegionEnd remote.Address
	sawBinaryRegion := false
	for _, r := range regions {
		if isPseudoRegion(r.Path, pseudoPaths) {
			continue
		}
		if m.MinAddr == 0 || r.Min() < m.MinAddr {
			m.MinAddr = r.Min()
		}
		if r.Max() > m.MaxAddr {
			m.MaxAddr = r.Max()
		}
		if !m.hasHeap && isHeapPath(r.Path, heapPaths) {
			m.Heap = r
			m.hasHeap = true
		}
		if isCandidateInterpreterFile(r.Path, sizer, interpreterFamily) {
			isExecutable := r.Perm&Exec != 0 && !looksLikeSharedLibrary(r.Path)
			if haveExecutableCandidate && !isExecutable && r.Path != m.BinPath {
				continue // spec.md §4.2: executables win, ignore further libraries
			}
			if isExecutable {
				m.ELF = r
				m.BinPath = r.Path
				m.LibPath = ""
				haveExecutableCandidate = true
			} else if !haveExecutableCandidate && m.LibPath == "" {
				m.ELF = r
				m.LibPath = r.Path
			}
		}

		// A region backed by the selected binary's own path extends the
		// "last seen binary segment" used below to find its BSS; it is
		// never itself the BSS region (BSS is anonymous once mapped).
		if r.Path != "" && (r.Path == m.BinPath || r.Path == m.LibPath) {
			lastBinaryRegionEnd = r.Max()
			sawBinaryRegion = true
			continue
		}

		// The BSS-like region is the anonymous, writable, non-executable
		// mapping immediately following the selected binary's last
		// segment (spec.md §4.6) — adjacency is required, not just an
		// incidental empty-path match against an unset LibPath/BinPath.
		if !m.hasBss && sawBinaryRegion && r.Path == "" && r.Min() == lastBinaryRegionEnd &&
			r.Perm&Exec == 0 && r.Perm&Write != 0 {
			m.bss = r
			m.hasBss = true
		}
	}
	return m
}

func isHeapPath(path string, heapPaths []string) bool {
	for _, p := range heapPaths {
		if path == p {
			return true
		}
	}
	return false
}

func isPseudoRegion(path string, pseudoPaths []string) bool {
	for _, p := range pseudoPaths {
		if path == p {
			return true
		}
	}
	return false
}
