// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package procmap

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/austin-profiler/austin/errs"
)

// th32csSnapHeapList is TH32CS_SNAPHEAPLIST (tlhelp32.h); x/sys/windows
// wraps the module/process snapshot kinds but not the heap-list kind, so
// it's declared here alongside the toolhelp32 proc it needs.
const th32csSnapHeapList = 0x00000001

var (
	kernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procHeap32ListFirst = kernel32.NewProc("Heap32ListFirst")
)

// heaplist32 mirrors HEAPLIST32 (tlhelp32.h).
type heaplist32 struct {
	Size      uint32
	ProcessID uint32
	HeapID    uintptr
}

// Load enumerates pid's regions via VirtualQueryEx, annotating each with
// the module path discovered through a CreateToolhelp32Snapshot
// MODULE-kind snapshot (there is no Windows equivalent of /proc/pid/maps;
// the region walk and the path annotation are two separate APIs).
func Load(pid int, interpreterFamily string) (*MemoryMap, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, uint32(pid))
	if err != nil {
		return nil, errs.Wrap(errs.PermissionDenied, err, "OpenProcess(%d)", pid)
	}
	defer windows.CloseHandle(h)

	modules, err := listModules(uint32(pid))
	if err != nil {
		return nil, err
	}

	regions := queryRegions(h, modules)
	// Nothing queryRegions produces is ever literally "[heap]": that tag
	// only ever comes from a module's ExePath or "". Find the process's
	// default heap explicitly via a TH32CS_SNAPHEAPLIST snapshot (the only
	// API that can name another process's heap; GetProcessHeap only
	// answers for the calling process) and tag the containing region.
	if base, ok := firstProcessHeapBase(uint32(pid)); ok {
		tagHeapRegion(regions, uint64(base))
	}

	m := buildFromRegions(regions, interpreterFamily, []string{"[heap]"}, nil, statFileSize)
	if m.BinPath == "" && m.LibPath == "" {
		return nil, errs.New(errs.MapIncomplete, "no candidate %s binary found in pid %d's modules", interpreterFamily, pid)
	}
	if !m.hasHeap {
		return nil, errs.New(errs.MapIncomplete, "no default process heap found in pid %d", pid)
	}
	return m, nil
}

// firstProcessHeapBase returns the HeapID (base address) of the first
// heap reported for pid by a toolhelp heap-list snapshot.
func firstProcessHeapBase(pid uint32) (uintptr, bool) {
	snap, err := windows.CreateToolhelp32Snapshot(th32csSnapHeapList, pid)
	if err != nil {
		return 0, false
	}
	defer windows.CloseHandle(snap)

	var hl heaplist32
	hl.Size = uint32(unsafe.Sizeof(hl))
	r, _, _ := procHeap32ListFirst.Call(uintptr(snap), uintptr(unsafe.Pointer(&hl)))
	if r == 0 {
		return 0, false
	}
	return hl.HeapID, true
}

// tagHeapRegion marks the untagged region containing heapBase as "[heap]",
// the path isHeapPath matches against (the heap path list Load passes to
// buildFromRegions).
func tagHeapRegion(regions []Region, heapBase uint64) {
	if heapBase == 0 {
		return
	}
	for i := range regions {
		r := &regions[i]
		if r.Path == "" && heapBase >= r.Base && heapBase < r.Base+r.Size {
			r.Path = "[heap]"
			return
		}
	}
}

type moduleRange struct {
	base, size uint64
	path       string
}

// listModules snapshots pid's loaded modules (the executable and every
// DLL) so queryRegions can attach a path to the VirtualQueryEx regions
// that fall inside each module's image.
func listModules(pid uint32) ([]moduleRange, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
	if err != nil {
		return nil, errs.Wrap(errs.PermissionDenied, err, "CreateToolhelp32Snapshot(%d)", pid)
	}
	defer windows.CloseHandle(snap)

	var me windows.ModuleEntry32
	me.Size = uint32(unsafe.Sizeof(me))
	var mods []moduleRange
	if err := windows.Module32First(snap, &me); err != nil {
		return nil, errs.Wrap(errs.NoSuchProcess, err, "pid %d", pid)
	}
	for {
		mods = append(mods, moduleRange{
			base: uint64(uintptr(unsafe.Pointer(me.ModBaseAddr))),
			size: uint64(me.ModBaseSize),
			path: windows.UTF16ToString(me.ExePath[:]),
		})
		if err := windows.Module32Next(snap, &me); err != nil {
			break
		}
	}
	return mods, nil
}

// queryRegions walks the process's address space with VirtualQueryEx,
// the Windows analog of reading /proc/pid/maps one record at a time, and
// tags each region with the module path (if any) whose image range
// contains it.
func queryRegions(h windows.Handle, modules []moduleRange) []Region {
	var regions []Region
	var addr uintptr
	for {
		var info windows.MemoryBasicInformation
		err := windows.VirtualQueryEx(h, addr, &info, unsafe.Sizeof(info))
		if err != nil {
			break
		}
		if info.State == windows.MEM_COMMIT {
			regions = append(regions, Region{
				Base: uint64(info.BaseAddress),
				Size: uint64(info.RegionSize),
				Perm: protectToPerm(info.Protect),
				Path: pathFor(uint64(info.BaseAddress), modules),
			})
		}
		next := addr + uintptr(info.RegionSize)
		if next <= addr {
			break
		}
		addr = next
	}
	return regions
}

func pathFor(base uint64, modules []moduleRange) string {
	for _, m := range modules {
		if base >= m.base && base < m.base+m.size {
			return m.path
		}
	}
	return ""
}

func protectToPerm(protect uint32) Perm {
	const (
		pageNoAccess         = 0x01
		pageReadonly         = 0x02
		pageReadwrite        = 0x04
		pageExecute          = 0x10
		pageExecuteRead      = 0x20
		pageExecuteReadwrite = 0x40
	)
	var p Perm
	switch protect &^ 0x100 { // strip PAGE_GUARD
	case pageReadonly:
		p = Read
	case pageReadwrite:
		p = Read | Write
	case pageExecute:
		p = Exec
	case pageExecuteRead:
		p = Read | Exec
	case pageExecuteReadwrite:
		p = Read | Write | Exec
	}
	return p
}
