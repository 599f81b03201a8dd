// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binfmt

import (
	"debug/macho"
	"os"

	"github.com/austin-profiler/austin/errs"
)

func parseMachO(f *os.File, path string) (*BinaryImage, error) {
	m, err := macho.NewFile(f)
	if err != nil {
		return nil, badFormat(path, err)
	}
	defer m.Close()

	if len(m.Sections) < 2 {
		return nil, errs.New(errs.BadFormat, "%s: fewer than two sections", path)
	}

	wordSize := 8
	if m.Magic == macho.Magic32 {
		wordSize = 4
	}

	bias, err := machoLoadBias(m)
	if err != nil {
		return nil, err
	}

	if m.Symtab == nil || len(m.Symtab.Syms) == 0 {
		return nil, errs.New(errs.NoDynamicSymbols, "%s", path)
	}

	out := &BinaryImage{
		WordSize: wordSize,
		Machine:  machoMachineName(m.Cpu),
		LoadBias: bias,
	}
	for _, s := range m.Symtab.Syms {
		if s.Name == "" {
			continue
		}
		out.Symbols = append(out.Symbols, Symbol{Name: s.Name, Value: s.Value})
	}
	return out, nil
}

// machoLoadBias mirrors elfLoadBias for the Mach-O equivalent of a
// PT_LOAD segment: the first LC_SEGMENT/LC_SEGMENT_64 command with a
// non-zero file size, aligned down to the page size Mach-O always uses
// (4 KiB).
func machoLoadBias(m *macho.File) (int64, error) {
	const pageSize = 1 << 12
	for _, l := range m.Loads {
		seg, ok := l.(*macho.Segment)
		if !ok || seg.Filesz == 0 {
			continue
		}
		return int64(seg.Addr &^ (pageSize - 1)), nil
	}
	return 0, errs.New(errs.BadFormat, "no loadable segment found")
}

func machoMachineName(cpu macho.Cpu) string {
	switch cpu {
	case macho.CpuAmd64:
		return "amd64"
	case macho.CpuArm64:
		return "arm64"
	default:
		return cpu.String()
	}
}
