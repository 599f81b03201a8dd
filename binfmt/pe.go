// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binfmt

import (
	"bufio"
	"bytes"
	"debug/pe"
	"encoding/binary"
	"io"
	"os"

	"github.com/austin-profiler/austin/errs"
)

// exportDirectoryIndex is the index of the export table within a PE
// optional header's DataDirectory array.
const exportDirectoryIndex = 0

func parsePE(f *os.File, path string) (*BinaryImage, error) {
	p, err := pe.NewFile(f)
	if err != nil {
		return nil, badFormat(path, err)
	}
	defer p.Close()

	if len(p.Sections) < 2 {
		return nil, errs.New(errs.BadFormat, "%s: fewer than two sections", path)
	}

	var wordSize int
	var exportDir pe.DataDirectory
	switch h := p.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		wordSize = 4
		exportDir = h.DataDirectory[exportDirectoryIndex]
	case *pe.OptionalHeader64:
		wordSize = 8
		exportDir = h.DataDirectory[exportDirectoryIndex]
	default:
		return nil, errs.New(errs.BadFormat, "%s: missing optional header", path)
	}

	syms, err := readExports(p, exportDir)
	if err != nil || len(syms) == 0 {
		return nil, errs.New(errs.NoDynamicSymbols, "%s", path)
	}

	return &BinaryImage{
		WordSize: wordSize,
		Machine:  peMachineName(p.Machine),
		// Unlike ELF/Mach-O's absolute preferred VAs, the export RVAs
		// readExports returns are already relative to imageBase, i.e.
		// already relative to the module's load address. LoadBias is the
		// value Resolve subtracts from a symbol's value before adding the
		// region's runtime base, so it must be 0 here, not imageBase:
		// regionBase + (rva - 0) is the runtime address; regionBase +
		// (rva - imageBase) would underflow for any real image base.
		LoadBias: 0,
		Symbols:  syms,
	}, nil
}

// exportDirectoryLayout mirrors IMAGE_EXPORT_DIRECTORY (winnt.h), whose
// layout is identical between PE32 and PE32+.
type exportDirectoryLayout struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// readExports decodes the PE export directory (there is no stdlib
// support for this in debug/pe, unlike DynamicSymbols on ELF): it locates
// the section containing the export directory RVA, reads the
// IMAGE_EXPORT_DIRECTORY header, and resolves each named export to its
// function RVA via the name/ordinal/address arrays it points to.
func readExports(p *pe.File, dir pe.DataDirectory) ([]Symbol, error) {
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}
	sec := sectionFor(p, dir.VirtualAddress)
	if sec == nil {
		return nil, errs.New(errs.BadFormat, "export directory RVA 0x%x not in any section", dir.VirtualAddress)
	}

	var hdr exportDirectoryLayout
	if err := readStructAt(sec, dir.VirtualAddress, &hdr); err != nil {
		return nil, err
	}

	names := make([]uint32, hdr.NumberOfNames)
	if err := readUint32ArrayAt(p, hdr.AddressOfNames, names); err != nil {
		return nil, err
	}
	ordinals := make([]uint16, hdr.NumberOfNames)
	if err := readUint16ArrayAt(p, hdr.AddressOfNameOrdinals, ordinals); err != nil {
		return nil, err
	}
	funcs := make([]uint32, hdr.NumberOfFunctions)
	if err := readUint32ArrayAt(p, hdr.AddressOfFunctions, funcs); err != nil {
		return nil, err
	}

	out := make([]Symbol, 0, len(names))
	for i, nameRVA := range names {
		name, err := readCStringAt(p, nameRVA)
		if err != nil || name == "" {
			continue
		}
		ord := int(ordinals[i])
		if ord < 0 || ord >= len(funcs) {
			continue
		}
		out = append(out, Symbol{Name: name, Value: uint64(funcs[ord])})
	}
	return out, nil
}

func sectionFor(p *pe.File, rva uint32) *pe.Section {
	for _, s := range p.Sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.VirtualSize {
			return s
		}
	}
	return nil
}

func readAt(p *pe.File, rva uint32, buf []byte) error {
	sec := sectionFor(p, rva)
	if sec == nil {
		return errs.New(errs.BadFormat, "rva 0x%x not in any section", rva)
	}
	r := io.NewSectionReader(sec, int64(rva-sec.VirtualAddress), int64(len(buf)))
	_, err := io.ReadFull(r, buf)
	return err
}

func readStructAt(sec *pe.Section, rva uint32, v *exportDirectoryLayout) error {
	buf := make([]byte, 40) // sizeof(exportDirectoryLayout)
	r := io.NewSectionReader(sec, int64(rva-sec.VirtualAddress), int64(len(buf)))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, v)
}

func readUint32ArrayAt(p *pe.File, rva uint32, out []uint32) error {
	buf := make([]byte, 4*len(out))
	if err := readAt(p, rva, buf); err != nil {
		return err
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return nil
}

func readUint16ArrayAt(p *pe.File, rva uint32, out []uint16) error {
	buf := make([]byte, 2*len(out))
	if err := readAt(p, rva, buf); err != nil {
		return err
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return nil
}

func readCStringAt(p *pe.File, rva uint32) (string, error) {
	sec := sectionFor(p, rva)
	if sec == nil {
		return "", errs.New(errs.BadFormat, "rva 0x%x not in any section", rva)
	}
	r := io.NewSectionReader(sec, int64(rva-sec.VirtualAddress), int64(sec.VirtualSize))
	br := bufio.NewReader(r)
	s, err := br.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	if n := len(s); n > 0 && s[n-1] == 0 {
		s = s[:n-1]
	}
	return s, nil
}

func peMachineName(m uint16) string {
	switch m {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "amd64"
	case pe.IMAGE_FILE_MACHINE_I386:
		return "386"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	default:
		return "unknown"
	}
}
