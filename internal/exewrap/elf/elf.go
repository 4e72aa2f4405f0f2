// Package elf writes the minimal, statically-laid-out ELF executable
// §6 describes: one PT_LOAD segment covering headers + entry stub +
// exit routine + user code, no dynamic linking, no section headers.
// Grounded on other_examples/xyproto-flapc's elf_complete.go and
// xyproto-vibe67's elf_complete.go for Ehdr/Phdr field layout and
// constants, simplified from their dynamic-linking case down to the
// single fixed LOAD segment a raw assembler output needs.
package elf

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/el-dockerr/ua/internal/exewrap"
	"github.com/el-dockerr/ua/internal/target"
)

const baseAddr = 0x00400000

const (
	etExec = 2

	emNone    = 0
	em386     = 3
	emARM     = 40
	emX8664   = 62
	emAARCH64 = 183
	emRISCV   = 243

	ptLoad = 1
	pfX    = 1
	pfW    = 2
	pfR    = 4
)

func machine(arch target.Arch) (uint16, error) {
	switch arch {
	case target.X86:
		return emX8664, nil
	case target.X8632:
		return em386, nil
	case target.ARM:
		return emARM, nil
	case target.ARM64:
		return emAARCH64, nil
	case target.RISCV:
		return emRISCV, nil
	default:
		return emNone, fmt.Errorf("elf: unsupported architecture %q", arch)
	}
}

// Write assembles code behind an entry stub and exit routine into a
// complete ELF executable at path (§6).
func Write(path string, arch target.Arch, sys target.Sys, code []byte) error {
	m, err := machine(arch)
	if err != nil {
		return err
	}
	exitRoutine := exewrap.ExitRoutine(arch, sys)
	stub, err := exewrap.Stub(arch, len(exitRoutine))
	if err != nil {
		return err
	}
	payload := append(append(append([]byte{}, stub...), exitRoutine...), code...)

	if arch.Is32Bit() {
		return write32(path, m, payload)
	}
	return write64(path, m, payload)
}

func write64(path string, machine uint16, payload []byte) error {
	const ehdrSize = 64
	const phdrSize = 56
	headersSize := uint64(ehdrSize + phdrSize)
	entry := uint64(baseAddr) + headersSize

	var buf []byte

	// e_ident
	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7F, 'E', 'L', 'F'
	ident[4] = 2 // ELFCLASS64
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	buf = append(buf, ident...)

	buf = appendU16(buf, etExec)
	buf = appendU16(buf, machine)
	buf = appendU32(buf, 1) // e_version
	buf = appendU64(buf, entry)
	buf = appendU64(buf, ehdrSize) // e_phoff
	buf = appendU64(buf, 0)        // e_shoff
	buf = appendU32(buf, 0)        // e_flags
	buf = appendU16(buf, ehdrSize)
	buf = appendU16(buf, phdrSize)
	buf = appendU16(buf, 1) // e_phnum
	buf = appendU16(buf, 0) // e_shentsize
	buf = appendU16(buf, 0) // e_shnum
	buf = appendU16(buf, 0) // e_shstrndx

	fileSize := headersSize + uint64(len(payload))

	buf = appendU32(buf, ptLoad)
	buf = appendU32(buf, pfR|pfX)
	buf = appendU64(buf, 0)              // p_offset
	buf = appendU64(buf, uint64(baseAddr)) // p_vaddr
	buf = appendU64(buf, uint64(baseAddr)) // p_paddr
	buf = appendU64(buf, fileSize)        // p_filesz
	buf = appendU64(buf, fileSize)        // p_memsz
	buf = appendU64(buf, 0x1000)          // p_align

	buf = append(buf, payload...)

	return os.WriteFile(path, buf, 0o755)
}

func write32(path string, machine uint16, payload []byte) error {
	const ehdrSize = 52
	const phdrSize = 32
	headersSize := uint32(ehdrSize + phdrSize)
	entry := uint32(baseAddr) + headersSize

	var buf []byte

	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7F, 'E', 'L', 'F'
	ident[4] = 1 // ELFCLASS32
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	buf = append(buf, ident...)

	buf = appendU16(buf, etExec)
	buf = appendU16(buf, machine)
	buf = appendU32(buf, 1) // e_version
	buf = appendU32(buf, entry)
	buf = appendU32(buf, ehdrSize) // e_phoff
	buf = appendU32(buf, 0)        // e_shoff
	buf = appendU32(buf, 0)        // e_flags
	buf = appendU16(buf, uint16(ehdrSize))
	buf = appendU16(buf, uint16(phdrSize))
	buf = appendU16(buf, 1) // e_phnum
	buf = appendU16(buf, 0)
	buf = appendU16(buf, 0)
	buf = appendU16(buf, 0)

	fileSize := headersSize + uint32(len(payload))

	buf = appendU32(buf, ptLoad)
	buf = appendU32(buf, 0) // p_offset
	buf = appendU32(buf, uint32(baseAddr))
	buf = appendU32(buf, uint32(baseAddr))
	buf = appendU32(buf, fileSize)
	buf = appendU32(buf, fileSize)
	buf = appendU32(buf, pfR|pfX)
	buf = appendU32(buf, 0x1000)

	buf = append(buf, payload...)

	return os.WriteFile(path, buf, 0o755)
}

func appendU16(b []byte, v uint16) []byte {
	var t [2]byte
	binary.LittleEndian.PutUint16(t[:], v)
	return append(b, t[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], v)
	return append(b, t[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var t [8]byte
	binary.LittleEndian.PutUint64(t[:], v)
	return append(b, t[:]...)
}
