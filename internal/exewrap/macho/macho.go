// Package macho writes the minimal Mach-O wrapper §6 describes for
// arm64+macos targets: a mach_header_64, one LC_SEGMENT_64 covering a
// single __text section, and an LC_UNIXTHREAD command pointing the
// initial PC at the entry stub. Grounded on
// other_examples/xyproto-flapc's macho.go for the header/load-command
// field layout, trimmed to the single fixed segment a raw assembler
// output needs (no dyld, no LC_MAIN, no code signature load command).
package macho

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/el-dockerr/ua/internal/exewrap"
	"github.com/el-dockerr/ua/internal/target"
)

const (
	magic64       = 0xFEEDFACF
	cpuTypeARM64  = 0x0100000C
	cpuSubtypeAll = 0x00000000
	mhExecute     = 2
	mhNoUndefs    = 0x1

	lcSegment64   = 0x19
	lcUnixThread  = 0x5
	armThreadFlavor = 6
	armThreadCount  = 68 // ARM_THREAD_STATE64_COUNT, in 4-byte words

	vmProtReadWriteExecute = 0x7

	baseAddr = 0x0000000100000000
	headerBudget = 0x1000 // one page reserved for header + load commands
)

// Write assembles code behind an entry stub and exit routine into a
// complete Mach-O executable at path (§6).
func Write(path string, arch target.Arch, sys target.Sys, code []byte) error {
	if arch != target.ARM64 || sys != target.MacOS {
		return fmt.Errorf("macho: unsupported combination %q/%q", arch, sys)
	}

	exitRoutine := exewrap.ExitRoutine(arch, sys)
	stub, err := exewrap.Stub(arch, len(exitRoutine))
	if err != nil {
		return err
	}
	payload := append(append(append([]byte{}, stub...), exitRoutine...), code...)

	textVMAddr := uint64(baseAddr) + uint64(headerBudget)
	entry := textVMAddr

	var cmds []byte

	// LC_SEGMENT_64 __TEXT, one section __text.
	segCmdSize := uint32(72 + 80)
	cmds = appendU32(cmds, lcSegment64)
	cmds = appendU32(cmds, segCmdSize)
	cmds = append(cmds, segname("__TEXT")...)
	cmds = appendU64(cmds, baseAddr)
	cmds = appendU64(cmds, uint64(headerBudget)+uint64(len(payload)))
	cmds = appendU64(cmds, 0) // fileoff
	cmds = appendU64(cmds, uint64(headerBudget)+uint64(len(payload)))
	cmds = appendU32(cmds, vmProtReadWriteExecute)
	cmds = appendU32(cmds, vmProtReadWriteExecute)
	cmds = appendU32(cmds, 1) // nsects
	cmds = appendU32(cmds, 0) // flags

	cmds = append(cmds, sectname("__text")...)
	cmds = append(cmds, segname("__TEXT")...)
	cmds = appendU64(cmds, textVMAddr)
	cmds = appendU64(cmds, uint64(len(payload)))
	cmds = appendU32(cmds, headerBudget) // offset
	cmds = appendU32(cmds, 4)            // align (2^4 = 16)
	cmds = appendU32(cmds, 0)            // reloff
	cmds = appendU32(cmds, 0)            // nreloc
	cmds = appendU32(cmds, 0x80000400)   // S_ATTR_PURE_INSTRUCTIONS | S_ATTR_SOME_INSTRUCTIONS
	cmds = appendU32(cmds, 0)            // reserved1
	cmds = appendU32(cmds, 0)            // reserved2
	cmds = appendU32(cmds, 0)            // reserved3

	// LC_UNIXTHREAD: ARM64 thread state, only PC set.
	state := make([]byte, armThreadCount*4)
	binary.LittleEndian.PutUint64(state[32*8:], entry) // pc is the 33rd 8-byte GPR slot (x0..x28, fp, lr, sp, pc)
	threadCmdSize := uint32(4 + 4 + 4 + 4 + len(state))
	cmds = appendU32(cmds, lcUnixThread)
	cmds = appendU32(cmds, threadCmdSize)
	cmds = appendU32(cmds, armThreadFlavor)
	cmds = appendU32(cmds, armThreadCount)
	cmds = append(cmds, state...)

	header := make([]byte, 0, 32)
	header = appendU32(header, magic64)
	header = appendU32(header, cpuTypeARM64)
	header = appendU32(header, cpuSubtypeAll)
	header = appendU32(header, mhExecute)
	header = appendU32(header, 2) // ncmds
	header = appendU32(header, uint32(len(cmds)))
	header = appendU32(header, mhNoUndefs)
	header = appendU32(header, 0) // reserved

	buf := append(header, cmds...)
	if len(buf) > headerBudget {
		return fmt.Errorf("macho: header+load commands size %d exceeds reserved budget %d", len(buf), headerBudget)
	}
	buf = append(buf, make([]byte, headerBudget-len(buf))...)
	buf = append(buf, payload...)

	return os.WriteFile(path, buf, 0o755)
}

func segname(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	return b
}

func sectname(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	return b
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
