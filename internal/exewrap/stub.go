// Package exewrap holds the entry-stub and exit-routine machine code
// shared by the PE/ELF/Mach-O wrappers (§6 "Wrapper file formats"):
// a relative call that skips over a tiny architecture-native exit
// routine straight into the user's code, leaving the exit routine's
// address as the return address the user's final RET/equivalent pops.
package exewrap

import (
	"encoding/binary"
	"fmt"

	"github.com/el-dockerr/ua/internal/target"
)

// ExitRoutine returns the machine code that turns the value already
// sitting in R0 (the architecture's first-argument-register slot, by
// the same register-window convention the emitters use) into a
// process exit code via the host OS's exit syscall. win32 has no
// syscall ABI reachable without an import table, which this wrapper
// does not build, so its "exit routine" is a 2-byte self-loop — a
// documented simplification, not a real process exit.
func ExitRoutine(arch target.Arch, sys target.Sys) []byte {
	switch {
	case sys == target.Win32:
		return []byte{0xEB, 0xFE} // JMP $-0 (short self-loop)
	case arch == target.X86 && sys == target.Linux:
		// MOV RDI,RAX ; MOV RAX,60 ; SYSCALL
		return []byte{
			0x48, 0x89, 0xC7,
			0x48, 0xC7, 0xC0, 0x3C, 0x00, 0x00, 0x00,
			0x0F, 0x05,
		}
	case arch == target.X8632 && sys == target.Linux:
		// MOV EBX,EAX ; MOV EAX,1 ; INT 0x80
		return []byte{
			0x89, 0xC3,
			0xB8, 0x01, 0x00, 0x00, 0x00,
			0xCD, 0x80,
		}
	case arch == target.ARM && sys == target.Linux:
		// MOV R7,#1 (sys_exit) ; SVC #0 (R0 already holds the code)
		return []byte{
			0x01, 0x70, 0xA0, 0xE3, // MOV R7,#1
			0x00, 0x00, 0x00, 0xEF, // SVC #0
		}
	case arch == target.ARM64 && sys == target.Linux:
		// MOVZ X8,#93 (exit) ; SVC #0
		return []byte{
			0xA8, 0x0B, 0x80, 0xD2, // MOVZ X8,#93
			0x01, 0x00, 0x00, 0xD4, // SVC #0
		}
	case arch == target.ARM64 && sys == target.MacOS:
		// MOVZ X16,#1 (BSD exit) ; SVC #0x80
		return []byte{
			0x30, 0x00, 0x80, 0xD2, // MOVZ X16,#1
			0x01, 0x10, 0x00, 0xD4, // SVC #0x80
		}
	case arch == target.RISCV && sys == target.Linux:
		// ADDI a7,zero,93 (exit) ; ECALL
		return []byte{
			0x93, 0x08, 0xD0, 0x05, // ADDI a7,x0,93
			0x73, 0x00, 0x00, 0x00, // ECALL
		}
	default:
		return []byte{0xEB, 0xFE}
	}
}

// Stub returns the entry prologue: a relative call-and-skip sequence
// whose call pushes exitRoutine's address as the return address and
// jumps straight past it, to where the caller will place the user's
// code (immediately after exitLen bytes of exit routine).
func Stub(arch target.Arch, exitLen int) ([]byte, error) {
	switch arch {
	case target.X86, target.X8632:
		// CALL rel32; target - (addr_after_call) == exitLen.
		b := make([]byte, 5)
		b[0] = 0xE8
		binary.LittleEndian.PutUint32(b[1:], uint32(exitLen))
		return b, nil

	case target.ARM:
		// BL imm24; ARM's PC-relative convention: target - (PC+8), PC
		// being this instruction's own address, per the same rule the
		// ARM emitter backend's branch fixup uses.
		if exitLen%4 != 0 {
			return nil, fmt.Errorf("exewrap: ARM exit routine length %d not word-aligned", exitLen)
		}
		imm24 := (exitLen - 4) / 4
		word := uint32(0xEB000000) | (uint32(imm24) & 0x00FFFFFF)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, word)
		return b, nil

	case target.ARM64:
		// BL imm26; AArch64 has no pipeline offset, so LR = PC+4 and
		// the displacement is measured from the BL's own address.
		if exitLen%4 != 0 {
			return nil, fmt.Errorf("exewrap: AArch64 exit routine length %d not word-aligned", exitLen)
		}
		imm26 := (4 + exitLen) / 4
		word := uint32(0x94000000) | (uint32(imm26) & 0x03FFFFFF)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, word)
		return b, nil

	case target.RISCV:
		// JAL ra,imm; imm is the byte-exact target - instruction
		// address (no >>2), per the same convention the RISC-V
		// emitter's J-type fixup uses.
		imm := int64(4 + exitLen)
		word := packJal(imm)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, word)
		return b, nil

	default:
		return nil, fmt.Errorf("exewrap: no entry stub defined for architecture %q", arch)
	}
}

// packJal scatters a J-type immediate into JAL ra,imm's encoding
// (rd=x1/ra, opcode 0x6F), mirroring the RISC-V backend's packJType.
func packJal(imm int64) uint32 {
	u := uint32(imm)
	bit20 := (u >> 20) & 1
	bits10_1 := (u >> 1) & 0x3FF
	bit11 := (u >> 11) & 1
	bits19_12 := (u >> 12) & 0xFF

	immField := (bit20 << 31) | (bits10_1 << 21) | (bit11 << 20) | (bits19_12 << 12)
	const rd = 1 // ra
	return immField | (rd << 7) | 0x6F
}
