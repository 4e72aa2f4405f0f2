package exewrap

import (
	"encoding/binary"
	"testing"

	"github.com/el-dockerr/ua/internal/target"
)

func TestExitRoutineWin32IsSelfLoop(t *testing.T) {
	got := ExitRoutine(target.X86, target.Win32)
	want := []byte{0xEB, 0xFE}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected win32 exit routine to be a 2-byte self-loop, got % X", got)
	}
}

func TestExitRoutineX86LinuxEndsInSyscall(t *testing.T) {
	got := ExitRoutine(target.X86, target.Linux)
	if len(got) == 0 || got[len(got)-2] != 0x0F || got[len(got)-1] != 0x05 {
		t.Fatalf("expected x86-64 linux exit routine to end in SYSCALL (0F 05), got % X", got)
	}
}

func TestExitRoutineUnknownCombinationFallsBackToSelfLoop(t *testing.T) {
	got := ExitRoutine(target.MCS51, target.Baremetal)
	if len(got) != 2 || got[0] != 0xEB || got[1] != 0xFE {
		t.Fatalf("expected default fallback self-loop, got % X", got)
	}
}

func TestStubX86EncodesCallRel32SkippingExitRoutine(t *testing.T) {
	stub, err := Stub(target.X86, 12)
	if err != nil {
		t.Fatalf("Stub: %v", err)
	}
	if len(stub) != 5 || stub[0] != 0xE8 {
		t.Fatalf("expected a 5-byte CALL rel32, got % X", stub)
	}
	disp := binary.LittleEndian.Uint32(stub[1:])
	if disp != 12 {
		t.Fatalf("expected displacement 12, got %d", disp)
	}
}

func TestStubARMRejectsUnalignedExitRoutine(t *testing.T) {
	if _, err := Stub(target.ARM, 6); err == nil {
		t.Fatalf("expected an error for a non-word-aligned ARM exit routine length")
	}
	if _, err := Stub(target.ARM, 8); err != nil {
		t.Fatalf("Stub(ARM, 8): %v", err)
	}
}

func TestStubRISCVEncodesJalWithRaDestination(t *testing.T) {
	stub, err := Stub(target.RISCV, 8)
	if err != nil {
		t.Fatalf("Stub: %v", err)
	}
	word := binary.LittleEndian.Uint32(stub)
	if word&0x7F != 0x6F {
		t.Fatalf("expected JAL opcode 0x6F in low 7 bits, got %#x", word&0x7F)
	}
	rd := (word >> 7) & 0x1F
	if rd != 1 {
		t.Fatalf("expected rd=1 (ra), got %d", rd)
	}
}

func TestStubUnsupportedArchitectureErrors(t *testing.T) {
	if _, err := Stub(target.MCS51, 4); err == nil {
		t.Fatalf("expected an error: 8051 has no defined entry stub")
	}
}
