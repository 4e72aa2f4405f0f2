package x8632

import (
	"testing"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

func reg(n byte) ir.Operand {
	o, _ := ir.NewRegister(n)
	return o
}

// TestAddSequenceMatchesX86ButNarrower checks that the analogous LDI/LDI/ADD/HLT
// program from Scenario A assembles one byte shorter per LDI/ADD than
// the x86-64 backend, since there is no REX.W prefix; HLT stays 1 byte.
func TestAddSequenceMatchesX86ButNarrower(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Ldi, []ir.Operand{reg(0), ir.NewImmediate(10)}, ir.Location{Line: 1}),
		ir.NewOp(ir.Ldi, []ir.Operand{reg(1), ir.NewImmediate(5)}, ir.Location{Line: 2}),
		ir.NewOp(ir.Add, []ir.Operand{reg(0), reg(1)}, ir.Location{Line: 3}),
		ir.NewOp(ir.Hlt, nil, ir.Location{Line: 4}),
	}}

	buf, err := emit.Assemble("t.ua", prog, New(true))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []byte{
		0xC7, 0xC0, 0x0A, 0x00, 0x00, 0x00,
		0xC7, 0xC1, 0x05, 0x00, 0x00, 0x00,
		0x01, 0xC8,
		0xC3,
	}
	if buf.Len() != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), buf.Len())
	}
	got := buf.Bytes()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %02X want %02X (full: % X)", i, got[i], want[i], got)
		}
	}
}

func TestJumpFixupResolvesForwardLabel(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Jmp, []ir.Operand{mustLabel("done")}, ir.Location{Line: 1}),
		ir.NewOp(ir.Nop, nil, ir.Location{Line: 2}),
		ir.NewLabelDef("done", ir.Location{Line: 3}),
		ir.NewOp(ir.Hlt, nil, ir.Location{Line: 4}),
	}}

	buf, err := emit.Assemble("t.ua", prog, New(true))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if buf.Len() != 5+1+1 {
		t.Fatalf("unexpected size %d", buf.Len())
	}
	if buf.Bytes()[1] != 0x01 || buf.Bytes()[2] != 0 || buf.Bytes()[3] != 0 || buf.Bytes()[4] != 0 {
		t.Fatalf("unexpected fixup bytes: % X", buf.Bytes())
	}
}

func TestPushaPopaAreOneByteEach(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Pusha, nil, ir.Location{Line: 1}),
		ir.NewOp(ir.Popa, nil, ir.Location{Line: 2}),
	}}
	buf, err := emit.Assemble("t.ua", prog, New(false))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []byte{0x60, 0x61}
	if buf.Len() != 2 || buf.Bytes()[0] != want[0] || buf.Bytes()[1] != want[1] {
		t.Fatalf("unexpected bytes: % X", buf.Bytes())
	}
}

func mustLabel(name string) ir.Operand {
	o, _ := ir.NewLabelRef(name)
	return o
}
