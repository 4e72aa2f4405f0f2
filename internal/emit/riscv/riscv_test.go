package riscv

import (
	"encoding/binary"
	"testing"

	"github.com/el-dockerr/ua/internal/codebuf"
	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

func reg(n byte) ir.Operand {
	o, _ := ir.NewRegister(n)
	return o
}

func TestLdiNarrowImmediateIsSingleAddi(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Ldi, []ir.Operand{reg(0), ir.NewImmediate(5)}, ir.Location{Line: 1}),
	}}
	buf, err := emit.Assemble("t.ua", prog, New())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if buf.Len() != 4 {
		t.Fatalf("expected 4 bytes, got %d", buf.Len())
	}
}

func TestLdiWideImmediateUsesLuiAddi(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Ldi, []ir.Operand{reg(0), ir.NewImmediate(0x1234_5678)}, ir.Location{Line: 1}),
	}}
	buf, err := emit.Assemble("t.ua", prog, New())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("expected 8 bytes, got %d", buf.Len())
	}
	lui := binary.LittleEndian.Uint32(buf.Bytes()[0:4])
	if lui&0x7F != 0x37 {
		t.Fatalf("expected LUI opcode, got word %08X", lui)
	}
}

func TestJumpFixupResolvesForwardLabel(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Jmp, []ir.Operand{mustLabel("done")}, ir.Location{Line: 1}),
		ir.NewOp(ir.Nop, nil, ir.Location{Line: 2}),
		ir.NewLabelDef("done", ir.Location{Line: 3}),
		ir.NewOp(ir.Ret, nil, ir.Location{Line: 4}),
	}}
	buf, err := emit.Assemble("t.ua", prog, New())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if buf.Len() != 12 {
		t.Fatalf("unexpected size %d", buf.Len())
	}
}

// TestBranchOutOfRangeIsFatal reproduces Scenario D: a conditional
// branch whose resolved displacement is >=4096 or <-4096 bytes must
// fail codegen with an out-of-range diagnostic.
func TestBranchOutOfRangeIsFatal(t *testing.T) {
	b := New()
	st := &emit.State{
		Buf:     codebuf.New(),
		Symbols: ir.NewSymbolTable(),
		Vars:    ir.NewVariableTable(),
		Buffers: ir.NewBufferTable(),
		Strings: ir.NewStringTable(),
		Fixups:  &ir.FixupList{},
	}
	if err := st.Symbols.Define("too_far", 5000); err != nil {
		t.Fatalf("Define: %v", err)
	}
	st.Buf.AppendBytes([]byte{0, 0, 0, 0})

	fx := ir.Fixup{Label: "too_far", CodeOffset: 0, InstrAddr: 0, Kind: ir.FixupBTypeRISCV}
	if err := b.PatchFixup(fx, st); err == nil {
		t.Fatal("expected out-of-range branch error")
	}
}

func TestBranchWithinRangeSucceeds(t *testing.T) {
	b := New()
	st := &emit.State{
		Buf:     codebuf.New(),
		Symbols: ir.NewSymbolTable(),
		Vars:    ir.NewVariableTable(),
		Buffers: ir.NewBufferTable(),
		Strings: ir.NewStringTable(),
		Fixups:  &ir.FixupList{},
	}
	if err := st.Symbols.Define("near", 4000); err != nil {
		t.Fatalf("Define: %v", err)
	}
	st.Buf.AppendBytes([]byte{0, 0, 0, 0})

	fx := ir.Fixup{Label: "near", CodeOffset: 0, InstrAddr: 0, Kind: ir.FixupBTypeRISCV}
	if err := b.PatchFixup(fx, st); err != nil {
		t.Fatalf("expected in-range branch to succeed: %v", err)
	}
}

func mustLabel(name string) ir.Operand {
	o, _ := ir.NewLabelRef(name)
	return o
}
