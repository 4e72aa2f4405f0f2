package arm64

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

func TestLdiNarrowImmediateIsSingleMovz(t *testing.T) {
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
	word := binary.LittleEndian.Uint32(buf.Bytes())
	if word != movzEncoding(false, 0, 5, 0) {
		t.Fatalf("unexpected MOVZ word: %08X", word)
	}
}

func TestLdiWideImmediateUsesTwoChunks(t *testing.T) {
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
	movz := binary.LittleEndian.Uint32(buf.Bytes()[0:4])
	movk := binary.LittleEndian.Uint32(buf.Bytes()[4:8])
	if movz != movzEncoding(false, 0, 0x5678, 0) {
		t.Fatalf("unexpected MOVZ word: %08X", movz)
	}
	if movk != movzEncoding(true, 1, 0x1234, 0) {
		t.Fatalf("unexpected MOVK word: %08X", movk)
	}
}

func TestBranchFixupResolvesForwardLabel(t *testing.T) {
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
	word := binary.LittleEndian.Uint32(buf.Bytes()[0:4])
	// disp = (8 - 0) >> 2 = 2
	if word&0x03FFFFFF != 2 {
		t.Fatalf("unexpected branch imm26: %08X", word)
	}
}

func TestCondBranchOutOfRangeIsFatal(t *testing.T) {
	b := New()
	st := &emit.State{
		Buf:     codebuf.New(),
		Symbols: ir.NewSymbolTable(),
		Vars:    ir.NewVariableTable(),
		Buffers: ir.NewBufferTable(),
		Strings: ir.NewStringTable(),
		Fixups:  &ir.FixupList{},
	}
	if err := st.Symbols.Define("far", 1<<28); err != nil {
		t.Fatalf("Define: %v", err)
	}
	st.Buf.AppendBytes([]byte{0, 0, 0, 0x54})
	fx := ir.Fixup{Label: "far", CodeOffset: 0, InstrAddr: 0, Kind: ir.FixupBranchARM64Cond, Cond: 0}
	if err := b.PatchFixup(fx, st); err == nil {
		t.Fatal("expected out-of-range conditional branch error")
	}
}

func mustLabel(name string) ir.Operand {
	o, _ := ir.NewLabelRef(name)
	return o
}
