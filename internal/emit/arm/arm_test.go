package arm

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

// TestScenarioCWideImmediate reproduces the spec's worked example:
// LDI R0,0x12345678 emits MOVW r0,#0x5678 then MOVT r0,#0x1234 (8
// bytes); LDI R0,5 emits only MOVW r0,#5 (4 bytes).
func TestScenarioCWideImmediate(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Ldi, []ir.Operand{reg(0), ir.NewImmediate(0x12345678)}, ir.Location{Line: 1}),
	}}
	buf, err := emit.Assemble("t.ua", prog, New())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if buf.Len() != 8 {
		t.Fatalf("expected 8 bytes, got %d", buf.Len())
	}
	movw := binary.LittleEndian.Uint32(buf.Bytes()[0:4])
	movt := binary.LittleEndian.Uint32(buf.Bytes()[4:8])
	if movw != movwEncoding(false, 0, 0x5678) {
		t.Fatalf("unexpected MOVW word: %08X", movw)
	}
	if movt != movwEncoding(true, 0, 0x1234) {
		t.Fatalf("unexpected MOVT word: %08X", movt)
	}
}

func TestScenarioCNarrowImmediate(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{
		ir.NewOp(ir.Ldi, []ir.Operand{reg(0), ir.NewImmediate(5)}, ir.Location{Line: 1}),
	}}
	buf, err := emit.Assemble("t.ua", prog, New())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if buf.Len() != 4 {
		t.Fatalf("expected 4 bytes (MOVW only), got %d", buf.Len())
	}
}

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
	if err := st.Symbols.Define("far", 1<<30); err != nil {
		t.Fatalf("Define: %v", err)
	}
	st.Buf.AppendBytes([]byte{0, 0, 0, 0})

	// (target - (instrAddr+8)) >> 2 must exceed the 24-bit signed range.
	fx := ir.Fixup{Label: "far", CodeOffset: 0, InstrAddr: 0, Kind: ir.FixupBranchARM}
	if err := b.PatchFixup(fx, st); err == nil {
		t.Fatal("expected out-of-range branch error")
	}
}

func mustLabel(name string) ir.Operand {
	o, _ := ir.NewLabelRef(name)
	return o
}
