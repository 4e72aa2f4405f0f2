// Package arm implements the ARMv7-A (32-bit, little-endian, AL
// condition) code emitter backend (§4.4). Instruction field layout
// (condition code high nibble, MOVW/MOVT immediate splitting) is
// grounded on lookbusy1344-arm_emulator's decode conventions.
package arm

import (
	"encoding/binary"
	"fmt"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

const registerWindow = 8 // R0..R7, §4.4
const scratch = 7

// Backend is the ARMv7-A emitter.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string        { return "arm" }
func (b *Backend) WordSize() int       { return 4 }
func (b *Backend) RegisterWindow() int { return registerWindow }

func checkReg(op ir.Operand) (uint32, error) {
	if op.Kind != ir.KindRegister {
		return 0, fmt.Errorf("expected register operand, got %s", op.Kind)
	}
	if int(op.Register) >= registerWindow {
		return 0, fmt.Errorf("register R%d outside ARM window R0..R%d", op.Register, registerWindow-1)
	}
	return uint32(op.Register), nil
}

func appendWord(st *emit.State, w uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w)
	st.Buf.AppendBytes(b[:])
}

// movwEncoding packs the AL-conditioned MOVW/MOVT instruction word:
// cond(4) 0011 op(1: 0=MOVW,1=MOVT) 0 imm4(4) Rd(4) imm12(12).
func movwEncoding(isMovt bool, rd uint32, imm16 uint16) uint32 {
	op := uint32(0)
	if isMovt {
		op = 1
	}
	imm4 := uint32(imm16>>12) & 0xF
	imm12 := uint32(imm16) & 0xFFF
	return 0xE<<28 | 0x3<<24 | op<<22 | imm4<<16 | rd<<12 | imm12
}

// sizeOfImmLoad returns how many 4-byte words a MOVW(+MOVT) immediate
// materialization needs (§4.4: "ARM uses MOVW alone when the upper 16
// bits are zero, else MOVW+MOVT").
func sizeOfImmLoad(v int64) int {
	if uint32(v)>>16 == 0 {
		return 4
	}
	return 8
}

func emitImmLoad(st *emit.State, rd uint32, v int64) {
	u := uint32(v)
	appendWord(st, movwEncoding(false, rd, uint16(u)))
	if (u >> 16) != 0 {
		appendWord(st, movwEncoding(true, rd, uint16(u>>16)))
	}
}

// emitFullImmLoad always emits MOVW+MOVT (8 bytes), used for
// data-section addresses: their value is not known until after pass 1,
// so pass 1's predicted size cannot depend on it (§4.4 pass 1).
func emitFullImmLoad(st *emit.State, rd uint32, v int64) {
	u := uint32(v)
	appendWord(st, movwEncoding(false, rd, uint16(u)))
	appendWord(st, movwEncoding(true, rd, uint16(u>>16)))
}

func (b *Backend) PredictSize(instr ir.Instruction, st *emit.State) (int, error) {
	switch instr.Op {
	case ir.Ldi:
		return sizeOfImmLoad(instr.Operands[1].Imm), nil
	case ir.Mov:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return sizeOfImmLoad(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Load, ir.Store, ir.Loadb, ir.Storeb:
		return 12, nil // MOVW+MOVT scratch address, LDR/STR
	case ir.Lds:
		return 8, nil // MOVW+MOVT, always the full address
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor, ir.Cmp:
		if instr.Operands[1].Kind == ir.KindImmediate && fitsRotatedImm(instr.Operands[1].Imm) {
			return 4, nil
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + sizeOfImmLoad(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Mul:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + sizeOfImmLoad(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Div:
		return 4, nil // single SDIV
	case ir.Inc, ir.Dec, ir.Not:
		return 4, nil
	case ir.Shl, ir.Shr:
		return 4, nil
	case ir.Jmp, ir.Call, ir.Jz, ir.Jnz, ir.Jl, ir.Jg:
		return 4, nil
	case ir.Ret:
		return 4, nil
	case ir.Push, ir.Pop:
		return 4, nil
	case ir.Int, ir.Sys:
		return 4, nil
	case ir.Hlt:
		return 4, nil
	case ir.Nop:
		return 4, nil
	case ir.Wfi, ir.Dmb:
		return 4, nil
	case ir.Bswap:
		return 4, nil
	case ir.Set:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 12 + sizeOfImmLoad(instr.Operands[1].Imm), nil
		}
		return 12, nil
	case ir.Get:
		return 12, nil
	case ir.Org:
		return 0, nil
	default:
		return 0, fmt.Errorf("arm: opcode %s cannot be lowered", instr.Op)
	}
}

func fitsRotatedImm(v int64) bool {
	return v >= 0 && v <= 0xFF
}

func (b *Backend) Emit(instr ir.Instruction, st *emit.State) error {
	switch instr.Op {
	case ir.Ldi:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		emitImmLoad(st, rd, instr.Operands[1].Imm)
		return nil

	case ir.Mov:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			emitImmLoad(st, rd, instr.Operands[1].Imm)
			return nil
		}
		rm, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		appendWord(st, 0xE1A00000|rd<<12|rm) // MOV Rd,Rm
		return nil

	case ir.Load, ir.Loadb:
		return emitDataAccess(st, instr, true, instr.Op == ir.Loadb)
	case ir.Store, ir.Storeb:
		return emitDataAccess(st, instr, false, instr.Op == ir.Storeb)

	case ir.Lds:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		idx := st.Strings.Intern(instr.Operands[1].Str)
		addr := uint32(st.Strings.Addr(idx))
		appendWord(st, movwEncoding(false, rd, uint16(addr)))
		appendWord(st, movwEncoding(true, rd, uint16(addr>>16)))
		return nil

	case ir.Add:
		return emitAlu(st, instr, 0x4)
	case ir.Sub:
		return emitAlu(st, instr, 0x2)
	case ir.And:
		return emitAlu(st, instr, 0x0)
	case ir.Or:
		return emitAlu(st, instr, 0xC) // ORR
	case ir.Xor:
		return emitAlu(st, instr, 0x1) // EOR
	case ir.Cmp:
		return emitCmp(st, instr)

	case ir.Mul:
		return emitMul(st, instr)
	case ir.Div:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		rm, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		appendWord(st, 0xE710F010|rd<<16|rd<<0|rm<<8) // SDIV Rd,Rd,Rm
		return nil

	case ir.Inc:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xE2800001|rd<<12|rd<<16) // ADD Rd,Rd,#1
		return nil
	case ir.Dec:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xE2400001|rd<<12|rd<<16) // SUB Rd,Rd,#1
		return nil
	case ir.Not:
		rd, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xE1E00000|rd<<12|rd) // MVN Rd,Rd
		return nil

	case ir.Shl:
		return emitShift(st, instr, 0)
	case ir.Shr:
		return emitShift(st, instr, 1)

	case ir.Jmp:
		return emitBranch(st, instr, 0xEA000000, false)
	case ir.Call:
		return emitBranch(st, instr, 0xEB000000, true)
	case ir.Jz:
		return emitBranch(st, instr, 0x0A000000, false)
	case ir.Jnz:
		return emitBranch(st, instr, 0x1A000000, false)
	case ir.Jl:
		return emitBranch(st, instr, 0xBA000000, false)
	case ir.Jg:
		return emitBranch(st, instr, 0xCA000000, false)

	case ir.Ret:
		appendWord(st, 0xE12FFF1E) // BX LR
		return nil
	case ir.Push:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xE52D0004|r<<12) // PUSH {Rn}
		return nil
	case ir.Pop:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xE49D0004|r<<12) // POP {Rn}
		return nil

	case ir.Int, ir.Sys:
		appendWord(st, 0xEF000000) // SVC #0
		return nil
	case ir.Hlt:
		appendWord(st, 0xE1200070) // BKPT #0 (no halt instruction on ARM)
		return nil
	case ir.Nop:
		appendWord(st, 0xE1A00000) // MOV R0,R0
		return nil
	case ir.Wfi:
		appendWord(st, 0xE320F003)
		return nil
	case ir.Dmb:
		appendWord(st, 0xF57FF05F)
		return nil
	case ir.Bswap:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xE6BF0F30|r<<12|r) // REV Rd,Rd
		return nil

	case ir.Set:
		return emitSet(st, instr)
	case ir.Get:
		return emitGet(st, instr)

	case ir.Org:
		return nil

	default:
		return fmt.Errorf("arm: opcode %s cannot be lowered", instr.Op)
	}
}

func emitAlu(st *emit.State, instr ir.Instruction, opc uint32) error {
	rd, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if fitsRotatedImm(v) {
			appendWord(st, 0xE2000000|opc<<21|rd<<16|rd<<12|uint32(v)&0xFF)
			return nil
		}
		emitImmLoad(st, scratch, v)
		appendWord(st, 0xE0000000|opc<<21|rd<<16|rd<<12|scratch)
		return nil
	}
	rm, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, 0xE0000000|opc<<21|rd<<16|rd<<12|rm)
	return nil
}

func emitCmp(st *emit.State, instr ir.Instruction) error {
	rn, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if fitsRotatedImm(v) {
			appendWord(st, 0xE3500000|rn<<16|uint32(v)&0xFF)
			return nil
		}
		emitImmLoad(st, scratch, v)
		appendWord(st, 0xE1500000|rn<<16|scratch)
		return nil
	}
	rm, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, 0xE1500000|rn<<16|rm)
	return nil
}

func emitMul(st *emit.State, instr ir.Instruction) error {
	rd, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		emitImmLoad(st, scratch, instr.Operands[1].Imm)
		appendWord(st, 0xE0000090|rd<<16|rd|scratch<<8) // MUL Rd,Rd,scratch
		return nil
	}
	rm, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, 0xE0000090|rd<<16|rd|rm<<8)
	return nil
}

func emitShift(st *emit.State, instr ir.Instruction, shiftType uint32) error {
	rd, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		amount := uint32(instr.Operands[1].Imm) & 0x1F
		appendWord(st, 0xE1A00000|rd<<12|amount<<7|shiftType<<5|rd)
		return nil
	}
	rs, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, 0xE1A00010|rd<<12|rs<<8|shiftType<<5|rd)
	return nil
}

func emitBranch(st *emit.State, instr ir.Instruction, template uint32, isCall bool) error {
	off := st.Buf.Len()
	appendWord(st, template)
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupBranchARM,
		IsCall:     isCall,
	})
	return nil
}

// emitDataAccess materializes the variable/buffer's absolute address
// into the scratch register, then does an LDR/STR (§4.4: "ARM/ARM64/
// RISC-V materialize the variable's absolute address into a scratch
// register"). Addresses are already final by Emit time.
func emitDataAccess(st *emit.State, instr ir.Instruction, isLoad, isByte bool) error {
	var reg ir.Operand
	var label string
	if isLoad {
		reg = instr.Operands[0]
		label = instr.Operands[1].Label
	} else {
		label = instr.Operands[0].Label
		reg = instr.Operands[1]
	}
	r, err := checkReg(reg)
	if err != nil {
		return err
	}
	addr, ok := emit.ResolveLabel(st, label)
	if !ok {
		return fmt.Errorf("undefined variable/buffer: %s", label)
	}
	emitFullImmLoad(st, scratch, int64(addr))
	if isLoad {
		if isByte {
			appendWord(st, 0xE5D00000|scratch<<16|r<<12) // LDRB Rd,[scratch]
		} else {
			appendWord(st, 0xE5900000|scratch<<16|r<<12) // LDR Rd,[scratch]
		}
	} else {
		if isByte {
			appendWord(st, 0xE5C00000|scratch<<16|r<<12) // STRB Rd,[scratch]
		} else {
			appendWord(st, 0xE5800000|scratch<<16|r<<12) // STR Rd,[scratch]
		}
	}
	return nil
}

// valScratch holds SET's immediate value when both the variable's
// address and the value to store need a scratch register at once.
const valScratch = 6

func emitSet(st *emit.State, instr ir.Instruction) error {
	addr, ok := emit.ResolveLabel(st, instr.Operands[0].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[0].Label)
	}
	val := instr.Operands[1]
	emitFullImmLoad(st, scratch, int64(addr))
	if val.Kind == ir.KindImmediate {
		emitImmLoad(st, valScratch, val.Imm)
		appendWord(st, 0xE5800000|scratch<<16|valScratch<<12)
		return nil
	}
	r, err := checkReg(val)
	if err != nil {
		return err
	}
	appendWord(st, 0xE5800000|scratch<<16|r<<12)
	return nil
}

func emitGet(st *emit.State, instr ir.Instruction) error {
	r, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	addr, ok := emit.ResolveLabel(st, instr.Operands[1].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[1].Label)
	}
	emitFullImmLoad(st, scratch, int64(addr))
	appendWord(st, 0xE5900000|scratch<<16|r<<12)
	return nil
}

// PatchFixup computes (target - (instrAddr+8)) >> 2 as a 24-bit signed
// two's complement field (§4.4 pass 3).
func (b *Backend) PatchFixup(fx ir.Fixup, st *emit.State) error {
	target, ok := emit.ResolveLabel(st, fx.Label)
	if !ok {
		return fmt.Errorf("undefined label: %s", fx.Label)
	}
	disp := (int64(target) - (int64(fx.InstrAddr) + 8)) >> 2
	if err := emit.CheckRange(disp, 24, "ARM branch"); err != nil {
		return err
	}
	word := binary.LittleEndian.Uint32(st.Buf.Bytes()[fx.CodeOffset : fx.CodeOffset+4])
	word = (word &^ 0xFFFFFF) | (uint32(disp) & 0xFFFFFF)
	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], word)
	st.Buf.WriteAt(int(fx.CodeOffset), b4[:])
	return nil
}
