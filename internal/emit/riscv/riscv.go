// Package riscv implements the RV64I+M code emitter backend (§4.4).
// Instruction word packing (R/I/S/B/U/J formats) follows the field
// layout other_examples/759cba5a_LMMilewski-riscv-emu's decoder uses,
// read in reverse to build rather than parse instruction words.
package riscv

import (
	"encoding/binary"
	"fmt"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

// registerWindow is R0..R7, mapped onto RISC-V's a0..a7 (x10..x17) so
// none of UA's registers collide with zero/sp/ra/t0/t1.
const registerWindow = 8
const regBase = 10 // x10 == a0

const (
	xZero  = 0
	xRA    = 1
	xSP    = 2
	scratch    = 5 // t0: address/immediate scratch
	valScratch = 6 // t1: second scratch for SET's immediate value
	flags      = 7 // t2: holds dst-src after CMP, tested by JZ/JNZ/JL/JG
)

type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string        { return "riscv" }
func (b *Backend) WordSize() int       { return 8 }
func (b *Backend) RegisterWindow() int { return registerWindow }

func checkReg(op ir.Operand) (uint32, error) {
	if op.Kind != ir.KindRegister {
		return 0, fmt.Errorf("expected register operand, got %s", op.Kind)
	}
	if int(op.Register) >= registerWindow {
		return 0, fmt.Errorf("register R%d outside RISC-V window R0..R%d", op.Register, registerWindow-1)
	}
	return uint32(op.Register) + regBase, nil
}

func appendWord(st *emit.State, w uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w)
	st.Buf.AppendBytes(b[:])
}

func rType(funct7, rs2, rs1, funct3, rd, opcode uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func iType(imm uint32, rs1, funct3, rd, opcode uint32) uint32 {
	return ((imm & 0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func sType(imm uint32, rs2, rs1, funct3, opcode uint32) uint32 {
	imm4_0 := imm & 0x1F
	imm11_5 := (imm >> 5) & 0x7F
	return (imm11_5 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (imm4_0 << 7) | opcode
}

func uType(imm20 uint32, rd, opcode uint32) uint32 {
	return (imm20 << 12) | (rd << 7) | opcode
}

func fitsSigned12(v int64) bool { return v >= -2048 && v <= 2047 }

// hiLo splits v into the standard RISC-V li expansion: a 20-bit upper
// immediate for LUI and a 12-bit signed lower immediate for ADDI.
func hiLo(v int64) (hi20 uint32, lo12 uint32) {
	lo := v & 0xFFF
	if lo >= 0x800 {
		lo -= 0x1000
	}
	hi := (v - lo) >> 12
	return uint32(hi) & 0xFFFFF, uint32(lo) & 0xFFF
}

// sizeOfImmLoad returns 4 (single ADDI) when v fits a signed 12-bit
// field, else 8 (LUI+ADDI) — valid only for immediates known at parse
// time (LDI/MOV/ALU/MUL literals).
func sizeOfImmLoad(v int64) int {
	if fitsSigned12(v) {
		return 4
	}
	return 8
}

func emitImmLoad(st *emit.State, rd uint32, v int64) {
	if fitsSigned12(v) {
		appendWord(st, iType(uint32(v)&0xFFF, xZero, 0, rd, 0x13)) // ADDI rd,x0,v
		return
	}
	hi20, lo12 := hiLo(v)
	appendWord(st, uType(hi20, rd, 0x37))       // LUI rd,hi20
	appendWord(st, iType(lo12, rd, 0, rd, 0x13)) // ADDI rd,rd,lo12
}

// emitFullImmLoad always emits LUI+ADDI (8 bytes) — used for every
// data-section address materialization, whose magnitude is unknown
// until after pass 1 has already committed to a predicted size.
func emitFullImmLoad(st *emit.State, rd uint32, v int64) {
	hi20, lo12 := hiLo(v)
	appendWord(st, uType(hi20, rd, 0x37))
	appendWord(st, iType(lo12, rd, 0, rd, 0x13))
}

// PredictSize returns the exact byte count for instr.
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
		return 12, nil
	case ir.Lds:
		return 8, nil
	case ir.Add, ir.Sub:
		if instr.Operands[1].Kind == ir.KindImmediate {
			v := instr.Operands[1].Imm
			eff := v
			if instr.Op == ir.Sub {
				eff = -v
			}
			if fitsSigned12(eff) {
				return 4, nil
			}
			return 4 + sizeOfImmLoad(v), nil
		}
		return 4, nil
	case ir.And, ir.Or, ir.Xor:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + sizeOfImmLoad(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Cmp:
		v := instr.Operands[1]
		if v.Kind == ir.KindImmediate {
			if fitsSigned12(-v.Imm) {
				return 4, nil
			}
			return 4 + sizeOfImmLoad(v.Imm), nil
		}
		return 4, nil
	case ir.Mul, ir.Div:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + sizeOfImmLoad(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Inc, ir.Dec, ir.Not:
		return 4, nil
	case ir.Shl, ir.Shr:
		return 4, nil
	case ir.Jmp, ir.Call:
		return 4, nil
	case ir.Jz, ir.Jnz, ir.Jl, ir.Jg:
		return 4, nil
	case ir.Ret:
		return 4, nil
	case ir.Push, ir.Pop:
		return 8, nil
	case ir.Int, ir.Sys:
		return 4, nil
	case ir.Hlt, ir.Nop:
		return 4, nil
	case ir.Bswap:
		return 4, nil
	case ir.Ebreak, ir.Fence:
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
		return 0, fmt.Errorf("riscv: opcode %s cannot be lowered", instr.Op)
	}
}

// Emit appends instr's encoding to st.Buf.
func (b *Backend) Emit(instr ir.Instruction, st *emit.State) error {
	switch instr.Op {
	case ir.Ldi:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		emitImmLoad(st, r, instr.Operands[1].Imm)
		return nil

	case ir.Mov:
		dst, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			emitImmLoad(st, dst, instr.Operands[1].Imm)
			return nil
		}
		src, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		appendWord(st, iType(0, src, 0, dst, 0x13)) // ADDI dst,src,0
		return nil

	case ir.Load:
		return emitDataAccess(st, instr, true, false)
	case ir.Store:
		return emitDataAccess(st, instr, false, false)
	case ir.Loadb:
		return emitDataAccess(st, instr, true, true)
	case ir.Storeb:
		return emitDataAccess(st, instr, false, true)

	case ir.Lds:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		idx := st.Strings.Intern(instr.Operands[1].Str)
		emitFullImmLoad(st, r, int64(st.Strings.Addr(idx)))
		return nil

	case ir.Add:
		return emitAddSub(st, instr, false)
	case ir.Sub:
		return emitAddSub(st, instr, true)
	case ir.And:
		return emitLogical(st, instr, 0x7)
	case ir.Or:
		return emitLogical(st, instr, 0x6)
	case ir.Xor:
		return emitLogical(st, instr, 0x4)
	case ir.Cmp:
		return emitCmp(st, instr)

	case ir.Mul:
		return emitMulDiv(st, instr, 0x01, 0x0)
	case ir.Div:
		return emitMulDiv(st, instr, 0x01, 0x4)

	case ir.Inc:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, iType(1, r, 0, r, 0x13)) // ADDI r,r,1
		return nil
	case ir.Dec:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, iType(0xFFF, r, 0, r, 0x13)) // ADDI r,r,-1
		return nil
	case ir.Not:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, iType(0xFFF, r, 0x4, r, 0x13)) // XORI r,r,-1
		return nil

	case ir.Shl:
		return emitShift(st, instr, 0x1, 0x00)
	case ir.Shr:
		return emitShift(st, instr, 0x5, 0x00)

	case ir.Jmp:
		return emitJal(st, instr, xZero)
	case ir.Call:
		return emitJal(st, instr, xRA)
	case ir.Jz:
		return emitBranch(st, instr, 0x0, flags, xZero) // BEQ flags,x0
	case ir.Jnz:
		return emitBranch(st, instr, 0x1, flags, xZero) // BNE flags,x0
	case ir.Jl:
		return emitBranch(st, instr, 0x4, flags, xZero) // BLT flags,x0
	case ir.Jg:
		return emitBranch(st, instr, 0x4, xZero, flags) // BLT x0,flags (flags>0)

	case ir.Ret:
		appendWord(st, iType(0, xRA, 0, xZero, 0x67)) // JALR x0,ra,0
		return nil

	case ir.Push:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, iType(0xFF8, xSP, 0, xSP, 0x13)) // ADDI sp,sp,-8
		appendWord(st, sType(0, r, xSP, 0x3, 0x23))                       // SD r,0(sp)
		return nil
	case ir.Pop:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, iType(0, xSP, 0x3, r, 0x03))                    // LD r,0(sp)
		appendWord(st, iType(8, xSP, 0, xSP, 0x13))                     // ADDI sp,sp,8
		return nil

	case ir.Int, ir.Sys:
		appendWord(st, 0x00000073) // ECALL
		return nil

	case ir.Hlt:
		appendWord(st, 0x0000006F) // JAL x0,0: self-loop
		return nil
	case ir.Nop:
		appendWord(st, 0x00000013) // ADDI x0,x0,0
		return nil

	case ir.Bswap:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, rType(0b0110101, 0b11000, r, 0x5, r, 0x13)) // REV8 (Zbb)
		return nil

	case ir.Ebreak:
		appendWord(st, 0x00100073)
		return nil
	case ir.Fence:
		appendWord(st, 0x0FF0000F)
		return nil

	case ir.Set:
		return emitSet(st, instr)
	case ir.Get:
		return emitGet(st, instr)

	case ir.Org:
		return nil

	default:
		return fmt.Errorf("riscv: opcode %s cannot be lowered", instr.Op)
	}
}

func emitAddSub(st *emit.State, instr ir.Instruction, isSub bool) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		eff := v
		if isSub {
			eff = -v
		}
		if fitsSigned12(eff) {
			appendWord(st, iType(uint32(eff)&0xFFF, dst, 0, dst, 0x13))
			return nil
		}
		emitImmLoad(st, scratch, v)
		funct7 := uint32(0)
		if isSub {
			funct7 = 0x20
		}
		appendWord(st, rType(funct7, scratch, dst, 0, dst, 0x33))
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	funct7 := uint32(0)
	if isSub {
		funct7 = 0x20
	}
	appendWord(st, rType(funct7, src, dst, 0, dst, 0x33))
	return nil
}

func emitLogical(st *emit.State, instr ir.Instruction, rFunct3 uint32) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		emitImmLoad(st, scratch, instr.Operands[1].Imm)
		appendWord(st, rType(0, scratch, dst, rFunct3, dst, 0x33))
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, rType(0, src, dst, rFunct3, dst, 0x33))
	return nil
}

// emitCmp computes dst-src into the flags register, consumed by a
// following JZ/JNZ/JL/JG.
func emitCmp(st *emit.State, instr ir.Instruction) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	v := instr.Operands[1]
	if v.Kind == ir.KindImmediate {
		if fitsSigned12(-v.Imm) {
			appendWord(st, iType(uint32(-v.Imm)&0xFFF, dst, 0, flags, 0x13)) // ADDI flags,dst,-imm
			return nil
		}
		emitImmLoad(st, scratch, v.Imm)
		appendWord(st, rType(0x20, scratch, dst, 0, flags, 0x33)) // SUB flags,dst,scratch
		return nil
	}
	src, err := checkReg(v)
	if err != nil {
		return err
	}
	appendWord(st, rType(0x20, src, dst, 0, flags, 0x33)) // SUB flags,dst,src
	return nil
}

func emitMulDiv(st *emit.State, instr ir.Instruction, funct7, funct3 uint32) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	src := uint32(scratch)
	if instr.Operands[1].Kind == ir.KindImmediate {
		emitImmLoad(st, scratch, instr.Operands[1].Imm)
	} else {
		s, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		src = s
	}
	appendWord(st, rType(funct7, src, dst, funct3, dst, 0x33))
	return nil
}

func emitShift(st *emit.State, instr ir.Instruction, funct3, funct7 uint32) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		shamt := uint32(instr.Operands[1].Imm) & 0x3F
		appendWord(st, rType(funct7, shamt, dst, funct3, dst, 0x13)) // SLLI/SRLI, shamt in rs2 field
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, rType(funct7, src, dst, funct3, dst, 0x33)) // SLL/SRL
	return nil
}

func emitJal(st *emit.State, instr ir.Instruction, rd uint32) error {
	instrAddr := st.PC
	off := st.Buf.Len()
	appendWord(st, (rd<<7)|0x6F) // JAL template; imm bits filled by fixup
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  instrAddr,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupJTypeRISCV,
		IsCall:     rd == xRA,
	})
	return nil
}

func emitBranch(st *emit.State, instr ir.Instruction, funct3, rs1, rs2 uint32) error {
	instrAddr := st.PC
	off := st.Buf.Len()
	appendWord(st, rType(0, rs2, rs1, funct3, 0, 0x63)) // B-type template, imm bits zeroed
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  instrAddr,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupBTypeRISCV,
		RiscvBase:  byte(rs1),
	})
	return nil
}

// emitDataAccess materializes the target address into the scratch
// register (always the full 8-byte LUI+ADDI pair) and issues a single
// LD/SD/LB/SB with a zero offset.
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

	switch {
	case isByte && isLoad:
		appendWord(st, iType(0, scratch, 0x0, r, 0x03)) // LB
	case isByte && !isLoad:
		appendWord(st, sType(0, r, scratch, 0x0, 0x23)) // SB
	case isLoad:
		appendWord(st, iType(0, scratch, 0x3, r, 0x03)) // LD
	default:
		appendWord(st, sType(0, r, scratch, 0x3, 0x23)) // SD
	}
	return nil
}

func emitSet(st *emit.State, instr ir.Instruction) error {
	addr, ok := emit.ResolveLabel(st, instr.Operands[0].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[0].Label)
	}
	emitFullImmLoad(st, scratch, int64(addr))

	val := instr.Operands[1]
	if val.Kind == ir.KindImmediate {
		emitImmLoad(st, valScratch, val.Imm)
		appendWord(st, sType(0, valScratch, scratch, 0x3, 0x23))
		return nil
	}
	r, err := checkReg(val)
	if err != nil {
		return err
	}
	appendWord(st, sType(0, r, scratch, 0x3, 0x23))
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
	appendWord(st, iType(0, scratch, 0x3, r, 0x03))
	return nil
}

func packJType(disp int64) uint32 {
	u := uint32(disp)
	imm20 := (u >> 20) & 1
	imm10_1 := (u >> 1) & 0x3FF
	imm11 := (u >> 11) & 1
	imm19_12 := (u >> 12) & 0xFF
	return (imm20 << 31) | (imm10_1 << 21) | (imm11 << 20) | (imm19_12 << 12)
}

func packBType(disp int64) uint32 {
	u := uint32(disp)
	imm12 := (u >> 12) & 1
	imm11 := (u >> 11) & 1
	imm10_5 := (u >> 5) & 0x3F
	imm4_1 := (u >> 1) & 0xF
	return (imm12 << 31) | (imm10_5 << 25) | (imm4_1 << 8) | (imm11 << 7)
}

// PatchFixup resolves one branch/call/jump fixup per §4.4 pass 3's
// RISC-V rule: target - instr_addr, encoded as J-type (±1 MiB) or
// B-type (±4 KiB) depending on fixup kind; range violation is fatal.
func (b *Backend) PatchFixup(fx ir.Fixup, st *emit.State) error {
	target, ok := emit.ResolveLabel(st, fx.Label)
	if !ok {
		return fmt.Errorf("undefined label: %s", fx.Label)
	}
	disp := int64(target) - int64(fx.InstrAddr)

	switch fx.Kind {
	case ir.FixupJTypeRISCV:
		if err := emit.CheckRange(disp, 21, "RISC-V jump"); err != nil {
			return err
		}
		emit.OrBitsLE32(st, int(fx.CodeOffset), packJType(disp))
	case ir.FixupBTypeRISCV:
		if err := emit.CheckRange(disp, 13, "RISC-V branch"); err != nil {
			return err
		}
		emit.OrBitsLE32(st, int(fx.CodeOffset), packBType(disp))
	default:
		return fmt.Errorf("riscv: unexpected fixup kind for PatchFixup")
	}
	return nil
}
