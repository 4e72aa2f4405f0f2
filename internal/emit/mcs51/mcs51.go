// Package mcs51 implements the 8051 (MCS-51) code emitter backend
// (§4.4), the architecture exercised end-to-end by Scenario B's
// branch-and-halt sequence. MCS-51 is byte-native: registers, ALU
// operands and the direct-addressing space are all 8 bits wide, so
// every multi-byte UA value is bounced through the accumulator or
// split across an explicit instruction sequence rather than handled
// by a single wide opcode the way the 64-bit backends do.
package mcs51

import (
	"fmt"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

// registerWindow is R0..R7, mapped onto bank-0 direct addresses
// 0x00..0x07 — the mapping that lets CJNE's "A,direct" form compare
// the accumulator against another register without an extra bounce.
const registerWindow = 8

// accumulator's and B's direct addresses, used whenever an ALU op
// needs to go through the accumulator or MUL/DIV's implicit operand.
const (
	dirA = 0xE0
	dirB = 0xF0
)

// Backend is the MCS-51 emitter.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string        { return "mcs51" }
func (b *Backend) WordSize() int       { return 1 }
func (b *Backend) RegisterWindow() int { return registerWindow }

func checkReg(op ir.Operand) (byte, error) {
	if op.Kind != ir.KindRegister {
		return 0, fmt.Errorf("expected register operand, got %s", op.Kind)
	}
	if int(op.Register) >= registerWindow {
		return 0, fmt.Errorf("register R%d outside 8051 window R0..R%d", op.Register, registerWindow-1)
	}
	return op.Register, nil
}

func fitsByte(v int64) bool { return v >= -128 && v <= 255 }

// PredictSize returns the exact byte count for instr (§4.4 pass 1).
// Shifts by register count use a fixed-size DJNZ loop body rather than
// one instruction per shift, so their size doesn't depend on a runtime
// value; shifts by immediate unroll one RL/RR per bit and so do depend
// on the (parse-time-known) immediate, per §4.4's "separate sizes for
// immediate and register shift amounts" rule.
func (b *Backend) PredictSize(instr ir.Instruction, st *emit.State) (int, error) {
	switch instr.Op {
	case ir.Ldi:
		return 2, nil
	case ir.Mov:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 2, nil
		}
		return 2, nil
	case ir.Load, ir.Store, ir.Loadb, ir.Storeb, ir.Get:
		return 2, nil
	case ir.Lds:
		return 2, nil
	case ir.Set:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 3, nil
		}
		return 2, nil
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4, nil
		}
		return 3, nil
	case ir.Cmp:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 3, nil
		}
		return 4, nil
	case ir.Mul, ir.Div:
		return 6, nil
	case ir.Inc, ir.Dec:
		return 1, nil
	case ir.Not:
		return 3, nil
	case ir.Shl, ir.Shr:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 2 + int(instr.Operands[1].Imm), nil
		}
		return 5, nil
	case ir.Jmp, ir.Call:
		return 3, nil
	case ir.Jz, ir.Jnz, ir.Jl, ir.Jg:
		return 2, nil
	case ir.Ret:
		return 1, nil
	case ir.Push, ir.Pop:
		return 2, nil
	case ir.Int, ir.Sys:
		return 1, nil
	case ir.Hlt:
		return 2, nil
	case ir.Nop:
		return 1, nil
	case ir.Bswap:
		return 1, nil
	case ir.Djnz:
		return 2, nil
	case ir.Cjne:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 3, nil
		}
		return 4, nil
	case ir.Setb, ir.Clr:
		return 2, nil
	case ir.Reti:
		return 1, nil
	case ir.Org:
		return 0, nil
	default:
		return 0, fmt.Errorf("mcs51: opcode %s cannot be lowered", instr.Op)
	}
}

// Emit appends instr's encoding to st.Buf (§4.4 pass 2).
func (b *Backend) Emit(instr ir.Instruction, st *emit.State) error {
	switch instr.Op {
	case ir.Ldi:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if !fitsByte(instr.Operands[1].Imm) {
			return fmt.Errorf("mcs51: immediate %d out of 8-bit range", instr.Operands[1].Imm)
		}
		st.Buf.AppendBytes([]byte{0x78 + r, byte(instr.Operands[1].Imm)})
		return nil

	case ir.Mov:
		dst, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			if !fitsByte(instr.Operands[1].Imm) {
				return fmt.Errorf("mcs51: immediate %d out of 8-bit range", instr.Operands[1].Imm)
			}
			st.Buf.AppendBytes([]byte{0x78 + dst, byte(instr.Operands[1].Imm)})
			return nil
		}
		src, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		// MOV A,Rsrc ; MOV Rdst,A -- but that's 2 bytes via direct
		// MOV direct,direct: 0x85 src_addr dst_addr is 3 bytes, so the
		// accumulator bounce is actually shorter.
		st.Buf.AppendBytes([]byte{0xE8 + src, 0xF8 + dst})
		return nil

	case ir.Load:
		return emitDataAccess(st, instr.Operands[0], instr.Operands[1].Label, true)
	case ir.Store:
		return emitDataAccess(st, instr.Operands[1], instr.Operands[0].Label, false)
	case ir.Loadb:
		return emitDataAccess(st, instr.Operands[0], instr.Operands[1].Label, true)
	case ir.Storeb:
		return emitDataAccess(st, instr.Operands[1], instr.Operands[0].Label, false)
	case ir.Get:
		return emitDataAccess(st, instr.Operands[0], instr.Operands[1].Label, true)

	case ir.Lds:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		idx := st.Strings.Intern(instr.Operands[1].Str)
		addr := st.Strings.Addr(idx)
		if addr > 255 {
			return fmt.Errorf("mcs51: string address %d exceeds 8-bit addressing", addr)
		}
		st.Buf.AppendBytes([]byte{0x78 + r, byte(addr)})
		return nil

	case ir.Set:
		return emitSet(st, instr)

	case ir.Add:
		return emitAlu(st, instr, 0x28, 0x24)
	case ir.Sub:
		return emitAlu(st, instr, 0x98, 0x94)
	case ir.And:
		return emitAlu(st, instr, 0x58, 0x54)
	case ir.Or:
		return emitAlu(st, instr, 0x48, 0x44)
	case ir.Xor:
		return emitAlu(st, instr, 0x68, 0x64)

	case ir.Cmp:
		return emitCmp(st, instr)

	case ir.Mul:
		return emitMulDiv(st, instr, 0xA4)
	case ir.Div:
		return emitMulDiv(st, instr, 0x84)

	case ir.Inc:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(0x08 + r)
		return nil
	case ir.Dec:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(0x18 + r)
		return nil
	case ir.Not:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xE8 + r, 0xF4, 0xF8 + r})
		return nil

	case ir.Shl:
		return emitShift(st, instr, 0x23)
	case ir.Shr:
		return emitShift(st, instr, 0x03)

	case ir.Jmp:
		return emitLjmp(st, instr, 0x02)
	case ir.Call:
		return emitLjmp(st, instr, 0x12)

	case ir.Jz:
		return emitShortBranch(st, instr, 0x60)
	case ir.Jnz:
		return emitShortBranch(st, instr, 0x70)
	case ir.Jl:
		return emitShortBranch(st, instr, 0x40)
	case ir.Jg:
		return emitShortBranch(st, instr, 0x50)

	case ir.Ret:
		st.Buf.AppendByte(0x22)
		return nil

	case ir.Push:
		if instr.Operands[0].Kind == ir.KindImmediate {
			return fmt.Errorf("mcs51: PUSH requires a register operand")
		}
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xC0, r})
		return nil
	case ir.Pop:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xD0, r})
		return nil

	case ir.Int, ir.Sys:
		// MCS-51's base instruction set has no software-trap opcode;
		// lowered to NOP (only hardware/timer interrupts exist on the
		// real part).
		st.Buf.AppendByte(0x00)
		return nil

	case ir.Hlt:
		// SJMP $ -- self-loop targeting its own address, the bytes
		// Scenario B's "80 FE" checks for.
		st.Buf.AppendBytes([]byte{0x80, 0xFE})
		return nil
	case ir.Nop:
		st.Buf.AppendByte(0x00)
		return nil

	case ir.Bswap:
		// Registers are single bytes; nothing to swap.
		st.Buf.AppendByte(0x00)
		return nil

	case ir.Djnz:
		return emitDjnz(st, instr)
	case ir.Cjne:
		return emitCjne(st, instr)
	case ir.Setb:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xD2, r})
		return nil
	case ir.Clr:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xC2, r})
		return nil
	case ir.Reti:
		st.Buf.AppendByte(0x32)
		return nil

	case ir.Org:
		return nil

	default:
		return fmt.Errorf("mcs51: opcode %s cannot be lowered", instr.Op)
	}
}

// emitDataAccess lowers LOAD/STORE/LOADB/STOREB/GET to MOV Rn,direct
// or MOV direct,Rn. Variable/buffer addresses are already final by
// the time Emit runs (computed right after pass 1), so this resolves
// the label directly rather than going through the fixup table.
func emitDataAccess(st *emit.State, regOperand ir.Operand, label string, isLoad bool) error {
	r, err := checkReg(regOperand)
	if err != nil {
		return err
	}
	addr, ok := emit.ResolveLabel(st, label)
	if !ok {
		return fmt.Errorf("undefined variable/buffer: %s", label)
	}
	if addr > 255 {
		return fmt.Errorf("mcs51: address %d for %s exceeds 8-bit direct addressing", addr, label)
	}
	if isLoad {
		st.Buf.AppendBytes([]byte{0xA8 + r, byte(addr)}) // MOV Rn,direct
	} else {
		st.Buf.AppendBytes([]byte{0x88 + r, byte(addr)}) // MOV direct,Rn
	}
	return nil
}

func emitSet(st *emit.State, instr ir.Instruction) error {
	addr, ok := emit.ResolveLabel(st, instr.Operands[0].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[0].Label)
	}
	if addr > 255 {
		return fmt.Errorf("mcs51: address %d exceeds 8-bit direct addressing", addr)
	}
	val := instr.Operands[1]
	if val.Kind == ir.KindImmediate {
		if !fitsByte(val.Imm) {
			return fmt.Errorf("mcs51: immediate %d out of 8-bit range", val.Imm)
		}
		st.Buf.AppendBytes([]byte{0x75, byte(addr), byte(val.Imm)})
		return nil
	}
	r, err := checkReg(val)
	if err != nil {
		return err
	}
	st.Buf.AppendBytes([]byte{0x88 + r, byte(addr)})
	return nil
}

// emitAlu lowers ADD/SUB/AND/OR/XOR to an accumulator bounce:
// MOV A,dst ; <op> A,src ; MOV dst,A.
func emitAlu(st *emit.State, instr ir.Instruction, regOp, immOp byte) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0xE8 + dst) // MOV A,dst
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if !fitsByte(v) {
			return fmt.Errorf("mcs51: immediate %d out of 8-bit range", v)
		}
		st.Buf.AppendBytes([]byte{immOp, byte(v)})
	} else {
		src, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(regOp + src)
	}
	st.Buf.AppendByte(0xF8 + dst) // MOV dst,A
	return nil
}

// emitCmp lowers the generic CMP to a zero-displacement CJNE, whose
// only observable effect UA relies on is the carry flag it leaves
// behind for a following Jl/Jg (CY=1 iff dst<operand); rel=0 makes
// the branch-not-equal land on the very next instruction, the same
// place execution falls through to when dst==operand.
func emitCmp(st *emit.State, instr ir.Instruction) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if !fitsByte(v) {
			return fmt.Errorf("mcs51: immediate %d out of 8-bit range", v)
		}
		st.Buf.AppendBytes([]byte{0xB8 + dst, byte(v), 0x00}) // CJNE Rdst,#imm,0
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0xE8 + dst)                  // MOV A,dst
	st.Buf.AppendBytes([]byte{0xB5, src, 0x00}) // CJNE A,direct(src),0
	return nil
}

// emitMulDiv lowers MUL/DIV to A/B via direct-addressed bounces, then
// MUL AB / DIV AB, writing the low result back to dst. B always gets
// written with MOV direct,#data or MOV direct,direct so both operand
// forms cost the same 6 bytes.
func emitMulDiv(st *emit.State, instr ir.Instruction, opcode byte) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0xE8 + dst) // MOV A,dst
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if !fitsByte(v) {
			return fmt.Errorf("mcs51: immediate %d out of 8-bit range", v)
		}
		st.Buf.AppendBytes([]byte{0x75, dirB, byte(v)}) // MOV B,#imm
	} else {
		src, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x85, 0x00 + src, dirB}) // MOV B,direct(src)
	}
	st.Buf.AppendByte(opcode)     // MUL AB / DIV AB
	st.Buf.AppendByte(0xF8 + dst) // MOV dst,A
	return nil
}

// emitShift lowers SHL/SHR. An immediate count unrolls one RL/RR per
// bit (size is a deterministic function of the parse-time-known
// count); a register count runs a fixed-size DJNZ loop instead, since
// §4.4 pass 1 cannot know the runtime value a register will hold.
func emitShift(st *emit.State, instr ir.Instruction, rotOp byte) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0xE8 + dst) // MOV A,dst
	if instr.Operands[1].Kind == ir.KindImmediate {
		n := instr.Operands[1].Imm
		if n < 0 {
			return fmt.Errorf("mcs51: negative shift count %d", n)
		}
		for i := int64(0); i < n; i++ {
			st.Buf.AppendByte(rotOp)
		}
	} else {
		count, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		loopOff := st.Buf.Len()
		st.Buf.AppendByte(rotOp)
		// DJNZ Rcount,loop -- rel is relative to the byte after this
		// 2-byte instruction, so it targets loopOff directly.
		disp := loopOff - (st.Buf.Len() + 2)
		st.Buf.AppendBytes([]byte{0xD8 + count, byte(int8(disp))})
	}
	st.Buf.AppendByte(0xF8 + dst) // MOV dst,A
	return nil
}

// emitLjmp lowers JMP/CALL to LJMP/LCALL, an unconditional 16-bit
// absolute branch. §4.4 pass 1 cannot know a forward label's address
// yet, and a relative SJMP's own encoded size never depends on the
// target anyway -- but choosing LJMP unconditionally (rather than
// picking SJMP when the displacement turns out to fit) keeps the
// 3-byte prediction exact regardless of layout, matching Scenario B.
func emitLjmp(st *emit.State, instr ir.Instruction, opcode byte) error {
	st.Buf.AppendByte(opcode)
	off := st.Buf.Len()
	st.Buf.AppendBytes([]byte{0, 0})
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupAbs8051,
		IsCall:     opcode == 0x12,
	})
	return nil
}

func emitShortBranch(st *emit.State, instr ir.Instruction, opcode byte) error {
	st.Buf.AppendByte(opcode)
	off := st.Buf.Len()
	st.Buf.AppendByte(0)
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupRelShort8051,
	})
	return nil
}

func emitDjnz(st *emit.State, instr ir.Instruction) error {
	r, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0xD8 + r)
	off := st.Buf.Len()
	st.Buf.AppendByte(0)
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[1].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupRelShort8051,
	})
	return nil
}

func emitCjne(st *emit.State, instr ir.Instruction) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	val := instr.Operands[1]
	if val.Kind == ir.KindImmediate {
		if !fitsByte(val.Imm) {
			return fmt.Errorf("mcs51: immediate %d out of 8-bit range", val.Imm)
		}
		st.Buf.AppendBytes([]byte{0xB8 + dst, byte(val.Imm)})
	} else {
		src, err := checkReg(val)
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xE8 + dst, 0xB5, src})
	}
	off := st.Buf.Len()
	st.Buf.AppendByte(0)
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[2].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupRelShort8051,
	})
	return nil
}

// PatchFixup computes and writes the final bytes for one fixup
// (§4.4 pass 3).
func (b *Backend) PatchFixup(fx ir.Fixup, st *emit.State) error {
	target, ok := emit.ResolveLabel(st, fx.Label)
	if !ok {
		return fmt.Errorf("undefined label: %s", fx.Label)
	}

	switch fx.Kind {
	case ir.FixupAbs8051:
		if target > 0xFFFF {
			return fmt.Errorf("mcs51: LJMP/LCALL target %d exceeds 16-bit addressing", target)
		}
		// LJMP/LCALL store addr16 high byte first.
		st.Buf.WriteAt(int(fx.CodeOffset), []byte{byte(target >> 8), byte(target)})
		return nil
	case ir.FixupRelShort8051:
		disp := int64(target) - int64(fx.CodeOffset+1)
		if err := emit.CheckRange(disp, 8, "8051 relative branch"); err != nil {
			return err
		}
		st.Buf.WriteAt(int(fx.CodeOffset), []byte{byte(int8(disp))})
		return nil
	default:
		return fmt.Errorf("mcs51: unexpected fixup kind for PatchFixup")
	}
}
