// Package x8632 implements the 32-bit IA-32 code emitter backend
// (§4.4). It shares x86's ModRM packing and opcode choices but drops
// the REX.W prefix throughout and addresses the data section
// absolutely (ModRM rm=101/disp32 means absolute in 32-bit mode,
// unlike x86-64's RIP-relative). Grounded on the same
// other_examples/xyproto-flapc codegen conventions as the x86-64
// backend, with the REX prefix removed per target word size.
package x8632

import (
	"fmt"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

// registerWindow is R0..R7 mapped onto EAX..EDI in ModRM register-field
// order, the same mapping x86-64 uses one size down.
const registerWindow = 8

const scratch = 7

type Backend struct {
	JIT bool
}

func New(jit bool) *Backend { return &Backend{JIT: jit} }

func (b *Backend) Name() string        { return "x86_32" }
func (b *Backend) WordSize() int       { return 4 }
func (b *Backend) RegisterWindow() int { return registerWindow }

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

func checkReg(op ir.Operand) (byte, error) {
	if op.Kind != ir.KindRegister {
		return 0, fmt.Errorf("expected register operand, got %s", op.Kind)
	}
	if int(op.Register) >= registerWindow {
		return 0, fmt.Errorf("register R%d outside x86_32 window R0..R%d", op.Register, registerWindow-1)
	}
	return op.Register, nil
}

// PredictSize returns the exact byte count for instr. Unlike x86-64,
// every ALU immediate fits a native imm32 field, so there is no
// scratch-register-load branch: size is a flat function of operand
// shape.
func (b *Backend) PredictSize(instr ir.Instruction, st *emit.State) (int, error) {
	switch instr.Op {
	case ir.Ldi:
		return 6, nil
	case ir.Mov:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 6, nil
		}
		return 2, nil
	case ir.Load, ir.Store:
		return 6, nil
	case ir.Loadb:
		return 7, nil
	case ir.Storeb:
		return 6, nil
	case ir.Lds:
		return 6, nil
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor, ir.Cmp:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 6, nil
		}
		return 2, nil
	case ir.Mul:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 6, nil
		}
		return 3, nil
	case ir.Div:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 15, nil
		}
		return 9, nil
	case ir.Inc, ir.Dec, ir.Not:
		return 2, nil
	case ir.Shl, ir.Shr:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 3, nil
		}
		if instr.Operands[1].Register == 1 {
			return 2, nil
		}
		return 4, nil
	case ir.Jmp, ir.Call:
		return 5, nil
	case ir.Jz, ir.Jnz, ir.Jl, ir.Jg:
		return 6, nil
	case ir.Ret:
		return 1, nil
	case ir.Push:
		if instr.Operands[0].Kind == ir.KindImmediate {
			return 5, nil
		}
		return 1, nil
	case ir.Pop:
		return 1, nil
	case ir.Pusha, ir.Popa:
		return 1, nil
	case ir.Int:
		return 2, nil
	case ir.Sys:
		return 2, nil
	case ir.Hlt, ir.Nop:
		return 1, nil
	case ir.Cpuid, ir.Rdtsc:
		return 2, nil
	case ir.Bswap:
		return 2, nil
	case ir.Set:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 10, nil
		}
		return 6, nil
	case ir.Get:
		return 6, nil
	case ir.Org:
		return 0, nil
	default:
		return 0, fmt.Errorf("x86_32: opcode %s cannot be lowered", instr.Op)
	}
}

func (b *Backend) Emit(instr ir.Instruction, st *emit.State) error {
	switch instr.Op {
	case ir.Ldi:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		emitLoadImm(st, r, instr.Operands[1].Imm)
		return nil

	case ir.Mov:
		dst, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			emitLoadImm(st, dst, instr.Operands[1].Imm)
			return nil
		}
		src, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x89, modrm(3, src, dst)})
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
		emitLoadImm(st, r, int64(st.Strings.Addr(idx)))
		return nil

	case ir.Add:
		return emitAlu(st, instr, 0x01, 0x81, 0)
	case ir.Sub:
		return emitAlu(st, instr, 0x29, 0x81, 5)
	case ir.And:
		return emitAlu(st, instr, 0x21, 0x81, 4)
	case ir.Or:
		return emitAlu(st, instr, 0x09, 0x81, 1)
	case ir.Xor:
		return emitAlu(st, instr, 0x31, 0x81, 6)
	case ir.Cmp:
		return emitAlu(st, instr, 0x39, 0x81, 7)

	case ir.Mul:
		dst, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			st.Buf.AppendByte(0x69)
			st.Buf.AppendByte(modrm(3, dst, dst))
			appendImm32(st, int32(instr.Operands[1].Imm))
			return nil
		}
		src, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x0F, 0xAF, modrm(3, dst, src)})
		return nil

	case ir.Div:
		return emitDiv(st, instr)

	case ir.Inc:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xFF, modrm(3, 0, r)})
		return nil
	case ir.Dec:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xFF, modrm(3, 1, r)})
		return nil
	case ir.Not:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0xF7, modrm(3, 2, r)})
		return nil

	case ir.Shl:
		return emitShift(st, instr, 4)
	case ir.Shr:
		return emitShift(st, instr, 5)

	case ir.Jmp:
		return emitJump(st, instr, 0xE9, false)
	case ir.Call:
		return emitJump(st, instr, 0xE8, true)
	case ir.Jz:
		return emitCondJump(st, instr, 0x84)
	case ir.Jnz:
		return emitCondJump(st, instr, 0x85)
	case ir.Jl:
		return emitCondJump(st, instr, 0x8C)
	case ir.Jg:
		return emitCondJump(st, instr, 0x8F)

	case ir.Ret:
		st.Buf.AppendByte(0xC3)
		return nil

	case ir.Push:
		if instr.Operands[0].Kind == ir.KindImmediate {
			st.Buf.AppendByte(0x68)
			appendImm32(st, int32(instr.Operands[0].Imm))
			return nil
		}
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(0x50 + r)
		return nil
	case ir.Pop:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(0x58 + r)
		return nil

	case ir.Pusha:
		st.Buf.AppendByte(0x60)
		return nil
	case ir.Popa:
		st.Buf.AppendByte(0x61)
		return nil

	case ir.Int:
		st.Buf.AppendByte(0xCD)
		st.Buf.AppendByte(byte(instr.Operands[0].Imm))
		return nil
	case ir.Sys:
		st.Buf.AppendBytes([]byte{0xCD, 0x80}) // INT 0x80: 32-bit Linux syscall gate
		return nil

	case ir.Hlt:
		if b.JIT {
			st.Buf.AppendByte(0xC3)
		} else {
			st.Buf.AppendByte(0xF4)
		}
		return nil
	case ir.Nop:
		st.Buf.AppendByte(0x90)
		return nil

	case ir.Cpuid:
		st.Buf.AppendBytes([]byte{0x0F, 0xA2})
		return nil
	case ir.Rdtsc:
		st.Buf.AppendBytes([]byte{0x0F, 0x31})
		return nil
	case ir.Bswap:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x0F, 0xC8 + r})
		return nil

	case ir.Set:
		return emitSet(st, instr)
	case ir.Get:
		return emitGet(st, instr)

	case ir.Org:
		return nil

	default:
		return fmt.Errorf("x86_32: opcode %s cannot be lowered", instr.Op)
	}
}

func emitLoadImm(st *emit.State, r byte, v int64) {
	st.Buf.AppendByte(0xC7)
	st.Buf.AppendByte(modrm(3, 0, r))
	appendImm32(st, int32(v))
}

func appendImm32(st *emit.State, v int32) {
	u := uint32(v)
	st.Buf.AppendBytes([]byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)})
}

func emitAlu(st *emit.State, instr ir.Instruction, regOp, immOp, immExt byte) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		st.Buf.AppendByte(immOp)
		st.Buf.AppendByte(modrm(3, immExt, dst))
		appendImm32(st, int32(instr.Operands[1].Imm))
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	st.Buf.AppendBytes([]byte{regOp, modrm(3, src, dst)})
	return nil
}

// emitDiv lowers DIV to save/sign-extend/IDIV/restore, 9 bytes register
// form or 15 bytes immediate form (6-byte scratch load + 9).
func emitDiv(st *emit.State, instr ir.Instruction) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	divisor := byte(scratch)
	if instr.Operands[1].Kind == ir.KindImmediate {
		emitLoadImm(st, scratch, instr.Operands[1].Imm)
	} else {
		r, err := checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		divisor = r
	}
	st.Buf.AppendByte(0x52)                                      // PUSH EDX
	st.Buf.AppendBytes([]byte{0x89, modrm(3, dst, 0)})           // MOV EAX,dst
	st.Buf.AppendByte(0x99)                                      // CDQ
	st.Buf.AppendBytes([]byte{0xF7, modrm(3, 7, divisor)})       // IDIV divisor
	st.Buf.AppendBytes([]byte{0x89, modrm(3, 0, dst)})           // MOV dst,EAX
	st.Buf.AppendByte(0x5A)                                      // POP EDX
	return nil
}

func emitShift(st *emit.State, instr ir.Instruction, ext byte) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		st.Buf.AppendByte(0xC1)
		st.Buf.AppendByte(modrm(3, ext, dst))
		st.Buf.AppendByte(byte(instr.Operands[1].Imm))
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	if src != 1 {
		st.Buf.AppendBytes([]byte{0x89, modrm(3, src, 1)}) // MOV ECX,src
	}
	st.Buf.AppendBytes([]byte{0xD3, modrm(3, ext, dst)})
	return nil
}

func emitJump(st *emit.State, instr ir.Instruction, opcode byte, isCall bool) error {
	st.Buf.AppendByte(opcode)
	off := st.Buf.Len()
	st.Buf.AppendBytes([]byte{0, 0, 0, 0})
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupRelX86,
		IsCall:     isCall,
	})
	return nil
}

func emitCondJump(st *emit.State, instr ir.Instruction, cond byte) error {
	st.Buf.AppendByte(0x0F)
	st.Buf.AppendByte(cond)
	off := st.Buf.Len()
	st.Buf.AppendBytes([]byte{0, 0, 0, 0})
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  st.PC,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupRelX86,
	})
	return nil
}

// emitDataAccess lowers LOAD/STORE/LOADB/STOREB to an absolute-address
// access: in 32-bit mode ModRM mod=00,rm=101 carries a disp32 that the
// CPU reads as an absolute address, not RIP-relative, so no origin
// subtraction is needed (unlike the x86-64 backend).
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

	if isByte {
		if isLoad {
			st.Buf.AppendBytes([]byte{0x0F, 0xB6})
		} else {
			st.Buf.AppendByte(0x88)
		}
	} else {
		opcode := byte(0x8B)
		if !isLoad {
			opcode = 0x89
		}
		st.Buf.AppendByte(opcode)
	}
	st.Buf.AppendByte(modrm(0, r, 5))
	appendImm32(st, int32(addr))
	return nil
}

func emitSet(st *emit.State, instr ir.Instruction) error {
	addr, ok := emit.ResolveLabel(st, instr.Operands[0].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[0].Label)
	}
	val := instr.Operands[1]
	if val.Kind == ir.KindImmediate {
		st.Buf.AppendByte(0xC7)
		st.Buf.AppendByte(modrm(0, 0, 5))
		appendImm32(st, int32(addr))
		appendImm32(st, int32(val.Imm))
		return nil
	}
	r, err := checkReg(val)
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0x89)
	st.Buf.AppendByte(modrm(0, r, 5))
	appendImm32(st, int32(addr))
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
	st.Buf.AppendByte(0x8B)
	st.Buf.AppendByte(modrm(0, r, 5))
	appendImm32(st, int32(addr))
	return nil
}

func fitsInt32(v int64) bool {
	return v >= -(1<<31) && v <= (1<<31)-1
}

// PatchFixup resolves one branch/call fixup, same rule as x86-64:
// target - (offset_of_displacement + 4), signed 32-bit little-endian.
func (b *Backend) PatchFixup(fx ir.Fixup, st *emit.State) error {
	target, ok := emit.ResolveLabel(st, fx.Label)
	if !ok {
		return fmt.Errorf("undefined label: %s", fx.Label)
	}
	disp := int64(target) - int64(fx.CodeOffset+4)
	if !fitsInt32(disp) {
		return fmt.Errorf("branch to %s out of range for 32-bit displacement", fx.Label)
	}
	emit.WriteLE32(st, int(fx.CodeOffset), int32(disp))
	return nil
}
