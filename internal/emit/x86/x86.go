// Package x86 implements the x86-64 code emitter backend (§4.4),
// the architecture exercised end-to-end by Scenario A's JIT path.
// Byte-layout conventions (REX prefixes, ModRM field packing) are
// grounded on other_examples/xyproto-flapc's codegen.go/mov.go/lea.go.
package x86

import (
	"fmt"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

// registerWindowWide is R0..R7, mapped 1:1 onto the native ModRM
// register field (0=RAX,1=RCX,2=RDX,3=RBX,4=RSP,5=RBP,6=RSI,7=RDI) —
// the encoding Scenario A's expected bytes rely on directly. This is
// the spec's Phase-7 window.
const registerWindowWide = 8

// registerWindowNarrow is the spec's Phase-5 subset, R0..R3.
const registerWindowNarrow = 4

// scratch is the register used to materialize an out-of-range ALU
// immediate before a register-form ALU op; RDI, the wide window's last
// slot, is least likely to collide with a calling convention register
// UA itself never establishes. Narrow-window backends never reach the
// out-of-fitsInt32-range path in practice, but scratch stays outside
// R0..R3 either way.
const scratch = 7

// Backend is the x86-64 emitter. JIT selects whether HLT lowers to the
// native halt instruction or to RET, per §5's "executable code a JIT
// can safely return from". window is the register window this backend
// accepts — the spec leaves the x86-64 Phase-5 (R0..R3) vs Phase-7
// (R0..R7) choice as an emitter parameter rather than a fixed constant.
type Backend struct {
	JIT    bool
	window int
}

// New builds the default, Phase-7 wide-window (R0..R7) backend — the
// window the CLI always selects.
func New(jit bool) *Backend { return &Backend{JIT: jit, window: registerWindowWide} }

// NewNarrow builds the Phase-5 narrow-window (R0..R3) backend.
func NewNarrow(jit bool) *Backend { return &Backend{JIT: jit, window: registerWindowNarrow} }

func (b *Backend) Name() string        { return "x86" }
func (b *Backend) WordSize() int       { return 8 }
func (b *Backend) RegisterWindow() int { return b.window }

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

func (b *Backend) checkReg(op ir.Operand) (byte, error) {
	if op.Kind != ir.KindRegister {
		return 0, fmt.Errorf("expected register operand, got %s", op.Kind)
	}
	if int(op.Register) >= b.window {
		return 0, fmt.Errorf("register R%d outside x86-64 window R0..R%d", op.Register, b.window-1)
	}
	return op.Register, nil
}

func fitsInt32(v int64) bool {
	return v >= -(1<<31) && v <= (1<<31)-1
}

// PredictSize returns the exact byte count for instr, per §4.4's
// per-opcode predict-size rules.
func (b *Backend) PredictSize(instr ir.Instruction, st *emit.State) (int, error) {
	switch instr.Op {
	case ir.Ldi:
		return 7, nil
	case ir.Mov:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 7, nil
		}
		return 3, nil
	case ir.Load, ir.Store, ir.Loadb:
		return 7, nil
	case ir.Storeb:
		return 6, nil
	case ir.Lds:
		return 7, nil
	case ir.Add, ir.Sub, ir.And, ir.Or, ir.Xor, ir.Cmp:
		if instr.Operands[1].Kind == ir.KindImmediate {
			if fitsInt32(instr.Operands[1].Imm) {
				return 7, nil
			}
			return 13, nil
		}
		return 3, nil
	case ir.Mul:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 7, nil
		}
		return 4, nil
	case ir.Div:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 20, nil
		}
		return 13, nil
	case ir.Inc, ir.Dec, ir.Not:
		return 3, nil
	case ir.Shl, ir.Shr:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4, nil
		}
		if instr.Operands[1].Register == 1 {
			return 3, nil
		}
		return 6, nil
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
	case ir.Int:
		return 2, nil
	case ir.Sys:
		return 2, nil
	case ir.Hlt, ir.Nop:
		return 1, nil
	case ir.Cpuid, ir.Rdtsc:
		return 2, nil
	case ir.Bswap:
		return 3, nil
	case ir.Set:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 11, nil
		}
		return 7, nil
	case ir.Get:
		return 7, nil
	case ir.Org:
		return 0, nil
	default:
		return 0, fmt.Errorf("x86: opcode %s cannot be lowered", instr.Op)
	}
}

// Emit appends instr's encoding to st.Buf (§4.4 "Pass 2").
func (b *Backend) Emit(instr ir.Instruction, st *emit.State) error {
	switch instr.Op {
	case ir.Ldi:
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		emitLoadImm(st, r, instr.Operands[1].Imm)
		return nil

	case ir.Mov:
		dst, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			emitLoadImm(st, dst, instr.Operands[1].Imm)
			return nil
		}
		src, err := b.checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x48, 0x89, modrm(3, src, dst)})
		return nil

	case ir.Load:
		return b.emitDataAccess(st, instr, true, false)
	case ir.Store:
		return b.emitDataAccess(st, instr, false, false)
	case ir.Loadb:
		return b.emitDataAccess(st, instr, true, true)
	case ir.Storeb:
		return b.emitDataAccess(st, instr, false, true)

	case ir.Lds:
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		idx := st.Strings.Intern(instr.Operands[1].Str)
		emitLoadImm(st, r, int64(st.Strings.Addr(idx)))
		return nil

	case ir.Add:
		return b.emitAlu(st, instr, 0x01, 0x81, 0)
	case ir.Sub:
		return b.emitAlu(st, instr, 0x29, 0x81, 5)
	case ir.And:
		return b.emitAlu(st, instr, 0x21, 0x81, 4)
	case ir.Or:
		return b.emitAlu(st, instr, 0x09, 0x81, 1)
	case ir.Xor:
		return b.emitAlu(st, instr, 0x31, 0x81, 6)
	case ir.Cmp:
		return b.emitAlu(st, instr, 0x39, 0x81, 7)

	case ir.Mul:
		dst, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		if instr.Operands[1].Kind == ir.KindImmediate {
			st.Buf.AppendByte(0x48)
			st.Buf.AppendByte(0x69)
			st.Buf.AppendByte(modrm(3, dst, dst))
			appendImm32(st, int32(instr.Operands[1].Imm))
			return nil
		}
		src, err := b.checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x48, 0x0F, 0xAF, modrm(3, dst, src)})
		return nil

	case ir.Div:
		return b.emitDiv(st, instr)

	case ir.Inc:
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x48, 0xFF, modrm(3, 0, r)})
		return nil
	case ir.Dec:
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x48, 0xFF, modrm(3, 1, r)})
		return nil
	case ir.Not:
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x48, 0xF7, modrm(3, 2, r)})
		return nil

	case ir.Shl:
		return b.emitShift(st, instr, 4)
	case ir.Shr:
		return b.emitShift(st, instr, 5)

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
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(0x50 + r)
		return nil
	case ir.Pop:
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendByte(0x58 + r)
		return nil

	case ir.Int:
		st.Buf.AppendByte(0xCD)
		st.Buf.AppendByte(byte(instr.Operands[0].Imm))
		return nil
	case ir.Sys:
		st.Buf.AppendBytes([]byte{0x0F, 0x05})
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
		r, err := b.checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		st.Buf.AppendBytes([]byte{0x48, 0x0F, 0xC8 + r})
		return nil

	case ir.Set:
		return b.emitSet(st, instr)
	case ir.Get:
		return b.emitGet(st, instr)

	case ir.Org:
		return nil

	default:
		return fmt.Errorf("x86: opcode %s cannot be lowered", instr.Op)
	}
}

func emitLoadImm(st *emit.State, r byte, v int64) {
	st.Buf.AppendByte(0x48)
	st.Buf.AppendByte(0xC7)
	st.Buf.AppendByte(modrm(3, 0, r))
	appendImm32(st, int32(v))
}

func appendImm32(st *emit.State, v int32) {
	u := uint32(v)
	st.Buf.AppendBytes([]byte{byte(u), byte(u >> 8), byte(u >> 16), byte(u >> 24)})
}

func (b *Backend) emitAlu(st *emit.State, instr ir.Instruction, regOp, immOp, immExt byte) error {
	dst, err := b.checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if !fitsInt32(v) {
			// MOVABS scratch, imm64 (10 bytes), then the register form.
			st.Buf.AppendBytes([]byte{0x48, 0xB8 + scratch})
			for i := 0; i < 8; i++ {
				st.Buf.AppendByte(byte(uint64(v) >> (8 * i)))
			}
			st.Buf.AppendBytes([]byte{0x48, regOp, modrm(3, scratch, dst)})
			return nil
		}
		st.Buf.AppendByte(0x48)
		st.Buf.AppendByte(immOp)
		st.Buf.AppendByte(modrm(3, immExt, dst))
		appendImm32(st, int32(v))
		return nil
	}
	src, err := b.checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	st.Buf.AppendBytes([]byte{0x48, regOp, modrm(3, src, dst)})
	return nil
}

// emitDiv lowers DIV to the save/sign-extend/IDIV/restore sequence
// §4.4 describes (13 bytes register form, 20 bytes immediate form).
func (b *Backend) emitDiv(st *emit.State, instr ir.Instruction) error {
	dst, err := b.checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	divisor := byte(scratch)
	if instr.Operands[1].Kind == ir.KindImmediate {
		emitLoadImm(st, scratch, instr.Operands[1].Imm)
	} else {
		r, err := b.checkReg(instr.Operands[1])
		if err != nil {
			return err
		}
		divisor = r
	}
	st.Buf.AppendByte(0x52)                                 // PUSH RDX
	st.Buf.AppendBytes([]byte{0x48, 0x89, modrm(3, dst, 0)}) // MOV RAX,dst
	st.Buf.AppendBytes([]byte{0x48, 0x99})                   // CQO
	st.Buf.AppendBytes([]byte{0x48, 0xF7, modrm(3, 7, divisor)}) // IDIV divisor
	st.Buf.AppendBytes([]byte{0x48, 0x89, modrm(3, 0, dst)}) // MOV dst,RAX
	st.Buf.AppendByte(0x5A)                                 // POP RDX
	return nil
}

func (b *Backend) emitShift(st *emit.State, instr ir.Instruction, ext byte) error {
	dst, err := b.checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		st.Buf.AppendByte(0x48)
		st.Buf.AppendByte(0xC1)
		st.Buf.AppendByte(modrm(3, ext, dst))
		st.Buf.AppendByte(byte(instr.Operands[1].Imm))
		return nil
	}
	src, err := b.checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	if src != 1 {
		st.Buf.AppendBytes([]byte{0x48, 0x89, modrm(3, src, 1)}) // MOV RCX,src
	}
	st.Buf.AppendBytes([]byte{0x48, 0xD3, modrm(3, ext, dst)})
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

// emitDataAccess lowers LOAD/STORE/LOADB/STOREB to a RIP-relative
// access. Variable/buffer addresses are already final by the time
// Emit runs (computed right after pass 1), so this resolves directly
// instead of going through the fixup table.
func (b *Backend) emitDataAccess(st *emit.State, instr ir.Instruction, isLoad, isByte bool) error {
	var reg ir.Operand
	var label string
	if isLoad {
		reg = instr.Operands[0]
		label = instr.Operands[1].Label
	} else {
		label = instr.Operands[0].Label
		reg = instr.Operands[1]
	}
	r, err := b.checkReg(reg)
	if err != nil {
		return err
	}
	addr, ok := emit.ResolveLabel(st, label)
	if !ok {
		return fmt.Errorf("undefined variable/buffer: %s", label)
	}

	opcode := byte(0x8B)
	if !isLoad {
		opcode = 0x89
	}
	if isByte {
		if isLoad {
			st.Buf.AppendBytes([]byte{0x0F, 0xB6})
		} else {
			st.Buf.AppendByte(0x88)
		}
	} else {
		st.Buf.AppendByte(0x48)
		st.Buf.AppendByte(opcode)
	}
	instrLen := 7
	if isByte && isLoad {
		instrLen = 7
	} else if isByte {
		instrLen = 6
	}
	st.Buf.AppendByte(modrm(0, r, 5)) // rm=101 -> RIP-relative
	ripOrigin := st.PC + uint64(instrLen)
	disp := int32(int64(addr) - int64(ripOrigin))
	appendImm32(st, disp)
	return nil
}

func (b *Backend) emitSet(st *emit.State, instr ir.Instruction) error {
	addr, ok := emit.ResolveLabel(st, instr.Operands[0].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[0].Label)
	}
	val := instr.Operands[1]
	if val.Kind == ir.KindImmediate {
		st.Buf.AppendByte(0x48)
		st.Buf.AppendByte(0xC7)
		st.Buf.AppendByte(modrm(0, 0, 5))
		ripOrigin := st.PC + 11
		disp := int32(int64(addr) - int64(ripOrigin))
		appendImm32(st, disp)
		appendImm32(st, int32(val.Imm))
		return nil
	}
	r, err := b.checkReg(val)
	if err != nil {
		return err
	}
	st.Buf.AppendByte(0x48)
	st.Buf.AppendByte(0x89)
	st.Buf.AppendByte(modrm(0, r, 5))
	ripOrigin := st.PC + 7
	disp := int32(int64(addr) - int64(ripOrigin))
	appendImm32(st, disp)
	return nil
}

func (b *Backend) emitGet(st *emit.State, instr ir.Instruction) error {
	r, err := b.checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	addr, ok := emit.ResolveLabel(st, instr.Operands[1].Label)
	if !ok {
		return fmt.Errorf("undefined variable: %s", instr.Operands[1].Label)
	}
	st.Buf.AppendByte(0x48)
	st.Buf.AppendByte(0x8B)
	st.Buf.AppendByte(modrm(0, r, 5))
	ripOrigin := st.PC + 7
	disp := int32(int64(addr) - int64(ripOrigin))
	appendImm32(st, disp)
	return nil
}

// PatchFixup resolves one branch/call fixup: target - (offset_of_
// displacement + 4), stored as signed 32-bit little-endian (§4.4 pass 3).
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
