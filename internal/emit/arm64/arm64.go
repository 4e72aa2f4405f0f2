// Package arm64 implements the AArch64 code emitter backend (§4.4).
// Instruction word layout follows the same condition/immediate-field
// packing conventions lookbusy1344-arm_emulator uses for ARMv7-A,
// widened to AArch64's fixed 32-bit instruction words over a 64-bit
// register file.
package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/ir"
)

// registerWindow is R0..R7 mapped directly onto X0..X7.
const registerWindow = 8
const scratch = 7    // X7: address scratch for data-section access
const valScratch = 6 // X6: value scratch when SET needs both at once

type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string        { return "arm64" }
func (b *Backend) WordSize() int       { return 8 }
func (b *Backend) RegisterWindow() int { return registerWindow }

func checkReg(op ir.Operand) (uint32, error) {
	if op.Kind != ir.KindRegister {
		return 0, fmt.Errorf("expected register operand, got %s", op.Kind)
	}
	if int(op.Register) >= registerWindow {
		return 0, fmt.Errorf("register R%d outside AArch64 window R0..R%d", op.Register, registerWindow-1)
	}
	return uint32(op.Register), nil
}

func appendWord(st *emit.State, w uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], w)
	st.Buf.AppendBytes(b[:])
}

// movzEncoding packs a MOVZ (isMovk=false) or MOVK (isMovk=true)
// 64-bit instruction word: sf=1, opc, 100101, hw, imm16, Rd.
func movzEncoding(isMovk bool, hw uint32, imm16 uint16, rd uint32) uint32 {
	opc := uint32(0b10)
	if isMovk {
		opc = 0b11
	}
	return (1 << 31) | (opc << 29) | (0b100101 << 23) | (hw << 21) | (uint32(imm16) << 5) | (rd & 0x1F)
}

// sizeOfImm64Chunks returns how many 16-bit chunks (1..4) are needed to
// materialize v via MOVZ followed by MOVK as needed; each chunk costs
// 4 bytes. Only valid for immediates known at parse time — see
// emitFullImmLoad for data-section addresses, whose magnitude is not
// known until after pass 1.
func sizeOfImm64Chunks(v int64) int {
	u := uint64(v)
	switch {
	case u>>16 == 0:
		return 1
	case u>>32 == 0:
		return 2
	case u>>48 == 0:
		return 3
	default:
		return 4
	}
}

func emitImmLoad(st *emit.State, rd uint32, v int64) {
	u := uint64(v)
	chunks := sizeOfImm64Chunks(v)
	appendWord(st, movzEncoding(false, 0, uint16(u), rd))
	for hw := 1; hw < chunks; hw++ {
		appendWord(st, movzEncoding(true, uint32(hw), uint16(u>>(16*hw)), rd))
	}
}

// emitFullImmLoad always emits MOVZ+MOVK (8 bytes), the worst case
// for an address that is well within 32 bits — used for every
// data-section reference, whose final address is not known at pass 1.
func emitFullImmLoad(st *emit.State, rd uint32, v int64) {
	u := uint64(v)
	appendWord(st, movzEncoding(false, 0, uint16(u), rd))
	appendWord(st, movzEncoding(true, 1, uint16(u>>16), rd))
}

func fitsUnsigned12(v int64) bool { return v >= 0 && v <= 0xFFF }

// PredictSize returns the exact byte count for instr.
func (b *Backend) PredictSize(instr ir.Instruction, st *emit.State) (int, error) {
	switch instr.Op {
	case ir.Ldi:
		return 4 * sizeOfImm64Chunks(instr.Operands[1].Imm), nil
	case ir.Mov:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 * sizeOfImm64Chunks(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Load, ir.Store, ir.Loadb, ir.Storeb:
		return 12, nil // 8-byte address materialization + 4-byte LDR/STR
	case ir.Lds:
		return 8, nil
	case ir.Add, ir.Sub:
		if instr.Operands[1].Kind == ir.KindImmediate {
			v := instr.Operands[1].Imm
			if fitsUnsigned12(v) {
				return 4, nil
			}
			return 4 + 4*sizeOfImm64Chunks(v), nil
		}
		return 4, nil
	case ir.And, ir.Or, ir.Xor:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + 4*sizeOfImm64Chunks(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Cmp:
		if instr.Operands[1].Kind == ir.KindImmediate {
			v := instr.Operands[1].Imm
			if fitsUnsigned12(v) {
				return 4, nil
			}
			return 4 + 4*sizeOfImm64Chunks(v), nil
		}
		return 4, nil
	case ir.Mul:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + 4*sizeOfImm64Chunks(instr.Operands[1].Imm), nil
		}
		return 4, nil
	case ir.Div:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 4 + 4*sizeOfImm64Chunks(instr.Operands[1].Imm), nil
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
		return 4, nil
	case ir.Int, ir.Sys:
		return 4, nil
	case ir.Hlt, ir.Nop:
		return 4, nil
	case ir.Bswap:
		return 4, nil
	case ir.Wfi, ir.Dmb:
		return 4, nil
	case ir.Set:
		if instr.Operands[1].Kind == ir.KindImmediate {
			return 12 + 4*sizeOfImm64Chunks(instr.Operands[1].Imm), nil
		}
		return 12, nil
	case ir.Get:
		return 12, nil
	case ir.Org:
		return 0, nil
	default:
		return 0, fmt.Errorf("arm64: opcode %s cannot be lowered", instr.Op)
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
		appendWord(st, 0xAA0003E0|(src<<16)|dst) // MOV Xd,Xm (ORR Xd,XZR,Xm)
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
		return emitLogical(st, instr, 0x8A000000)
	case ir.Or:
		return emitLogical(st, instr, 0xAA000000)
	case ir.Xor:
		return emitLogical(st, instr, 0xCA000000)
	case ir.Cmp:
		return emitCmp(st, instr)

	case ir.Mul:
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
		appendWord(st, 0x9B007C00|(src<<16)|(dst<<5)|dst) // MUL Xd,Xd,src
		return nil

	case ir.Div:
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
		appendWord(st, 0x9AC00C00|(src<<16)|(dst<<5)|dst) // SDIV Xd,Xd,src
		return nil

	case ir.Inc:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0x91000400|(r<<5)|r) // ADD Xd,Xd,#1
		return nil
	case ir.Dec:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xD1000400|(r<<5)|r) // SUB Xd,Xd,#1
		return nil
	case ir.Not:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xAA2003E0|(r<<16)|r) // MVN Xd,Xd (ORN Xd,XZR,Xd)
		return nil

	case ir.Shl:
		return emitShift(st, instr, true)
	case ir.Shr:
		return emitShift(st, instr, false)

	case ir.Jmp:
		return emitBranch(st, instr, false)
	case ir.Call:
		return emitBranch(st, instr, true)
	case ir.Jz:
		return emitCondBranch(st, instr, 0x0)
	case ir.Jnz:
		return emitCondBranch(st, instr, 0x1)
	case ir.Jl:
		return emitCondBranch(st, instr, 0xB)
	case ir.Jg:
		return emitCondBranch(st, instr, 0xC)

	case ir.Ret:
		appendWord(st, 0xD65F03C0) // RET (X30)
		return nil

	case ir.Push:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		// STR Xt, [SP, #-16]!
		appendWord(st, 0xF81F0FE0|r)
		return nil
	case ir.Pop:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		// LDR Xt, [SP], #16
		appendWord(st, 0xF84107E0|r)
		return nil

	case ir.Int, ir.Sys:
		appendWord(st, 0xD4000001) // SVC #0
		return nil

	case ir.Hlt:
		appendWord(st, 0xD4400000) // HLT #0
		return nil
	case ir.Nop:
		appendWord(st, 0xD503201F) // NOP
		return nil

	case ir.Bswap:
		r, err := checkReg(instr.Operands[0])
		if err != nil {
			return err
		}
		appendWord(st, 0xDAC00C00|(r<<5)|r) // REV Xd,Xd
		return nil

	case ir.Wfi:
		appendWord(st, 0xD503207F)
		return nil
	case ir.Dmb:
		appendWord(st, 0xD5033BBF) // DMB ISH
		return nil

	case ir.Set:
		return emitSet(st, instr)
	case ir.Get:
		return emitGet(st, instr)

	case ir.Org:
		return nil

	default:
		return fmt.Errorf("arm64: opcode %s cannot be lowered", instr.Op)
	}
}

func emitAddSub(st *emit.State, instr ir.Instruction, isSub bool) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if fitsUnsigned12(v) {
			opc := uint32(0x91000000)
			if isSub {
				opc = 0xD1000000
			}
			appendWord(st, opc|(uint32(v)<<10)|(dst<<5)|dst)
			return nil
		}
		emitImmLoad(st, scratch, v)
		opc := uint32(0x8B000000)
		if isSub {
			opc = 0xCB000000
		}
		appendWord(st, opc|(uint32(scratch)<<16)|(dst<<5)|dst)
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	opc := uint32(0x8B000000)
	if isSub {
		opc = 0xCB000000
	}
	appendWord(st, opc|(src<<16)|(dst<<5)|dst)
	return nil
}

// emitLogical lowers AND/OR/XOR; the logical-immediate bitmask encoding
// is intricate enough that immediates always take the scratch-register
// path here rather than a dedicated single-instruction immediate form.
func emitLogical(st *emit.State, instr ir.Instruction, regOpc uint32) error {
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
	appendWord(st, regOpc|(src<<16)|(dst<<5)|dst)
	return nil
}

func emitCmp(st *emit.State, instr ir.Instruction) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		v := instr.Operands[1].Imm
		if fitsUnsigned12(v) {
			appendWord(st, 0xF100001F|(uint32(v)<<10)|(dst<<5))
			return nil
		}
		emitImmLoad(st, scratch, v)
		appendWord(st, 0xEB00001F|(uint32(scratch)<<16)|(dst<<5))
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	appendWord(st, 0xEB00001F|(src<<16)|(dst<<5))
	return nil
}

// emitShift lowers SHL/SHR by immediate to UBFM (LSL/LSR alias) and by
// register to LSLV/LSRV — both single 4-byte instructions, unlike
// x86's CL-register convention.
func emitShift(st *emit.State, instr ir.Instruction, isLeft bool) error {
	dst, err := checkReg(instr.Operands[0])
	if err != nil {
		return err
	}
	if instr.Operands[1].Kind == ir.KindImmediate {
		shift := uint32(instr.Operands[1].Imm) & 0x3F
		if isLeft {
			immr := (64 - shift) & 0x3F
			imms := (63 - shift) & 0x3F
			appendWord(st, 0xD3400000|(immr<<16)|(imms<<10)|(dst<<5)|dst)
		} else {
			appendWord(st, 0xD340FC00|(shift<<16)|(dst<<5)|dst)
		}
		return nil
	}
	src, err := checkReg(instr.Operands[1])
	if err != nil {
		return err
	}
	opc := uint32(0x9AC02000) // LSLV
	if !isLeft {
		opc = 0x9AC02400 // LSRV
	}
	appendWord(st, opc|(src<<16)|(dst<<5)|dst)
	return nil
}

func emitBranch(st *emit.State, instr ir.Instruction, isCall bool) error {
	opc := uint32(0x14000000) // B
	if isCall {
		opc = 0x94000000 // BL
	}
	instrAddr := st.PC
	off := st.Buf.Len()
	appendWord(st, opc)
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  instrAddr,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupBranchARM64B,
		IsCall:     isCall,
	})
	return nil
}

func emitCondBranch(st *emit.State, instr ir.Instruction, cond byte) error {
	instrAddr := st.PC
	off := st.Buf.Len()
	appendWord(st, 0x54000000|uint32(cond)) // B.cond, imm19 filled by fixup
	st.Fixups.Add(ir.Fixup{
		Label:      instr.Operands[0].Label,
		CodeOffset: uint64(off),
		InstrAddr:  instrAddr,
		Line:       instr.Loc.Line,
		Kind:       ir.FixupBranchARM64Cond,
		Cond:       cond,
	})
	return nil
}

// emitDataAccess materializes the target address into the scratch
// register (always the full 8-byte MOVZ+MOVK pair — the address is
// not known until after pass 1) and issues a single LDR/STR/LDRB/STRB.
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

	var word uint32
	switch {
	case isByte && isLoad:
		word = 0x39400000 | (uint32(scratch) << 5) | r // LDRB
	case isByte && !isLoad:
		word = 0x39000000 | (uint32(scratch) << 5) | r // STRB
	case isLoad:
		word = 0xF9400000 | (uint32(scratch) << 5) | r // LDR
	default:
		word = 0xF9000000 | (uint32(scratch) << 5) | r // STR
	}
	appendWord(st, word)
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
		appendWord(st, 0xF9000000|(uint32(scratch)<<5)|uint32(valScratch))
		return nil
	}
	r, err := checkReg(val)
	if err != nil {
		return err
	}
	appendWord(st, 0xF9000000|(uint32(scratch)<<5)|r)
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
	appendWord(st, 0xF9400000|(uint32(scratch)<<5)|r)
	return nil
}

// PatchFixup resolves one branch fixup per §4.4 pass 3's AArch64 rule:
// (target - instr_addr) >> 2, OR'd into the stored opcode template.
func (b *Backend) PatchFixup(fx ir.Fixup, st *emit.State) error {
	target, ok := emit.ResolveLabel(st, fx.Label)
	if !ok {
		return fmt.Errorf("undefined label: %s", fx.Label)
	}
	disp := (int64(target) - int64(fx.InstrAddr)) >> 2

	switch fx.Kind {
	case ir.FixupBranchARM64B:
		if err := emit.CheckRange(disp, 26, "AArch64 branch"); err != nil {
			return err
		}
		emit.OrBitsLE32(st, int(fx.CodeOffset), uint32(disp)&0x03FFFFFF)
	case ir.FixupBranchARM64Cond:
		if err := emit.CheckRange(disp, 19, "AArch64 conditional branch"); err != nil {
			return err
		}
		emit.OrBitsLE32(st, int(fx.CodeOffset), (uint32(disp)&0x7FFFF)<<5)
	default:
		return fmt.Errorf("arm64: unexpected fixup kind for PatchFixup")
	}
	return nil
}
