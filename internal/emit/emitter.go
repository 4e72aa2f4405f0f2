// Package emit defines the per-architecture code emitter contract
// (§4.4) and the three-pass driver shared by all six backends: each
// backend only supplies PredictSize/Emit/PatchFixup plus its register
// window and data-section layout rules; the driver owns traversal,
// the symbol/variable/buffer/string tables, and fixup bookkeeping.
package emit

import (
	"github.com/el-dockerr/ua/internal/codebuf"
	"github.com/el-dockerr/ua/internal/diag"
	"github.com/el-dockerr/ua/internal/ir"
)

// Backend is the per-architecture capability set a target implements.
// A Backend is stateless across programs; State is created fresh per
// Assemble call so a single Backend value can be reused concurrently.
type Backend interface {
	// Name is the canonical architecture name (matches target.Arch).
	Name() string

	// WordSize is the natural word size in bytes, used to lay out the
	// variable table (§4.4 pass 1: "variables at code_size + i *
	// word_size").
	WordSize() int

	// RegisterWindow is the number of registers R0..R(n-1) this backend
	// exposes; operands naming a register outside the window are
	// rejected at Emit time (§4.4 pass 2).
	RegisterWindow() int

	// PredictSize returns the exact number of code bytes instr will
	// occupy, without emitting anything. st carries enough context
	// (known VAR/BUFFER addresses are not yet known at pass 1 — only
	// their existence) to make the size a pure function of the
	// instruction and previously-declared symbols.
	PredictSize(instr ir.Instruction, st *State) (int, error)

	// Emit appends instr's bytes to st.Buf, recording any fixups
	// needed for label-relative operands. The address at which instr
	// begins is st.PC (already advanced past prior instructions by the
	// driver, matching pass 1's prediction).
	Emit(instr ir.Instruction, st *State) error

	// PatchFixup computes and writes the final bytes for one fixup now
	// that all label/variable addresses are known.
	PatchFixup(fx ir.Fixup, st *State) error
}

// State is the mutable per-assembly state threaded through all three
// passes: symbol table, buffer, and the running program counter.
type State struct {
	Buf     *codebuf.Buffer
	Symbols *ir.SymbolTable
	Vars    *ir.VariableTable
	Buffers *ir.BufferTable
	Strings *ir.StringTable
	Fixups  *ir.FixupList

	PC   uint64 // address of the instruction currently being sized/emitted
	File string // source file name, for diagnostics
}

func newState(file string) *State {
	return &State{
		Buf:     codebuf.New(),
		Symbols: ir.NewSymbolTable(),
		Vars:    ir.NewVariableTable(),
		Buffers: ir.NewBufferTable(),
		Strings: ir.NewStringTable(),
		Fixups:  &ir.FixupList{},
		File:    file,
	}
}

// Assemble runs the full three-pass contract from §4.4 over prog using
// backend, returning the final code+data buffer.
func Assemble(file string, prog ir.Program, backend Backend) (*codebuf.Buffer, error) {
	st := newState(file)

	if err := pass1(prog, backend, st); err != nil {
		return nil, err
	}

	layoutDataSections(backend, st)

	if err := pass2(prog, backend, st); err != nil {
		return nil, err
	}

	if err := pass3(backend, st); err != nil {
		return nil, err
	}

	appendDataSections(backend, st)

	return st.Buf, nil
}

// pass1 walks the IR once, predicting sizes, recording label addresses,
// and declaring VAR/BUFFER entries (§4.4 "Pass 1"). A label immediately
// followed by a BUFFER declares the buffer's name instead of a code
// symbol — BUFFER has no operand of its own to name it by.
func pass1(prog ir.Program, backend Backend, st *State) error {
	st.PC = 0
	instrs := prog.Instructions

	for i := 0; i < len(instrs); i++ {
		instr := instrs[i]

		if instr.IsDef {
			if i+1 < len(instrs) && !instrs[i+1].IsDef && instrs[i+1].Op == ir.Buffer {
				size := uint64(instrs[i+1].Operands[0].Imm)
				if err := st.Buffers.Declare(instr.DefName, size); err != nil {
					return &diag.Diagnostic{Kind: diag.KindCodegen, File: st.File, Line: instr.Loc.Line, Message: err.Error()}
				}
				continue
			}
			if err := st.Symbols.Define(instr.DefName, st.PC); err != nil {
				return &diag.Diagnostic{Kind: diag.KindCodegen, File: st.File, Line: instr.Loc.Line, Message: err.Error()}
			}
			continue
		}

		switch instr.Op {
		case ir.Var:
			name := instr.Operands[0].Label
			var initv int64
			hasInit := len(instr.Operands) == 2
			if hasInit {
				initv = instr.Operands[1].Imm
			}
			if err := st.Vars.Declare(name, initv, hasInit); err != nil {
				return &diag.Diagnostic{Kind: diag.KindCodegen, File: st.File, Line: instr.Loc.Line, Message: err.Error()}
			}
			continue
		case ir.Buffer:
			// Already declared when its preceding label was visited
			// (§4.4: "VAR and BUFFER emit zero bytes").
			continue
		case ir.Lds:
			st.Strings.Intern(instr.Operands[1].Str)
		}

		n, err := backend.PredictSize(instr, st)
		if err != nil {
			return &diag.Diagnostic{Kind: diag.KindCodegen, File: st.File, Line: instr.Loc.Line, Message: err.Error()}
		}
		st.PC += uint64(n)
	}
	return nil
}

// layoutDataSections assigns final addresses to variables, buffers,
// and strings, immediately following the code section (§4.4 pass 1
// tail: "After the pass, assign addresses...").
func layoutDataSections(backend Backend, st *State) {
	codeSize := st.PC
	word := uint64(backend.WordSize())

	offset := codeSize
	for i, v := range st.Vars.All() {
		st.Vars.SetAddr(v.Name, offset+uint64(i)*word)
	}
	offset += uint64(st.Vars.Len()) * word

	for _, b := range st.Buffers.All() {
		st.Buffers.SetAddr(b.Name, offset)
		offset += b.Size
	}

	for i, s := range st.Strings.Values() {
		st.Strings.SetAddr(i, offset)
		offset += uint64(len(s)) + 1 // NUL terminator
	}
}

// pass2 re-walks the IR, emitting bytes and recording fixups (§4.4
// "Pass 2").
func pass2(prog ir.Program, backend Backend, st *State) error {
	st.PC = 0
	for _, instr := range prog.Instructions {
		if instr.IsDef || instr.Op == ir.Var {
			continue
		}

		if instr.Op == ir.Buffer {
			continue
		}

		start := st.Buf.Len()
		if err := backend.Emit(instr, st); err != nil {
			return &diag.Diagnostic{Kind: diag.KindCodegen, File: st.File, Line: instr.Loc.Line, Message: err.Error()}
		}
		st.PC += uint64(st.Buf.Len() - start)
	}
	return nil
}

// pass3 patches every recorded fixup now that all addresses are known
// (§4.4 "Pass 3").
func pass3(backend Backend, st *State) error {
	for _, fx := range st.Fixups.All() {
		if err := backend.PatchFixup(fx, st); err != nil {
			return &diag.Diagnostic{Kind: diag.KindCodegen, File: st.File, Line: fx.Line, Message: err.Error()}
		}
	}
	return nil
}

// appendDataSections appends variable, buffer, and string initial
// contents after the code, in that fixed order (§4.4 contract). Each
// variable's initializer occupies exactly backend.WordSize() bytes,
// matching the spacing layoutDataSections already assumed.
func appendDataSections(backend Backend, st *State) {
	word := backend.WordSize()
	for _, v := range st.Vars.All() {
		buf := make([]byte, word)
		putWord(buf, uint64(v.Init))
		st.Buf.AppendBytes(buf)
	}
	for _, b := range st.Buffers.All() {
		st.Buf.AppendBytes(make([]byte, b.Size))
	}
	for _, s := range st.Strings.Values() {
		st.Buf.AppendBytes([]byte(s))
		st.Buf.AppendByte(0)
	}
}

// putWord writes v little-endian into b, truncating to len(b) bytes for
// word sizes narrower than 64 bits (e.g. the 8051's single-byte word).
func putWord(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
}

// ResolveLabel looks up a label/variable/buffer's address, in that
// priority order, for use by PatchFixup and by Emit's RIP/absolute
// addressing modes.
func ResolveLabel(st *State, name string) (uint64, bool) {
	if addr, ok := st.Symbols.Lookup(name); ok {
		return addr, true
	}
	if v, ok := st.Vars.Lookup(name); ok {
		return v.Addr, true
	}
	if b, ok := st.Buffers.Lookup(name); ok {
		return b.Addr, true
	}
	return 0, false
}
