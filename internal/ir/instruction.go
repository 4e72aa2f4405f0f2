package ir

// Location pinpoints an instruction's origin in the preprocessed source,
// carried through every pass for diagnostics (§7).
type Location struct {
	File string
	Line int
	Col  int
}

// CallArg is one textual argument captured for a CALL's argument list:
// registers as "R<n>", immediates as "#<v>", identifiers verbatim.
type CallArg string

// Instruction is a sum type: either a label/function definition, or an
// opcode instance. Exactly one of the two variants is populated,
// selected by IsDef.
type Instruction struct {
	IsDef bool

	// Label/function definition variant.
	DefName    string
	IsFunction bool
	Params     []string // up to 8 parameter names when IsFunction

	// Opcode variant.
	Op       Opcode
	Operands []Operand // 0..3
	CallArgs []CallArg // only meaningful when Op == Call

	Loc Location
}

// maxParams bounds the parameter list of a function definition (§3).
const maxParams = 8

// NewLabelDef builds a plain label-definition instruction.
func NewLabelDef(name string, loc Location) Instruction {
	return Instruction{IsDef: true, DefName: name, Loc: loc}
}

// NewFunctionDef builds a function-definition instruction with its
// ordered parameter list.
func NewFunctionDef(name string, params []string, loc Location) (Instruction, error) {
	if len(params) > maxParams {
		return Instruction{}, &ParamOverflowError{Name: name, Count: len(params)}
	}
	return Instruction{IsDef: true, DefName: name, IsFunction: true, Params: params, Loc: loc}, nil
}

// NewOp builds an opcode-instance instruction. Arity/operand-type
// validation against the opcode's shape-table entry happens in the
// parser, not here — the IR only guarantees internal consistency of the
// tagged union itself.
func NewOp(op Opcode, operands []Operand, loc Location) Instruction {
	return Instruction{Op: op, Operands: operands, Loc: loc}
}

// ParamOverflowError reports a function definition with too many
// parameters (§4.2 "parameter overflow").
type ParamOverflowError struct {
	Name  string
	Count int
}

func (e *ParamOverflowError) Error() string {
	return "function " + e.Name + " declares too many parameters (max 8)"
}

// Program is the flat IR array the parser produces and a single emitter
// consumes; it has no lifetime beyond one invocation.
type Program struct {
	Instructions []Instruction
}
