package ir

import "fmt"

// maxIdentLen bounds label, variable and string-literal identifiers, mirroring
// the "bounded identifier" / "bounded" language of the data model (§3).
const maxIdentLen = 64

// OperandKind tags the payload carried by an Operand.
type OperandKind byte

const (
	KindRegister OperandKind = iota
	KindImmediate
	KindLabelRef
	KindString
)

func (k OperandKind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindImmediate:
		return "immediate"
	case KindLabelRef:
		return "label-ref"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Operand is a tagged value: register index, signed 64-bit immediate,
// bounded label reference, or bounded string literal. Exactly one payload
// field is meaningful, selected by Kind.
type Operand struct {
	Kind OperandKind

	Register byte
	Imm      int64
	Label    string
	Str      string
}

// NewRegister builds a register operand. Register indices are validated
// against a target's window later, at emission time — the IR itself only
// enforces the 0..15 encoding range.
func NewRegister(idx byte) (Operand, error) {
	if idx > 15 {
		return Operand{}, fmt.Errorf("register index %d out of encodable range 0..15", idx)
	}
	return Operand{Kind: KindRegister, Register: idx}, nil
}

// NewImmediate builds a signed 64-bit immediate operand.
func NewImmediate(v int64) Operand {
	return Operand{Kind: KindImmediate, Imm: v}
}

// NewLabelRef builds a label-reference operand.
func NewLabelRef(name string) (Operand, error) {
	if err := checkIdent(name); err != nil {
		return Operand{}, err
	}
	return Operand{Kind: KindLabelRef, Label: name}, nil
}

// NewString builds a bounded string-literal operand, used by LDS.
func NewString(s string) (Operand, error) {
	if len(s) > maxIdentLen*4 {
		return Operand{}, fmt.Errorf("string literal exceeds maximum length (%d bytes)", maxIdentLen*4)
	}
	return Operand{Kind: KindString, Str: s}, nil
}

func checkIdent(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > maxIdentLen {
		return fmt.Errorf("identifier %q exceeds maximum length %d", name, maxIdentLen)
	}
	return nil
}

func (op Operand) String() string {
	switch op.Kind {
	case KindRegister:
		return fmt.Sprintf("R%d", op.Register)
	case KindImmediate:
		return fmt.Sprintf("#%d", op.Imm)
	case KindLabelRef:
		return op.Label
	case KindString:
		return fmt.Sprintf("%q", op.Str)
	default:
		return "?"
	}
}

// OperandType classifies the *declared* operand-type set an opcode
// accepts, used by the shape table (§4.2).
type OperandType byte

const (
	TypeRegister OperandType = iota
	TypeImmediate
	TypeLabelRef
	TypeRegisterOrImmediate
	TypeString
)

// Accepts reports whether an operand's concrete kind satisfies a
// declared operand type from the shape table.
func (t OperandType) Accepts(k OperandKind) bool {
	switch t {
	case TypeRegister:
		return k == KindRegister
	case TypeImmediate:
		return k == KindImmediate
	case TypeLabelRef:
		return k == KindLabelRef
	case TypeRegisterOrImmediate:
		return k == KindRegister || k == KindImmediate
	case TypeString:
		return k == KindString
	default:
		return false
	}
}
