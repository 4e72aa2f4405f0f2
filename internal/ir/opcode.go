// Package ir defines the hardware-neutral intermediate representation
// that the preprocessor/parser produce and every code emitter consumes.
package ir

// Opcode is the closed enumeration from the UA instruction set.
type Opcode byte

const (
	Invalid Opcode = iota

	// Data
	Mov
	Ldi
	Load
	Store
	Loadb
	Storeb
	Lds

	// Arithmetic
	Add
	Sub
	Mul
	Div
	Inc
	Dec

	// Bitwise
	And
	Or
	Xor
	Not
	Shl
	Shr

	// Control
	Cmp
	Jmp
	Jz
	Jnz
	Jl
	Jg
	Call
	Ret

	// Stack
	Push
	Pop

	// System
	Int
	Sys
	Hlt
	Nop

	// Variables
	Var
	Set
	Get
	Buffer

	// Architecture-specific
	Cpuid
	Rdtsc
	Bswap
	Pusha
	Popa
	Djnz
	Cjne
	Setb
	Clr
	Reti
	Wfi
	Dmb
	Ebreak
	Fence

	// Directive
	Org
)

var opcodeNames = map[Opcode]string{
	Mov: "MOV", Ldi: "LDI", Load: "LOAD", Store: "STORE",
	Loadb: "LOADB", Storeb: "STOREB", Lds: "LDS",
	Add: "ADD", Sub: "SUB", Mul: "MUL", Div: "DIV", Inc: "INC", Dec: "DEC",
	And: "AND", Or: "OR", Xor: "XOR", Not: "NOT", Shl: "SHL", Shr: "SHR",
	Cmp: "CMP", Jmp: "JMP", Jz: "JZ", Jnz: "JNZ", Jl: "JL", Jg: "JG",
	Call: "CALL", Ret: "RET",
	Push: "PUSH", Pop: "POP",
	Int: "INT", Sys: "SYS", Hlt: "HLT", Nop: "NOP",
	Var: "VAR", Set: "SET", Get: "GET", Buffer: "BUFFER",
	Cpuid: "CPUID", Rdtsc: "RDTSC", Bswap: "BSWAP",
	Pusha: "PUSHA", Popa: "POPA",
	Djnz: "DJNZ", Cjne: "CJNE", Setb: "SETB", Clr: "CLR", Reti: "RETI",
	Wfi: "WFI", Dmb: "DMB",
	Ebreak: "EBREAK", Fence: "FENCE",
	Org: "ORG",
}

var namesToOpcode map[string]Opcode

func init() {
	namesToOpcode = make(map[string]Opcode, len(opcodeNames))
	for code, name := range opcodeNames {
		namesToOpcode[name] = code
	}
}

// String renders the opcode using its canonical uppercase mnemonic.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "?unknown?"
}

// Lookup resolves a case-insensitive mnemonic to its opcode. The caller
// is expected to have already upper-cased the token.
func Lookup(mnemonic string) (Opcode, bool) {
	code, ok := namesToOpcode[mnemonic]
	return code, ok
}

// IsBranch reports whether the opcode targets a label and therefore
// needs fixup handling during pass 2/3.
func (o Opcode) IsBranch() bool {
	switch o {
	case Jmp, Jz, Jnz, Jl, Jg, Call:
		return true
	default:
		return false
	}
}
