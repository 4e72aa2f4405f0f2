package parser

import "github.com/el-dockerr/ua/internal/ir"

// shape declares one opcode's arity and per-operand accepted type, used
// by Parse to validate every non-special instruction (§4.2).
type shape struct {
	arity   int
	operand [3]ir.OperandType
}

var shapeTable = map[ir.Opcode]shape{
	ir.Mov:    {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Ldi:    {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeImmediate}},
	ir.Load:   {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeLabelRef}},
	ir.Store:  {2, [3]ir.OperandType{ir.TypeLabelRef, ir.TypeRegister}},
	ir.Loadb:  {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeLabelRef}},
	ir.Storeb: {2, [3]ir.OperandType{ir.TypeLabelRef, ir.TypeRegister}},
	ir.Lds:    {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeString}},

	ir.Add: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Sub: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Mul: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Div: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Inc: {1, [3]ir.OperandType{ir.TypeRegister}},
	ir.Dec: {1, [3]ir.OperandType{ir.TypeRegister}},

	ir.And: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Or:  {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Xor: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Not: {1, [3]ir.OperandType{ir.TypeRegister}},
	ir.Shl: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Shr: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},

	ir.Cmp:  {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate}},
	ir.Jmp:  {1, [3]ir.OperandType{ir.TypeLabelRef}},
	ir.Jz:   {1, [3]ir.OperandType{ir.TypeLabelRef}},
	ir.Jnz:  {1, [3]ir.OperandType{ir.TypeLabelRef}},
	ir.Jl:   {1, [3]ir.OperandType{ir.TypeLabelRef}},
	ir.Jg:   {1, [3]ir.OperandType{ir.TypeLabelRef}},
	ir.Ret:  {0, [3]ir.OperandType{}},

	ir.Push: {1, [3]ir.OperandType{ir.TypeRegisterOrImmediate}},
	ir.Pop:  {1, [3]ir.OperandType{ir.TypeRegister}},

	ir.Int:  {1, [3]ir.OperandType{ir.TypeImmediate}},
	ir.Sys:  {1, [3]ir.OperandType{ir.TypeImmediate}},
	ir.Hlt:  {0, [3]ir.OperandType{}},
	ir.Nop:  {0, [3]ir.OperandType{}},

	ir.Buffer: {1, [3]ir.OperandType{ir.TypeImmediate}},

	ir.Cpuid: {0, [3]ir.OperandType{}},
	ir.Rdtsc: {0, [3]ir.OperandType{}},
	ir.Bswap: {1, [3]ir.OperandType{ir.TypeRegister}},
	ir.Pusha: {0, [3]ir.OperandType{}},
	ir.Popa:  {0, [3]ir.OperandType{}},

	ir.Djnz: {2, [3]ir.OperandType{ir.TypeRegister, ir.TypeLabelRef}},
	ir.Cjne: {3, [3]ir.OperandType{ir.TypeRegister, ir.TypeRegisterOrImmediate, ir.TypeLabelRef}},
	ir.Setb: {1, [3]ir.OperandType{ir.TypeRegister}},
	ir.Clr:  {1, [3]ir.OperandType{ir.TypeRegister}},
	ir.Reti: {0, [3]ir.OperandType{}},

	ir.Wfi: {0, [3]ir.OperandType{}},
	ir.Dmb: {0, [3]ir.OperandType{}},

	ir.Ebreak: {0, [3]ir.OperandType{}},
	ir.Fence:  {0, [3]ir.OperandType{}},

	ir.Org: {1, [3]ir.OperandType{ir.TypeImmediate}},
}
