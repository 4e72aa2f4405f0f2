// Package parser turns preprocessed source lines into an ir.Program,
// driven by a per-opcode shape table plus a handful of specials
// (VAR/SET/GET/CALL/function syntax) handled out-of-table (§4.2).
// Grounded on KTStephano-GVM/vm/compile.go's parseInputLine, generalized
// from its fixed 0-2 argument cases to an arbitrary shape-table lookup.
package parser

import (
	"fmt"
	"strings"

	"github.com/el-dockerr/ua/internal/diag"
	"github.com/el-dockerr/ua/internal/ir"
	"github.com/el-dockerr/ua/internal/lexer"
)

// Parse consumes preprocessed source lines (as produced by
// internal/preprocess) and returns the flat IR program.
func Parse(file string, lines []string) (ir.Program, error) {
	var prog ir.Program

	for i, raw := range lines {
		lineNo := i + 1
		l := lexer.Tokenize(raw)
		if len(l.Tokens) == 0 {
			continue
		}

		instr, err := parseLine(file, lineNo, l)
		if err != nil {
			return ir.Program{}, err
		}
		prog.Instructions = append(prog.Instructions, instr)
	}

	return prog, nil
}

func parseLine(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	head := l.Tokens[0]

	// Label or function definition: `name:` or `name(p1, p2):`.
	if len(l.Tokens) >= 2 && l.Tokens[len(l.Tokens)-1].Kind == lexer.KindColon {
		return parseDef(file, lineNo, l)
	}

	mnemonic := strings.ToUpper(head.Text)
	op, ok := ir.Lookup(mnemonic)
	if !ok {
		// Function-call syntax as a statement: `name(arg, ...)`, no
		// trailing colon — lowers to CALL with a textual argument list.
		if len(l.Tokens) >= 2 && l.Tokens[1].Kind == lexer.KindLParen {
			return parseCallSyntax(file, lineNo, l)
		}
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "unknown opcode: "+head.Text, "")
	}

	switch op {
	case ir.Var:
		return parseVar(file, lineNo, l)
	case ir.Set:
		return parseSet(file, lineNo, l)
	case ir.Get:
		return parseGet(file, lineNo, l)
	case ir.Call:
		return parseCall(file, lineNo, l)
	}

	return parseShaped(file, lineNo, l, op)
}

func syntaxErr(file string, line int, context, msg, expected string) error {
	return &diag.Diagnostic{Kind: diag.KindSyntax, File: file, Line: line, Message: msg, Context: context, Expected: expected}
}

// operandTokens returns the comma-separated operand tokens following
// the mnemonic, rejecting stray tokens that aren't commas or operands.
func operandTokens(toks []lexer.Token) ([]lexer.Token, error) {
	var operands []lexer.Token
	expectOperand := true
	for _, t := range toks[1:] {
		if t.Kind == lexer.KindComma {
			if expectOperand {
				return nil, fmt.Errorf("unexpected comma")
			}
			expectOperand = true
			continue
		}
		if !expectOperand {
			return nil, fmt.Errorf("extra tokens after operand list")
		}
		operands = append(operands, t)
		expectOperand = false
	}
	if expectOperand && len(operands) > 0 {
		return nil, fmt.Errorf("trailing comma")
	}
	return operands, nil
}

func tokenToOperand(t lexer.Token) (ir.Operand, error) {
	switch t.Kind {
	case lexer.KindRegister:
		return ir.NewRegister(t.Reg)
	case lexer.KindImmediate:
		return ir.NewImmediate(t.Imm), nil
	case lexer.KindString:
		return ir.NewString(strings.Trim(t.Text, `"`))
	case lexer.KindLabel:
		return ir.NewLabelRef(t.Text)
	default:
		return ir.Operand{}, fmt.Errorf("unexpected token %q", t.Text)
	}
}

func parseShaped(file string, lineNo int, l lexer.Line, op ir.Opcode) (ir.Instruction, error) {
	sh, ok := shapeTable[op]
	if !ok {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "opcode has no operand shape: "+op.String(), "")
	}

	rawOperands, err := operandTokens(l.Tokens)
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	if len(rawOperands) != sh.arity {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text,
			fmt.Sprintf("%s expects %d operand(s), got %d", op, sh.arity, len(rawOperands)),
			fmt.Sprintf("%d operand(s)", sh.arity))
	}

	operands := make([]ir.Operand, 0, sh.arity)
	for i, rt := range rawOperands {
		opnd, err := tokenToOperand(rt)
		if err != nil {
			return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
		}
		if !sh.operand[i].Accepts(opnd.Kind) {
			return ir.Instruction{}, syntaxErr(file, lineNo, l.Text,
				fmt.Sprintf("operand %d of %s has wrong type", i+1, op),
				"")
		}
		operands = append(operands, opnd)
	}

	return ir.NewOp(op, operands, ir.Location{File: file, Line: lineNo}), nil
}

// parseVar handles `VAR name [, init]`.
func parseVar(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	rawOperands, err := operandTokens(l.Tokens)
	if err != nil || len(rawOperands) < 1 || len(rawOperands) > 2 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "VAR expects name[, init]", "VAR name[, init]")
	}
	if rawOperands[0].Kind != lexer.KindLabel {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "VAR name must be an identifier", "")
	}
	name, err := ir.NewLabelRef(rawOperands[0].Text)
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	operands := []ir.Operand{name}
	if len(rawOperands) == 2 {
		if rawOperands[1].Kind != lexer.KindImmediate {
			return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "VAR initializer must be an immediate", "")
		}
		operands = append(operands, ir.NewImmediate(rawOperands[1].Imm))
	}
	return ir.NewOp(ir.Var, operands, ir.Location{File: file, Line: lineNo}), nil
}

// parseSet handles `SET name, (reg|imm)`.
func parseSet(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	rawOperands, err := operandTokens(l.Tokens)
	if err != nil || len(rawOperands) != 2 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "SET expects name, (reg|imm)", "SET name, (reg|imm)")
	}
	name, err := ir.NewLabelRef(rawOperands[0].Text)
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	val, err := tokenToOperand(rawOperands[1])
	if err != nil || (val.Kind != ir.KindRegister && val.Kind != ir.KindImmediate) {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "SET value must be a register or immediate", "")
	}
	return ir.NewOp(ir.Set, []ir.Operand{name, val}, ir.Location{File: file, Line: lineNo}), nil
}

// parseGet handles `GET reg, name`.
func parseGet(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	rawOperands, err := operandTokens(l.Tokens)
	if err != nil || len(rawOperands) != 2 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "GET expects reg, name", "GET reg, name")
	}
	reg, err := tokenToOperand(rawOperands[0])
	if err != nil || reg.Kind != ir.KindRegister {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "GET destination must be a register", "")
	}
	name, err := ir.NewLabelRef(rawOperands[1].Text)
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	return ir.NewOp(ir.Get, []ir.Operand{reg, name}, ir.Location{File: file, Line: lineNo}), nil
}

// parseCall handles `CALL label`; the function-call syntax
// `name(arg, ...)` is handled by parseCallSyntax.
func parseCall(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	rawOperands, err := operandTokens(l.Tokens)
	if err != nil || len(rawOperands) != 1 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "CALL expects a single label", "CALL label")
	}
	target, err := ir.NewLabelRef(rawOperands[0].Text)
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	return ir.NewOp(ir.Call, []ir.Operand{target}, ir.Location{File: file, Line: lineNo}), nil
}

// parseCallSyntax handles the function-call-syntax statement form
// `name(arg, ...)`: it lowers to the same Call instruction as
// `CALL label`, with CallArgs carrying the textual argument list.
func parseCallSyntax(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	toks := l.Tokens
	callee := toks[0].Text

	closeIdx := -1
	for i := 2; i < len(toks); i++ {
		if toks[i].Kind == lexer.KindRParen {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "unterminated argument list", "")
	}
	if closeIdx != len(toks)-1 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "extra tokens after function call", "")
	}

	var args []ir.CallArg
	expectArg := true
	for _, t := range toks[2:closeIdx] {
		if t.Kind == lexer.KindComma {
			if expectArg {
				return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "unexpected comma in argument list", "")
			}
			expectArg = true
			continue
		}
		if !expectArg {
			return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "extra tokens in argument list", "")
		}
		args = append(args, ir.CallArg(t.Text))
		expectArg = false
	}

	target, err := ir.NewLabelRef(callee)
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	instr := ir.NewOp(ir.Call, []ir.Operand{target}, ir.Location{File: file, Line: lineNo})
	instr.CallArgs = args
	return instr, nil
}

// parseDef handles `name:` and `name(p1, p2):` label/function
// definitions; parseLine only routes lines ending in `:` here.
func parseDef(file string, lineNo int, l lexer.Line) (ir.Instruction, error) {
	toks := l.Tokens
	name := toks[0].Text

	if len(toks) == 2 && toks[1].Kind == lexer.KindColon {
		return ir.NewLabelDef(name, ir.Location{File: file, Line: lineNo}), nil
	}

	if len(toks) < 2 || toks[1].Kind != lexer.KindLParen {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "malformed label/function definition", "")
	}

	closeIdx := -1
	for i := 2; i < len(toks); i++ {
		if toks[i].Kind == lexer.KindRParen {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "unterminated parameter list", "")
	}
	if closeIdx+1 >= len(toks) || toks[closeIdx+1].Kind != lexer.KindColon {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "function definition must end with ':'", "")
	}

	var params []string
	expectParam := true
	for _, t := range toks[2:closeIdx] {
		if t.Kind == lexer.KindComma {
			if expectParam {
				return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "unexpected comma in parameter list", "")
			}
			expectParam = true
			continue
		}
		if !expectParam {
			return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, "extra tokens in parameter list", "")
		}
		params = append(params, t.Text)
		expectParam = false
	}

	instr, err := ir.NewFunctionDef(name, params, ir.Location{File: file, Line: lineNo})
	if err != nil {
		return ir.Instruction{}, syntaxErr(file, lineNo, l.Text, err.Error(), "")
	}
	return instr, nil
}
