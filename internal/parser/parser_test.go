package parser

import (
	"testing"

	"github.com/el-dockerr/ua/internal/ir"
)

func TestParseSimpleShapedInstruction(t *testing.T) {
	prog, err := Parse("t.ua", []string{"ADD R0,R1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(prog.Instructions) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(prog.Instructions))
	}
	instr := prog.Instructions[0]
	if instr.Op != ir.Add || len(instr.Operands) != 2 {
		t.Fatalf("unexpected instruction: %+v", instr)
	}
}

func TestParseLabelDefinitionAndJump(t *testing.T) {
	prog, err := Parse("t.ua", []string{"loop:", "JMP loop"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !prog.Instructions[0].IsDef || prog.Instructions[0].DefName != "loop" {
		t.Fatalf("expected label def, got %+v", prog.Instructions[0])
	}
	if prog.Instructions[1].Op != ir.Jmp || prog.Instructions[1].Operands[0].Label != "loop" {
		t.Fatalf("expected JMP loop, got %+v", prog.Instructions[1])
	}
}

func TestParseFunctionDefinitionWithParams(t *testing.T) {
	prog, err := Parse("t.ua", []string{"add2(a, b):", "RET"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	def := prog.Instructions[0]
	if !def.IsFunction || def.DefName != "add2" || len(def.Params) != 2 {
		t.Fatalf("expected function def with 2 params, got %+v", def)
	}
}

func TestParseVarWithInitializer(t *testing.T) {
	prog, err := Parse("t.ua", []string{"VAR counter, 5"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	instr := prog.Instructions[0]
	if instr.Op != ir.Var || instr.Operands[0].Label != "counter" || instr.Operands[1].Imm != 5 {
		t.Fatalf("unexpected VAR instruction: %+v", instr)
	}
}

func TestParseCallSyntaxCapturesArgs(t *testing.T) {
	prog, err := Parse("t.ua", []string{"add2(R0, #5)"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	instr := prog.Instructions[0]
	if instr.Op != ir.Call || instr.Operands[0].Label != "add2" {
		t.Fatalf("expected lowered CALL, got %+v", instr)
	}
	if len(instr.CallArgs) != 2 || instr.CallArgs[0] != "R0" || instr.CallArgs[1] != "#5" {
		t.Fatalf("unexpected call args: %+v", instr.CallArgs)
	}
}

func TestParseRejectsWrongArity(t *testing.T) {
	if _, err := Parse("t.ua", []string{"ADD R0"}); err == nil {
		t.Fatal("expected arity error")
	}
}

func TestParseRejectsUnknownOpcode(t *testing.T) {
	if _, err := Parse("t.ua", []string{"FROB R0"}); err == nil {
		t.Fatal("expected unknown opcode error")
	}
}

func TestParseRejectsExtraTokens(t *testing.T) {
	if _, err := Parse("t.ua", []string{"HLT R0"}); err == nil {
		t.Fatal("expected extra-token error")
	}
}
