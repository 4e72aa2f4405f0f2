package compliance

import (
	"testing"

	"github.com/el-dockerr/ua/internal/ir"
	"github.com/el-dockerr/ua/internal/target"
)

func op(o ir.Opcode, line int) ir.Instruction {
	return ir.NewOp(o, nil, ir.Location{Line: line})
}

func TestCheckAcceptsUniversalOpcodesEverywhere(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{op(ir.Mov, 1), op(ir.Hlt, 2)}}
	if agg := Check("t.ua", prog, target.MCS51, target.Baremetal); agg != nil {
		t.Fatalf("expected no violations, got %s", agg.Error())
	}
}

func TestCheckRejectsArchSpecificOpcodeOnWrongTarget(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{op(ir.Cpuid, 5)}}
	agg := Check("t.ua", prog, target.ARM, target.Baremetal)
	if agg == nil || agg.Len() != 1 {
		t.Fatalf("expected exactly 1 violation, got %v", agg)
	}
}

func TestCheckAggregatesMultipleViolations(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{op(ir.Cpuid, 1), op(ir.Rdtsc, 2), op(ir.Pusha, 3)}}
	agg := Check("t.ua", prog, target.MCS51, target.Baremetal)
	if agg == nil || agg.Len() != 3 {
		t.Fatalf("expected 3 aggregated violations, got %v", agg)
	}
}

func TestCheckPushaRestrictedTo32BitX86(t *testing.T) {
	prog := ir.Program{Instructions: []ir.Instruction{op(ir.Pusha, 1)}}
	if agg := Check("t.ua", prog, target.X8632, target.Baremetal); agg != nil {
		t.Fatalf("expected PUSHA allowed on x86_32, got %s", agg.Error())
	}
	if agg := Check("t.ua", prog, target.X86, target.Baremetal); agg == nil {
		t.Fatal("expected PUSHA rejected on 64-bit x86")
	}
}
