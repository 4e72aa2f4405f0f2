package jit

import "testing"

// TestRunScenarioA reproduces Scenario A's expected JIT return value.
func TestRunScenarioA(t *testing.T) {
	code := []byte{
		0x48, 0xC7, 0xC0, 0x0A, 0x00, 0x00, 0x00, // MOV RAX,10
		0x48, 0xC7, 0xC1, 0x05, 0x00, 0x00, 0x00, // MOV RCX,5
		0x48, 0x01, 0xC8, // ADD RAX,RCX
		0xC3, // RET
	}
	got, err := Run(code)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}

func TestRunRejectsCodeNotEndingInRet(t *testing.T) {
	_, err := Run([]byte{0x90}) // NOP, no RET
	if err == nil {
		t.Fatalf("expected an error for code not ending in RET")
	}
}

func TestRunRejectsEmptyBuffer(t *testing.T) {
	if _, err := Run(nil); err == nil {
		t.Fatalf("expected an error for an empty code buffer")
	}
}
