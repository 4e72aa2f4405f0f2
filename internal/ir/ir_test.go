package ir

import "testing"

func TestNewRegisterRejectsOutOfRange(t *testing.T) {
	if _, err := NewRegister(16); err == nil {
		t.Fatalf("expected an error for register index 16")
	}
	if _, err := NewRegister(15); err != nil {
		t.Fatalf("NewRegister(15): %v", err)
	}
}

func TestNewLabelRefRejectsEmptyAndOverlong(t *testing.T) {
	if _, err := NewLabelRef(""); err == nil {
		t.Fatalf("expected an error for an empty label")
	}
	long := make([]byte, maxIdentLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := NewLabelRef(string(long)); err == nil {
		t.Fatalf("expected an error for an overlong label")
	}
	if _, err := NewLabelRef("loop"); err != nil {
		t.Fatalf("NewLabelRef(\"loop\"): %v", err)
	}
}

func TestNewStringRejectsOverlong(t *testing.T) {
	long := make([]byte, maxIdentLen*4+1)
	if _, err := NewString(string(long)); err == nil {
		t.Fatalf("expected an error for an overlong string literal")
	}
	if _, err := NewString("hello"); err != nil {
		t.Fatalf("NewString(\"hello\"): %v", err)
	}
}

func TestOperandTypeAccepts(t *testing.T) {
	cases := []struct {
		t    OperandType
		k    OperandKind
		want bool
	}{
		{TypeRegister, KindRegister, true},
		{TypeRegister, KindImmediate, false},
		{TypeImmediate, KindImmediate, true},
		{TypeLabelRef, KindLabelRef, true},
		{TypeRegisterOrImmediate, KindRegister, true},
		{TypeRegisterOrImmediate, KindImmediate, true},
		{TypeRegisterOrImmediate, KindLabelRef, false},
		{TypeString, KindString, true},
		{TypeString, KindRegister, false},
	}
	for _, c := range cases {
		if got := c.t.Accepts(c.k); got != c.want {
			t.Errorf("%v.Accepts(%v) = %v, want %v", c.t, c.k, got, c.want)
		}
	}
}

func TestOpcodeLookupRoundTrips(t *testing.T) {
	op, ok := Lookup("HLT")
	if !ok || op != Hlt {
		t.Fatalf("Lookup(\"HLT\") = %v, %v", op, ok)
	}
	if op.String() != "HLT" {
		t.Fatalf("Hlt.String() = %q", op.String())
	}
	if _, ok := Lookup("NOTANOPCODE"); ok {
		t.Fatalf("expected Lookup to fail for an unknown mnemonic")
	}
}

func TestOpcodeIsBranch(t *testing.T) {
	for _, op := range []Opcode{Jmp, Jz, Jnz, Jl, Jg, Call} {
		if !op.IsBranch() {
			t.Errorf("expected %v.IsBranch() to be true", op)
		}
	}
	for _, op := range []Opcode{Mov, Hlt, Nop, Ret} {
		if op.IsBranch() {
			t.Errorf("expected %v.IsBranch() to be false", op)
		}
	}
}

func TestNewFunctionDefRejectsTooManyParams(t *testing.T) {
	params := make([]string, maxParams+1)
	for i := range params {
		params[i] = "p"
	}
	if _, err := NewFunctionDef("f", params, Location{}); err == nil {
		t.Fatalf("expected an error for a function with more than 8 parameters")
	}
	if _, err := NewFunctionDef("f", params[:maxParams], Location{}); err != nil {
		t.Fatalf("NewFunctionDef with 8 params: %v", err)
	}
}

func TestSymbolTableRejectsDuplicateDefine(t *testing.T) {
	st := NewSymbolTable()
	if err := st.Define("loop", 0); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if err := st.Define("loop", 4); err == nil {
		t.Fatalf("expected an error redefining an existing label")
	}
	addr, ok := st.Lookup("loop")
	if !ok || addr != 0 {
		t.Fatalf("Lookup(\"loop\") = %d, %v, want 0, true", addr, ok)
	}
	if _, ok := st.Lookup("missing"); ok {
		t.Fatalf("expected Lookup to fail for an undefined label")
	}
}

func TestVariableTableDeclareSetAddrLookup(t *testing.T) {
	vt := NewVariableTable()
	if err := vt.Declare("counter", 5, true); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if err := vt.Declare("counter", 0, false); err == nil {
		t.Fatalf("expected an error redeclaring an existing variable")
	}
	vt.SetAddr("counter", 0x100)
	v, ok := vt.Lookup("counter")
	if !ok || v.Addr != 0x100 || v.Init != 5 || !v.HasInit {
		t.Fatalf("unexpected variable: %+v, %v", v, ok)
	}
	if vt.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", vt.Len())
	}
}

func TestBufferTableDeclareSetAddrTotalBytes(t *testing.T) {
	bt := NewBufferTable()
	if err := bt.Declare("scratch", 32); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if err := bt.Declare("scratch", 16); err == nil {
		t.Fatalf("expected an error redeclaring an existing buffer")
	}
	bt.SetAddr("scratch", 0x200)
	buf, ok := bt.Lookup("scratch")
	if !ok || buf.Addr != 0x200 || buf.Size != 32 {
		t.Fatalf("unexpected buffer: %+v, %v", buf, ok)
	}
	if bt.TotalBytes() != 32 {
		t.Fatalf("expected TotalBytes 32, got %d", bt.TotalBytes())
	}
}

func TestStringTableInternCoalescesDuplicates(t *testing.T) {
	st := NewStringTable()
	a := st.Intern("hello")
	b := st.Intern("world")
	c := st.Intern("hello")
	if a != c {
		t.Fatalf("expected Intern to coalesce duplicate strings, got indices %d and %d", a, c)
	}
	if b == a {
		t.Fatalf("expected distinct strings to get distinct indices")
	}
	st.SetAddr(a, 0x10)
	if st.Addr(a) != 0x10 {
		t.Fatalf("expected Addr(%d) = 0x10, got %#x", a, st.Addr(a))
	}
	want := uint64(len("hello") + 1 + len("world") + 1)
	if st.TotalBytes() != want {
		t.Fatalf("expected TotalBytes %d, got %d", want, st.TotalBytes())
	}
}
