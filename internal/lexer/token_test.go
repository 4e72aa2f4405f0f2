package lexer

import "testing"

func TestTokenizeStripsTrailingComment(t *testing.T) {
	l := Tokenize(`MOV R0,R1 ; move it`)
	if l.Text != "MOV R0,R1" {
		t.Fatalf("expected comment stripped, got %q", l.Text)
	}
}

func TestTokenizeKeepsSemicolonInsideString(t *testing.T) {
	l := Tokenize(`LDS R0,"a;b"`)
	if len(l.Tokens) != 4 {
		t.Fatalf("expected 4 tokens, got %d: %+v", len(l.Tokens), l.Tokens)
	}
	if l.Tokens[3].Kind != KindString || l.Tokens[3].Text != `"a;b"` {
		t.Fatalf("expected string token preserved, got %+v", l.Tokens[3])
	}
}

func TestTokenizeClassifiesRegisterAndImmediate(t *testing.T) {
	l := Tokenize("ADD R0,R1,#10")
	want := []Kind{KindMnemonic, KindRegister, KindComma, KindRegister, KindComma, KindImmediate}
	if len(l.Tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(l.Tokens))
	}
	for i, k := range want {
		if l.Tokens[i].Kind != k {
			t.Fatalf("token %d: expected kind %d, got %d", i, k, l.Tokens[i].Kind)
		}
	}
	if l.Tokens[5].Imm != 10 {
		t.Fatalf("expected immediate 10, got %d", l.Tokens[5].Imm)
	}
}

func TestTokenizeHexImmediate(t *testing.T) {
	l := Tokenize("LDI R0,0x8000")
	imm := l.Tokens[3]
	if imm.Kind != KindImmediate || imm.Imm != 0x8000 {
		t.Fatalf("expected hex immediate 0x8000, got %+v", imm)
	}
}
