package target

import "testing"

func TestParseArchResolvesAliases(t *testing.T) {
	cases := map[string]Arch{
		"x86_32":  X8632,
		"ia32":    X8632,
		"arm64":   ARM64,
		"aarch64": ARM64,
		"riscv":   RISCV,
		"rv64":    RISCV,
		"mcs51":   MCS51,
		"arm":     ARM,
		"x86":     X86,
	}
	for in, want := range cases {
		got, err := ParseArch(in)
		if err != nil {
			t.Fatalf("ParseArch(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseArch(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseArchRejectsUnknown(t *testing.T) {
	if _, err := ParseArch("bogus"); err == nil {
		t.Fatalf("expected an error for an unknown architecture")
	}
}

func TestParseSysResolvesAliases(t *testing.T) {
	got, err := ParseSys("darwin")
	if err != nil {
		t.Fatalf("ParseSys: %v", err)
	}
	if got != MacOS {
		t.Fatalf("expected MacOS, got %q", got)
	}
}

func TestParseSysRejectsUnknown(t *testing.T) {
	if _, err := ParseSys("bogus"); err == nil {
		t.Fatalf("expected an error for an unknown system")
	}
}

func TestWordSizePerArchitecture(t *testing.T) {
	cases := map[Arch]int{
		MCS51: 1,
		X8632: 4,
		ARM:   4,
		X86:   8,
		ARM64: 8,
		RISCV: 8,
	}
	for arch, want := range cases {
		if got := arch.WordSize(); got != want {
			t.Errorf("%s.WordSize() = %d, want %d", arch, got, want)
		}
	}
}

func TestIs32Bit(t *testing.T) {
	if !X8632.Is32Bit() || !ARM.Is32Bit() {
		t.Fatalf("expected x86_32 and arm to be 32-bit")
	}
	if X86.Is32Bit() || ARM64.Is32Bit() || RISCV.Is32Bit() || MCS51.Is32Bit() {
		t.Fatalf("expected only x86_32 and arm to report Is32Bit")
	}
}
