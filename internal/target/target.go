// Package target resolves the CLI's architecture/system names (and their
// aliases) to the canonical identifiers used throughout the pipeline.
package target

import "fmt"

// Arch is one of the six supported CPU families.
type Arch string

const (
	MCS51 Arch = "mcs51"
	X86   Arch = "x86"
	X8632 Arch = "x86_32"
	ARM   Arch = "arm"
	ARM64 Arch = "arm64"
	RISCV Arch = "riscv"
)

var archAliases = map[string]Arch{
	"mcs51":   MCS51,
	"x86":     X86,
	"x86_32":  X8632,
	"ia32":    X8632,
	"arm":     ARM,
	"arm64":   ARM64,
	"aarch64": ARM64,
	"riscv":   RISCV,
	"rv64":    RISCV,
}

// ParseArch resolves a CLI/-IF_ARCH token (including aliases) to a
// canonical Arch.
func ParseArch(s string) (Arch, error) {
	if a, ok := archAliases[s]; ok {
		return a, nil
	}
	return "", fmt.Errorf("unknown architecture: %s", s)
}

// Sys is one of the four OS contexts (absence means Baremetal).
type Sys string

const (
	Baremetal Sys = "baremetal"
	Win32     Sys = "win32"
	Linux     Sys = "linux"
	MacOS     Sys = "macos"
)

var sysAliases = map[string]Sys{
	"baremetal": Baremetal,
	"win32":     Win32,
	"linux":     Linux,
	"macos":     MacOS,
	"darwin":    MacOS,
}

// ParseSys resolves a CLI/@IF_SYS token (including aliases) to a
// canonical Sys.
func ParseSys(s string) (Sys, error) {
	if v, ok := sysAliases[s]; ok {
		return v, nil
	}
	return "", fmt.Errorf("unknown system: %s", s)
}

// WordSize is the target's natural word size in bytes (§3 "Variable
// table").
func (a Arch) WordSize() int {
	switch a {
	case MCS51:
		return 1
	case X8632, ARM:
		return 4
	case X86, ARM64, RISCV:
		return 8
	default:
		return 8
	}
}

// Is32Bit reports whether the architecture's general registers/address
// space are 32-bit wide.
func (a Arch) Is32Bit() bool {
	return a == X8632 || a == ARM
}
