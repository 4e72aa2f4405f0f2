package main

import (
	"testing"

	"github.com/el-dockerr/ua/internal/target"
)

func TestOutputModeTable(t *testing.T) {
	cases := []struct {
		arch target.Arch
		sys  target.Sys
		want mode
	}{
		{target.MCS51, target.Linux, modeRaw},
		{target.X86, target.Win32, modePE},
		{target.X86, target.Linux, modeELF},
		{target.X86, target.Baremetal, modeRaw},
		{target.X8632, target.Win32, modePE},
		{target.X8632, target.Linux, modeELF},
		{target.ARM, target.Linux, modeELF},
		{target.ARM, target.Baremetal, modeRaw},
		{target.ARM64, target.Linux, modeELF},
		{target.ARM64, target.MacOS, modeMachO},
		{target.RISCV, target.Linux, modeELF},
		{target.RISCV, target.Baremetal, modeRaw},
	}
	for _, c := range cases {
		if got := outputMode(c.arch, c.sys); got != c.want {
			t.Errorf("outputMode(%s, %s) = %d, want %d", c.arch, c.sys, got, c.want)
		}
	}
}

func TestResolveOutputPathRewritesDefaultExtension(t *testing.T) {
	if got := resolveOutputPath("a.out", target.X86, target.Win32); got != "a.exe" {
		t.Errorf("expected a.exe, got %s", got)
	}
	if got := resolveOutputPath("a.out", target.X86, target.Linux); got != "a.elf" {
		t.Errorf("expected a.elf, got %s", got)
	}
	if got := resolveOutputPath("a.out", target.ARM64, target.MacOS); got != "a.macho" {
		t.Errorf("expected a.macho, got %s", got)
	}
	if got := resolveOutputPath("a.out", target.MCS51, target.Baremetal); got != "a.out" {
		t.Errorf("expected a.out unchanged for raw output, got %s", got)
	}
}

func TestResolveOutputPathLeavesExplicitPathAlone(t *testing.T) {
	if got := resolveOutputPath("custom.bin", target.X86, target.Win32); got != "custom.bin" {
		t.Errorf("expected custom.bin unchanged, got %s", got)
	}
}
