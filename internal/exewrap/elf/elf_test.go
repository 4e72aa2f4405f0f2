package elf

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/el-dockerr/ua/internal/target"
)

func TestWriteX86LinuxHasElfMagicAndEntryPastHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	code := []byte{0xC3} // RET
	if err := Write(path, target.X86, target.Linux, code); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) < 64 {
		t.Fatalf("file too short: %d bytes", len(data))
	}
	if data[0] != 0x7F || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		t.Fatalf("missing ELF magic: % X", data[:4])
	}
	if data[4] != 2 {
		t.Fatalf("expected ELFCLASS64, got %d", data[4])
	}
	entry := binary.LittleEndian.Uint64(data[24:32])
	if entry != baseAddr+64+56 {
		t.Fatalf("unexpected entry point: %x", entry)
	}
}

func TestWriteARM32UsesElfClass32(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	if err := Write(path, target.ARM, target.Linux, []byte{0x00, 0x00, 0xA0, 0xE1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if data[4] != 1 {
		t.Fatalf("expected ELFCLASS32, got %d", data[4])
	}
}

func TestWriteUnsupportedArchitectureErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	if err := Write(path, target.MCS51, target.Baremetal, []byte{0x00}); err == nil {
		t.Fatalf("expected an error for mcs51, got nil")
	}
}
