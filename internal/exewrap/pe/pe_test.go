package pe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/el-dockerr/ua/internal/target"
)

func TestWriteX86Win32HasMZAndPESignatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.exe")
	if err := Write(path, target.X86, target.Win32, []byte{0xC3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if data[0] != 'M' || data[1] != 'Z' {
		t.Fatalf("missing MZ magic: % X", data[:2])
	}
	lfanew := int(data[0x3C])
	peSig := data[lfanew : lfanew+4]
	if string(peSig) != "PE\x00\x00" {
		t.Fatalf("missing PE signature: % X", peSig)
	}
	if len(data) <= headerBudget {
		t.Fatalf("expected file larger than header budget, got %d bytes", len(data))
	}
}

func TestWriteX8632Win32ProducesPE32Magic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.exe")
	if err := Write(path, target.X8632, target.Win32, []byte{0xC3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lfanew := int(data[0x3C])
	optMagicOffset := lfanew + 4 + 20
	magic := uint16(data[optMagicOffset]) | uint16(data[optMagicOffset+1])<<8
	if magic != 0x10B {
		t.Fatalf("expected PE32 optional header magic 0x10B, got %x", magic)
	}
}

func TestWriteUnsupportedArchitectureErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.exe")
	if err := Write(path, target.ARM, target.Win32, []byte{0x00}); err == nil {
		t.Fatalf("expected an error for arm/win32, got nil")
	}
}
