package macho

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/el-dockerr/ua/internal/target"
)

func TestWriteARM64MacOSHasMachOMagicAndTwoLoadCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	if err := Write(path, target.ARM64, target.MacOS, []byte{0x00, 0x00, 0x80, 0xD2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) < 32 {
		t.Fatalf("file too short: %d bytes", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != magic64 {
		t.Fatalf("expected Mach-O 64 magic, got %x", magic)
	}
	ncmds := binary.LittleEndian.Uint32(data[16:20])
	if ncmds != 2 {
		t.Fatalf("expected 2 load commands, got %d", ncmds)
	}
	if len(data) <= headerBudget {
		t.Fatalf("expected file larger than header budget, got %d bytes", len(data))
	}
}

func TestWriteRejectsNonARM64MacOSCombination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	if err := Write(path, target.X86, target.MacOS, []byte{0x00}); err == nil {
		t.Fatalf("expected an error for x86/macos, got nil")
	}
}
