package hexdump

import (
	"strings"
	"testing"
)

func TestWriteSingleShortRow(t *testing.T) {
	got := String([]byte("HI"))
	if !strings.HasPrefix(got, "00000000  48 49") {
		t.Fatalf("unexpected row prefix: %q", got)
	}
	if !strings.Contains(got, "|HI|") {
		t.Fatalf("expected ASCII column |HI|, got %q", got)
	}
}

func TestWriteNonPrintableBytesRenderAsDot(t *testing.T) {
	got := String([]byte{0x00, 0xFF, 'A'})
	if !strings.Contains(got, "|..A|") {
		t.Fatalf("expected |..A|, got %q", got)
	}
}

func TestWriteWrapsAtSixteenBytes(t *testing.T) {
	got := String(make([]byte, 20))
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows for 20 bytes, got %d: %q", len(lines), got)
	}
	if !strings.HasPrefix(lines[1], "00000010") {
		t.Fatalf("expected second row offset 00000010, got %q", lines[1])
	}
}

func TestWriteEmptyProducesNoRows(t *testing.T) {
	if got := String(nil); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
