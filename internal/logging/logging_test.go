package logging

import (
	"strings"
	"testing"
)

func TestNewWritesInfoRecordsToOut(t *testing.T) {
	var out strings.Builder
	logger := New(&out, false)
	logger.Info("compiled", "bytes", 18)

	got := out.String()
	if !strings.Contains(got, "compiled") || !strings.Contains(got, "bytes=18") {
		t.Fatalf("expected out to contain message and attrs, got %q", got)
	}
}

func TestWithKindAttachesKindAttribute(t *testing.T) {
	var out strings.Builder
	logger := New(&out, false)
	WithKind(logger, "compliance").Warn("bad opcode")

	got := out.String()
	if !strings.Contains(got, "kind=compliance") {
		t.Fatalf("expected kind=compliance in output, got %q", got)
	}
}

func TestDebugLevelRecordsAreFilteredAtDefaultLevel(t *testing.T) {
	var out strings.Builder
	logger := New(&out, false)
	logger.Debug("quiet message")

	if strings.Contains(out.String(), "quiet message") {
		t.Fatalf("expected debug-level record to be filtered at the handler's default Info level, got %q", out.String())
	}
}
