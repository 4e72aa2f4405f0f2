package diag

import (
	"strings"
	"testing"
)

func TestBannerIncludesLineAndColumn(t *testing.T) {
	d := New(KindSyntax, "main.ua", 3, 7, "unexpected token")
	d.Expected = "register or immediate"
	d.Context = "LDI R0, ,"
	banner := d.Banner()

	for _, want := range []string{"SYNTAX ERROR", "main.ua:3:7", "unexpected token", "register or immediate", "LDI R0, ,"} {
		if !strings.Contains(banner, want) {
			t.Errorf("banner missing %q:\n%s", want, banner)
		}
	}
}

func TestBannerOmitsColumnWhenZero(t *testing.T) {
	d := New(KindIO, "main.ua", 12, 0, "file not found")
	banner := d.Banner()
	if strings.Contains(banner, "main.ua:12:") {
		t.Errorf("expected no column in location, got:\n%s", banner)
	}
	if !strings.Contains(banner, "main.ua:12") {
		t.Errorf("expected line in location, got:\n%s", banner)
	}
}

func TestBannerOmitsExpectedAndContextWhenEmpty(t *testing.T) {
	d := New(KindCompliance, "main.ua", 0, 0, "opcode DJNZ not permitted on target")
	banner := d.Banner()
	if strings.Contains(banner, "expected:") || strings.Contains(banner, "context:") {
		t.Errorf("expected no expected/context lines, got:\n%s", banner)
	}
}

func TestDiagnosticImplementsError(t *testing.T) {
	var err error = New(KindCodegen, "main.ua", 1, 1, "branch out of range")
	if !strings.Contains(err.Error(), "CODEGEN ERROR") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestAggregateCollectsAllBanners(t *testing.T) {
	var agg Aggregate
	agg.Add(New(KindCompliance, "a.ua", 1, 0, "first violation"))
	agg.Add(New(KindCompliance, "a.ua", 2, 0, "second violation"))

	if agg.Len() != 2 {
		t.Fatalf("expected Len 2, got %d", agg.Len())
	}
	out := agg.Error()
	if !strings.Contains(out, "first violation") || !strings.Contains(out, "second violation") {
		t.Errorf("expected both violations in aggregate output, got:\n%s", out)
	}
}
