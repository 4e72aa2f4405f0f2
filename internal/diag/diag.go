// Package diag formats the multi-line error banners described in §7 and
// tags each diagnostic with a machine-readable kind so the logging
// layer can surface it in structured form.
package diag

import "fmt"

// Kind is the error taxonomy from §7.
type Kind string

const (
	KindIO         Kind = "io"
	KindPreprocess Kind = "preprocess"
	KindSyntax     Kind = "syntax"
	KindCompliance Kind = "compliance"
	KindCodegen    Kind = "codegen"
	KindResource   Kind = "resource"
)

func (k Kind) heading() string {
	switch k {
	case KindIO:
		return "I/O FAILURE"
	case KindPreprocess:
		return "PREPROCESSOR ERROR"
	case KindSyntax:
		return "SYNTAX ERROR"
	case KindCompliance:
		return "COMPLIANCE ERROR"
	case KindCodegen:
		return "CODEGEN ERROR"
	case KindResource:
		return "RESOURCE EXHAUSTION"
	default:
		return "ERROR"
	}
}

// Diagnostic is a single reported failure: category, location, message.
// It implements error so it composes with normal Go error handling.
type Diagnostic struct {
	Kind    Kind
	File    string
	Line    int
	Col     int
	Message string
	// Context is optional near-token context (syntax errors) or the
	// permitted set (compliance errors).
	Context string
	// Expected names the expected production (syntax errors only).
	Expected string
}

func (d *Diagnostic) Error() string {
	return d.Banner()
}

// Banner renders the multi-line banner: category heading, location,
// message — the shared pure function described in §9.
func (d *Diagnostic) Banner() string {
	loc := d.File
	if d.Line > 0 {
		if d.Col > 0 {
			loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Col)
		} else {
			loc = fmt.Sprintf("%s:%d", d.File, d.Line)
		}
	}

	s := fmt.Sprintf("--- %s ---\nlocation: %s\nmessage:  %s\n", d.Kind.heading(), loc, d.Message)
	if d.Expected != "" {
		s += fmt.Sprintf("expected: %s\n", d.Expected)
	}
	if d.Context != "" {
		s += fmt.Sprintf("context:  %s\n", d.Context)
	}
	return s
}

// New builds a Diagnostic.
func New(kind Kind, file string, line, col int, message string) *Diagnostic {
	return &Diagnostic{Kind: kind, File: file, Line: line, Col: col, Message: message}
}

// Aggregate collects multiple diagnostics (used for compliance errors,
// §7: "aggregated — every violation is reported, then the run aborts").
type Aggregate struct {
	Items []*Diagnostic
}

func (a *Aggregate) Add(d *Diagnostic) {
	a.Items = append(a.Items, d)
}

func (a *Aggregate) Len() int { return len(a.Items) }

func (a *Aggregate) Error() string {
	s := ""
	for _, d := range a.Items {
		s += d.Banner()
	}
	return s
}
