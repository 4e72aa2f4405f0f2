// Package preprocess implements the line-oriented directive layer
// described in §4.1: conditional inclusion, file import with
// once-only/namespace semantics, text-macro substitution, and the small
// set of guard directives. Grounded on KTStephano-GVM/vm/compile.go's
// preprocessLine — a single forward pass that strips/rewrites lines
// while preserving line numbers — generalized from comment-stripping
// alone to the full directive set.
package preprocess

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/el-dockerr/ua/internal/diag"
	"github.com/el-dockerr/ua/internal/target"
)

const (
	maxCondNesting  = 32
	maxImportDepth  = 16
	maxTotalImports = 256
)

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Options configures one preprocessing run.
type Options struct {
	Arch        target.Arch
	Sys         target.Sys
	CompilerDir string   // <compiler_dir>, home of lib/std_*.ua and lib/hw_*.ua
	ImportRoots []string // additional search roots for non-std_/hw_ imports
	Logger      *slog.Logger

	// MaxImportDepth overrides the default @IMPORT recursion limit. Zero
	// means "use the default" (this package's maxImportDepth, 16)
	// rather than "allow no imports at all".
	MaxImportDepth int
}

type condFrame struct {
	wasActive bool
}

// Preprocessor holds the state of one run: imported-file set, macro
// table, and the deferred buffer for depth-0 imports.
type Preprocessor struct {
	opts     Options
	imported map[string]bool
	totalImports int
	macros   map[string]string
	deferred []string
}

// New returns a Preprocessor ready to run over one main file.
func New(opts Options) *Preprocessor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxImportDepth <= 0 {
		opts.MaxImportDepth = maxImportDepth
	}
	return &Preprocessor{
		opts:     opts,
		imported: make(map[string]bool),
		macros:   make(map[string]string),
	}
}

// Run preprocesses mainPath and returns the full preprocessed text
// (main file lines followed by the deferred import buffer).
func (p *Preprocessor) Run(mainPath string) (string, error) {
	abs, err := filepath.Abs(mainPath)
	if err != nil {
		return "", &diag.Diagnostic{Kind: diag.KindIO, File: mainPath, Message: err.Error()}
	}
	p.imported[abs] = true // "already imported" guard against self-inclusion

	mainLines, err := p.processFile(mainPath, 0)
	if err != nil {
		return "", err
	}

	all := append(mainLines, p.deferred...)
	return strings.Join(all, "\n") + "\n", nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &diag.Diagnostic{Kind: diag.KindIO, File: path, Message: err.Error()}
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, &diag.Diagnostic{Kind: diag.KindIO, File: path, Message: err.Error()}
	}
	return lines, nil
}

// processFile preprocesses one file (recursively for imports) and
// returns its output lines, not yet namespace-prefixed — the caller
// applies the prefix if this was reached via @IMPORT.
func (p *Preprocessor) processFile(path string, depth int) ([]string, error) {
	if depth > p.opts.MaxImportDepth {
		return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Message: "import recursion too deep"}
	}

	rawLines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	var out []string
	active := true
	var stack []condFrame

	for lineNo, raw := range rawLines {
		line := strings.TrimSpace(raw)

		if !strings.HasPrefix(line, "@") {
			if active {
				out = append(out, p.substituteMacros(raw))
			} else {
				out = append(out, "")
			}
			continue
		}

		directive, rest := splitDirective(line)
		switch directive {
		case "@IF_ARCH":
			matched := active && rest == string(p.opts.Arch)
			if len(stack) >= maxCondNesting {
				return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Line: lineNo + 1, Message: "conditional nesting too deep"}
			}
			stack = append(stack, condFrame{wasActive: active})
			active = matched
			out = append(out, "")

		case "@IF_SYS":
			matched := active && rest == string(p.opts.Sys)
			if len(stack) >= maxCondNesting {
				return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Line: lineNo + 1, Message: "conditional nesting too deep"}
			}
			stack = append(stack, condFrame{wasActive: active})
			active = matched
			out = append(out, "")

		case "@ENDIF":
			if len(stack) == 0 {
				return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Line: lineNo + 1, Message: "@ENDIF without matching @IF_ARCH/@IF_SYS"}
			}
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			active = frame.wasActive
			out = append(out, "")

		case "@IMPORT":
			out = append(out, "")
			if !active {
				continue
			}
			importedLines, err := p.doImport(path, rest, depth)
			if err != nil {
				return nil, err
			}
			if depth == 0 {
				p.deferred = append(p.deferred, importedLines...)
			} else {
				out = append(out, importedLines...)
			}

		case "@DEFINE":
			out = append(out, "")
			if !active {
				continue
			}
			name, value, ok := strings.Cut(rest, " ")
			if !ok {
				name, value = rest, ""
			}
			p.macros[strings.TrimSpace(name)] = strings.TrimSpace(value)

		case "@ARCH_ONLY":
			out = append(out, "")
			if !active {
				continue
			}
			if !csvContains(rest, string(p.opts.Arch)) {
				return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Line: lineNo + 1,
					Message: fmt.Sprintf("this file only assembles for architectures: %s", rest)}
			}

		case "@SYS_ONLY":
			out = append(out, "")
			if !active {
				continue
			}
			if !csvContains(rest, string(p.opts.Sys)) {
				return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Line: lineNo + 1,
					Message: fmt.Sprintf("this file only assembles for systems: %s", rest)}
			}

		case "@DUMMY":
			if active {
				p.opts.Logger.Warn("dummy directive", "file", path, "line", lineNo+1, "message", rest)
			}
			out = append(out, "")

		case "@ORG":
			if active {
				out = append(out, fmt.Sprintf("ORG %s", rest))
			} else {
				out = append(out, "")
			}

		default:
			return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Line: lineNo + 1, Message: "unknown directive: " + directive}
		}
	}

	if len(stack) != 0 {
		return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: path, Message: "unterminated @IF_ARCH/@IF_SYS block"}
	}

	return out, nil
}

// doImport resolves, once-imports, recursively preprocesses, and
// namespace-prefixes one @IMPORT target.
func (p *Preprocessor) doImport(fromFile, rest string, depth int) ([]string, error) {
	rawPath := strings.Trim(rest, `"`)
	if rawPath == "" {
		return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: fromFile, Message: "@IMPORT missing path"}
	}

	resolved, err := p.resolveImportPath(fromFile, rawPath)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, &diag.Diagnostic{Kind: diag.KindIO, File: resolved, Message: err.Error()}
	}

	if p.imported[abs] {
		p.opts.Logger.Info("import skipped (already imported)", "path", abs)
		return nil, nil
	}
	p.imported[abs] = true

	p.totalImports++
	if p.totalImports > maxTotalImports {
		return nil, &diag.Diagnostic{Kind: diag.KindPreprocess, File: resolved, Message: "too many imported files"}
	}

	childLines, err := p.processFile(resolved, depth+1)
	if err != nil {
		return nil, err
	}

	base := filepath.Base(resolved)
	prefix := strings.TrimSuffix(base, filepath.Ext(base))
	return applyNamespacePrefix(childLines, prefix), nil
}

// resolveImportPath implements the std_/hw_ vs. relative-path rule.
func (p *Preprocessor) resolveImportPath(fromFile, rawPath string) (string, error) {
	name := rawPath
	if ext := filepath.Ext(name); ext == "" {
		name += ".ua"
	}

	if isStdOrHwName(rawPath) {
		libDir := p.opts.CompilerDir
		if libDir == "" {
			libDir = "."
		}
		return filepath.Join(libDir, "lib", name), nil
	}

	if filepath.IsAbs(rawPath) {
		return name, nil
	}

	candidate := filepath.Join(filepath.Dir(fromFile), name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	for _, root := range p.opts.ImportRoots {
		c := filepath.Join(root, name)
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return candidate, nil
}

// isStdOrHwName reports whether a raw import name begins with std_ or
// hw_ with no path separators, per §4.1.
func isStdOrHwName(raw string) bool {
	base := raw
	if strings.ContainsAny(base, "/\\") {
		return false
	}
	return strings.HasPrefix(base, "std_") || strings.HasPrefix(base, "hw_")
}

func splitDirective(line string) (directive, rest string) {
	parts := strings.SplitN(line, " ", 2)
	directive = strings.ToUpper(parts[0])
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return
}

func csvContains(csv, item string) bool {
	for _, p := range strings.Split(csv, ",") {
		if strings.TrimSpace(p) == item {
			return true
		}
	}
	return false
}

// substituteMacros replaces whole-token occurrences of defined macro
// names with their values, token-aware (maximal [A-Za-z_][A-Za-z0-9_]*
// span; partial matches never substitute).
func (p *Preprocessor) substituteMacros(line string) string {
	if len(p.macros) == 0 {
		return line
	}
	return identRe.ReplaceAllStringFunc(line, func(tok string) string {
		if v, ok := p.macros[tok]; ok {
			return v
		}
		return tok
	})
}

// applyNamespacePrefix rewrites label/VAR definitions and their
// references inside an imported file's output lines, per §4.1.
func applyNamespacePrefix(lines []string, prefix string) []string {
	names := collectDeclaredNames(lines)
	if len(names) == 0 {
		return lines
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = rewriteNamesInLine(line, names, prefix)
	}
	return out
}

// collectDeclaredNames finds label definitions ("name:") and VAR
// declarations ("VAR name ...") whose name is not already dotted (i.e.
// not itself the product of a deeper nested import's own prefixing).
func collectDeclaredNames(lines []string) map[string]bool {
	names := make(map[string]bool)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasSuffix(trimmed, ":") && !strings.ContainsAny(trimmed, " \t") {
			name := strings.TrimSuffix(trimmed, ":")
			// Function definitions carry a parameter list, e.g.
			// "print_char(ch):" — the declared name is the part
			// before "(" (§4.2 "name(p1, p2, ...):").
			if i := strings.IndexByte(name, '('); i >= 0 {
				name = name[:i]
			}
			if name != "" && !strings.Contains(name, ".") {
				names[name] = true
			}
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) >= 2 && strings.EqualFold(fields[0], "VAR") {
			name := strings.TrimSuffix(fields[1], ",")
			if name != "" && !strings.Contains(name, ".") {
				names[name] = true
			}
		}
	}
	return names
}

// rewriteNamesInLine rewrites every occurrence of a declared name that
// is not already dotted and not preceded by a digit.
func rewriteNamesInLine(line string, names map[string]bool, prefix string) string {
	if len(names) == 0 {
		return line
	}
	matches := identRe.FindAllStringIndex(line, -1)
	if matches == nil {
		return line
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		tok := line[start:end]
		if !names[tok] {
			continue
		}
		if start > 0 {
			prevCh := line[start-1]
			if prevCh == '.' || (prevCh >= '0' && prevCh <= '9') {
				continue
			}
		}
		b.WriteString(line[last:start])
		b.WriteString(prefix)
		b.WriteByte('.')
		b.WriteString(tok)
		last = end
	}
	b.WriteString(line[last:])
	return b.String()
}
