// Package compile wires the pipeline stages together: preprocess,
// tokenize/parse, compliance gate, codegen (§4). It owns no logic of
// its own beyond sequencing — each stage is a separate package so it
// can be tested in isolation, the way KTStephano-GVM/vm/compile.go's
// top-level Compile function sequences lexing, parsing and bytecode
// emission without reimplementing any of them inline.
package compile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/el-dockerr/ua/internal/codebuf"
	"github.com/el-dockerr/ua/internal/compliance"
	"github.com/el-dockerr/ua/internal/emit"
	"github.com/el-dockerr/ua/internal/emit/arm"
	"github.com/el-dockerr/ua/internal/emit/arm64"
	"github.com/el-dockerr/ua/internal/emit/mcs51"
	"github.com/el-dockerr/ua/internal/emit/riscv"
	"github.com/el-dockerr/ua/internal/emit/x86"
	"github.com/el-dockerr/ua/internal/emit/x8632"
	"github.com/el-dockerr/ua/internal/ir"
	"github.com/el-dockerr/ua/internal/parser"
	"github.com/el-dockerr/ua/internal/preprocess"
	"github.com/el-dockerr/ua/internal/target"
)

// Options configures one end-to-end compile.
type Options struct {
	Arch           target.Arch
	Sys            target.Sys
	CompilerDir    string
	ImportRoots    []string
	Logger         *slog.Logger
	MaxImportDepth int

	// JIT selects the x86-64/IA-32 HLT lowering: RET (returns to the
	// mapped-memory caller) instead of the native halt instruction.
	JIT bool
}

// Result holds everything a caller (cmd/ua, the e2e suite,
// internal/jit) might need after a successful compile.
type Result struct {
	Code    *codebuf.Buffer
	Program ir.Program
}

// Run preprocesses, parses, gates and assembles mainPath, returning
// the finished code+data buffer. The stages run in strict
// sequence (§4 "Pipeline") — each one's error aborts the run; there is
// no partial result to salvage from a failed later stage.
func Run(mainPath string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pp := preprocess.New(preprocess.Options{
		Arch:           opts.Arch,
		Sys:            opts.Sys,
		CompilerDir:    opts.CompilerDir,
		ImportRoots:    opts.ImportRoots,
		Logger:         logger,
		MaxImportDepth: opts.MaxImportDepth,
	})
	text, err := pp.Run(mainPath)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	prog, err := parser.Parse(mainPath, lines)
	if err != nil {
		return nil, err
	}

	if agg := compliance.Check(mainPath, prog, opts.Arch, opts.Sys); agg != nil {
		return nil, agg
	}

	backend, err := backendFor(opts.Arch, opts.JIT)
	if err != nil {
		return nil, err
	}

	buf, err := emit.Assemble(mainPath, prog, backend)
	if err != nil {
		return nil, err
	}

	logger.Debug("compiled", "arch", string(opts.Arch), "sys", string(opts.Sys), "bytes", buf.Len())

	return &Result{Code: buf, Program: prog}, nil
}

// backendFor selects the emitter for arch. Only x86-64 and IA-32
// support a JIT-mode HLT lowering (§5) — the JIT only ever maps
// native-host-executable code, and the host is always one of those
// two families.
func backendFor(arch target.Arch, jit bool) (emit.Backend, error) {
	switch arch {
	case target.MCS51:
		return mcs51.New(), nil
	case target.X86:
		return x86.New(jit), nil
	case target.X8632:
		return x8632.New(jit), nil
	case target.ARM:
		return arm.New(), nil
	case target.ARM64:
		return arm64.New(), nil
	case target.RISCV:
		return riscv.New(), nil
	default:
		return nil, fmt.Errorf("compile: unsupported architecture %q", arch)
	}
}
