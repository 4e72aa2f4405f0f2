// Command ua is the assembler's CLI entry point: parse flags, load the
// optional ua.toml project file, run the compile pipeline, and write
// whichever output format the arch/sys/--run combination selects (§6).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/el-dockerr/ua/internal/compile"
	"github.com/el-dockerr/ua/internal/config"
	"github.com/el-dockerr/ua/internal/exewrap/elf"
	"github.com/el-dockerr/ua/internal/exewrap/macho"
	"github.com/el-dockerr/ua/internal/exewrap/pe"
	"github.com/el-dockerr/ua/internal/hexdump"
	"github.com/el-dockerr/ua/internal/jit"
	"github.com/el-dockerr/ua/internal/logging"
	"github.com/el-dockerr/ua/internal/target"
)

// buildVersion reads the module version embedded by the Go toolchain
// (§6 "-v | --version"), falling back to "dev" outside a versioned build.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cmd := newRootCmd()
	// pflag reads "-arch" as a cluster of one-letter flags; accept the
	// single-dash long spellings by rewriting them to "--arch" etc.
	args := os.Args[1:]
	for i, a := range args {
		for _, name := range []string{"arch", "sys", "hex"} {
			if a == "-"+name || strings.HasPrefix(a, "-"+name+"=") {
				args[i] = "-" + a
			}
		}
	}
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		archFlag    string
		sysFlag     string
		outFlag     string
		runFlag     bool
		debugFlag   bool
		hexFlag     bool
		versionFlag bool
	)

	cmd := &cobra.Command{
		Use:           "ua <input.ua>",
		Short:         "Assemble a .ua source file for a target architecture",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				fmt.Println("ua version " + buildVersion())
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("ua: exactly one input file is required")
			}
			return run(args[0], archFlag, sysFlag, outFlag, runFlag, debugFlag, hexFlag)
		},
	}

	cmd.Flags().StringVar(&archFlag, "arch", "", "target architecture: mcs51, x86, x86_32 (ia32), arm, arm64 (aarch64), riscv (rv64)")
	cmd.Flags().StringVar(&sysFlag, "sys", "", "target system: baremetal, win32, linux, macos (darwin); default baremetal")
	cmd.Flags().StringVarP(&outFlag, "o", "o", "a.out", "output path")
	cmd.Flags().BoolVar(&runFlag, "run", false, "JIT-execute (x86 only), no output file")
	cmd.Flags().BoolVar(&debugFlag, "debug", false, "echo info/debug log records to stderr")
	cmd.Flags().BoolVar(&hexFlag, "hex", false, "print a hex dump of the assembled code buffer")
	cmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "print version and exit")

	return cmd
}

func run(inputPath, archStr, sysStr, outPath string, jitRun, verbose, hexOut bool) error {
	logger := logging.New(os.Stdout, verbose)

	cfg, err := config.Load("ua.toml")
	if err != nil {
		return fmt.Errorf("ua: loading ua.toml: %w", err)
	}

	if archStr == "" && cfg.Defaults.Arch != "" {
		archStr = cfg.Defaults.Arch
	}
	if archStr == "" {
		return fmt.Errorf("ua: -arch is required")
	}
	arch, err := target.ParseArch(archStr)
	if err != nil {
		return fmt.Errorf("ua: %w", err)
	}

	if sysStr == "" {
		sysStr = cfg.Defaults.Sys
	}
	if sysStr == "" {
		sysStr = string(target.Baremetal)
	}
	sys, err := target.ParseSys(sysStr)
	if err != nil {
		return fmt.Errorf("ua: %w", err)
	}

	if jitRun && arch != target.X86 {
		return fmt.Errorf("ua: --run is only valid with -arch x86")
	}

	res, err := compile.Run(inputPath, compile.Options{
		Arch:           arch,
		Sys:            sys,
		CompilerDir:    cfg.Compiler.CompilerDir,
		ImportRoots:    cfg.Compiler.ImportRoots,
		Logger:         logging.WithKind(logger, "compile"),
		JIT:            jitRun,
		MaxImportDepth: cfg.Compiler.MaxImportDepth,
	})
	if err != nil {
		return err
	}
	code := res.Code.Bytes()

	if hexOut {
		if err := hexdump.Write(os.Stdout, code); err != nil {
			return fmt.Errorf("ua: writing hex dump: %w", err)
		}
	}

	if jitRun {
		ret, err := jit.Run(code)
		if err != nil {
			return fmt.Errorf("ua: %w", err)
		}
		logger.Info("jit finished", "return", ret)
		return nil
	}

	outPath = resolveOutputPath(outPath, arch, sys)

	switch outputMode(arch, sys) {
	case modePE:
		return pe.Write(outPath, arch, sys, code)
	case modeELF:
		return elf.Write(outPath, arch, sys, code)
	case modeMachO:
		return macho.Write(outPath, arch, sys, code)
	default:
		return os.WriteFile(outPath, code, 0o644)
	}
}

type mode int

const (
	modeRaw mode = iota
	modePE
	modeELF
	modeMachO
)

// outputMode implements the arch x sys output-file table from §6.
func outputMode(arch target.Arch, sys target.Sys) mode {
	switch arch {
	case target.MCS51:
		return modeRaw
	case target.X86, target.X8632:
		switch sys {
		case target.Win32:
			return modePE
		case target.Linux:
			return modeELF
		default:
			return modeRaw
		}
	case target.ARM:
		if sys == target.Linux {
			return modeELF
		}
		return modeRaw
	case target.ARM64:
		switch sys {
		case target.Linux:
			return modeELF
		case target.MacOS:
			return modeMachO
		default:
			return modeRaw
		}
	case target.RISCV:
		if sys == target.Linux {
			return modeELF
		}
		return modeRaw
	default:
		return modeRaw
	}
}

// resolveOutputPath rewrites the default "a.out" to a format-
// appropriate extension when the output is a wrapped executable (§6).
func resolveOutputPath(outPath string, arch target.Arch, sys target.Sys) string {
	if outPath != "a.out" {
		return outPath
	}
	base := strings.TrimSuffix(outPath, filepath.Ext(outPath))
	switch outputMode(arch, sys) {
	case modePE:
		return base + ".exe"
	case modeELF:
		return base + ".elf"
	case modeMachO:
		return base + ".macho"
	default:
		return outPath
	}
}
