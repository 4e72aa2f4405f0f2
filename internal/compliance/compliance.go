// Package compliance implements the static opcode/architecture/system
// compliance gate from §4.3: every opcode declares the architectures
// and systems it is legal on, and the gate scans an entire program
// once, aggregating every violation before aborting.
package compliance

import (
	"github.com/el-dockerr/ua/internal/diag"
	"github.com/el-dockerr/ua/internal/ir"
	"github.com/el-dockerr/ua/internal/target"
)

type archSet map[target.Arch]bool
type sysSet map[target.Sys]bool

func allArches() archSet {
	return archSet{target.MCS51: true, target.X86: true, target.X8632: true, target.ARM: true, target.ARM64: true, target.RISCV: true}
}

func allSystems() sysSet {
	return sysSet{target.Baremetal: true, target.Win32: true, target.Linux: true, target.MacOS: true}
}

func only(arches ...target.Arch) archSet {
	s := make(archSet, len(arches))
	for _, a := range arches {
		s[a] = true
	}
	return s
}

// rule pairs one opcode with its permitted architecture/system sets.
type rule struct {
	arches archSet
	sys    sysSet
}

// table is the closed opcode → {architectures} × {systems} compliance
// map (§4.3). Universal MVIS opcodes get every architecture/system;
// architecture-specific opcodes narrow the architecture set;
// PUSHA/POPA narrow to 32-bit x86 specifically.
var table = map[ir.Opcode]rule{}

func universal(ops ...ir.Opcode) {
	for _, op := range ops {
		table[op] = rule{arches: allArches(), sys: allSystems()}
	}
}

func archOnly(arches archSet, ops ...ir.Opcode) {
	for _, op := range ops {
		table[op] = rule{arches: arches, sys: allSystems()}
	}
}

func init() {
	universal(
		ir.Mov, ir.Ldi, ir.Load, ir.Store, ir.Loadb, ir.Storeb, ir.Lds,
		ir.Add, ir.Sub, ir.Mul, ir.Div, ir.Inc, ir.Dec,
		ir.And, ir.Or, ir.Xor, ir.Not, ir.Shl, ir.Shr,
		ir.Cmp, ir.Jmp, ir.Jz, ir.Jnz, ir.Jl, ir.Jg, ir.Call, ir.Ret,
		ir.Push, ir.Pop,
		ir.Int, ir.Sys, ir.Hlt, ir.Nop,
		ir.Var, ir.Set, ir.Get, ir.Buffer, ir.Org, ir.Bswap,
	)

	archOnly(only(target.X86, target.X8632), ir.Cpuid, ir.Rdtsc)
	archOnly(only(target.MCS51), ir.Djnz, ir.Cjne, ir.Setb, ir.Clr, ir.Reti)
	archOnly(only(target.ARM, target.ARM64), ir.Wfi, ir.Dmb)
	archOnly(only(target.RISCV), ir.Ebreak, ir.Fence)
	archOnly(only(target.X8632), ir.Pusha, ir.Popa)
}

// permittedArches renders a rule's architecture set for diagnostics, in
// a fixed, deterministic order.
func permittedArches(s archSet) string {
	order := []target.Arch{target.MCS51, target.X86, target.X8632, target.ARM, target.ARM64, target.RISCV}
	out := ""
	for _, a := range order {
		if s[a] {
			if out != "" {
				out += ","
			}
			out += string(a)
		}
	}
	return out
}

// Check scans prog once against the chosen target, returning an
// aggregate of every violation found (nil if none). §4.3: "the gate
// scans the IR once; each violation emits a diagnostic ... assembly
// aborts if any violation is found."
func Check(file string, prog ir.Program, arch target.Arch, sys target.Sys) *diag.Aggregate {
	agg := &diag.Aggregate{}

	for _, instr := range prog.Instructions {
		if instr.IsDef {
			continue
		}
		r, ok := table[instr.Op]
		if !ok {
			agg.Add(diag.New(diag.KindCompliance, file, instr.Loc.Line, 0,
				"opcode has no compliance entry: "+instr.Op.String()))
			continue
		}
		if !r.arches[arch] {
			d := diag.New(diag.KindCompliance, file, instr.Loc.Line, 0,
				instr.Op.String()+" is not supported on architecture "+string(arch))
			d.Context = permittedArches(r.arches)
			agg.Add(d)
		}
		if !r.sys[sys] {
			d := diag.New(diag.KindCompliance, file, instr.Loc.Line, 0,
				instr.Op.String()+" is not supported on system "+string(sys))
			agg.Add(d)
		}
	}

	if agg.Len() == 0 {
		return nil
	}
	return agg
}
