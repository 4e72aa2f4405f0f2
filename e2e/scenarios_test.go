package e2e

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/el-dockerr/ua/internal/compile"
	"github.com/el-dockerr/ua/internal/jit"
	"github.com/el-dockerr/ua/internal/target"
)

func writeFile(dir, name, source string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(source), 0o644)).To(Succeed())
	return path
}

var _ = Describe("end-to-end scenarios", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("Scenario A: x86-64 JIT", func() {
		It("emits the expected bytes and returns 15 from JIT execution", func() {
			path := writeFile(dir, "a.ua", "LDI R0,10\nLDI R1,5\nADD R0,R1\nHLT\n")

			res, err := compile.Run(path, compile.Options{Arch: target.X86, Sys: target.Baremetal, JIT: true})
			Expect(err).NotTo(HaveOccurred())

			want := []byte{
				0x48, 0xC7, 0xC0, 0x0A, 0x00, 0x00, 0x00,
				0x48, 0xC7, 0xC1, 0x05, 0x00, 0x00, 0x00,
				0x48, 0x01, 0xC8,
				0xC3,
			}
			Expect(res.Code.Bytes()).To(Equal(want))

			ret, err := jit.Run(res.Code.Bytes())
			Expect(err).NotTo(HaveOccurred())
			Expect(ret).To(Equal(int64(15)))
		})
	})

	Describe("Scenario B: 8051 branch and halt", func() {
		It("emits LJMP-to-self and a self-looping HLT", func() {
			path := writeFile(dir, "b.ua", "start:\nNOP\nJMP start\nHLT\n")

			res, err := compile.Run(path, compile.Options{Arch: target.MCS51, Sys: target.Baremetal})
			Expect(err).NotTo(HaveOccurred())

			want := []byte{0x00, 0x02, 0x00, 0x00, 0x80, 0xFE}
			Expect(res.Code.Bytes()).To(Equal(want))
		})
	})

	Describe("Scenario C: ARM wide immediate", func() {
		It("splits a 32-bit immediate into MOVW/MOVT", func() {
			path := writeFile(dir, "c.ua", "LDI R0, 0x12345678\n")

			res, err := compile.Run(path, compile.Options{Arch: target.ARM, Sys: target.Baremetal})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code.Bytes()).To(HaveLen(8))
		})

		It("emits only MOVW for an immediate that fits in 16 bits", func() {
			path := writeFile(dir, "c2.ua", "LDI R0, 5\n")

			res, err := compile.Run(path, compile.Options{Arch: target.ARM, Sys: target.Baremetal})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code.Bytes()).To(HaveLen(4))
		})
	})

	Describe("Scenario D: RISC-V branch range", func() {
		It("fails codegen when a conditional branch displacement exceeds the B-type range", func() {
			var src string
			src += "JZ far\n"
			for i := 0; i < 1200; i++ {
				src += "NOP\n"
			}
			src += "far:\nHLT\n"
			path := writeFile(dir, "d.ua", src)

			_, err := compile.Run(path, compile.Options{Arch: target.RISCV, Sys: target.Baremetal})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Scenario E: self-importing preprocessor input", func() {
		It("produces the same output as if the @IMPORT were absent after first inclusion", func() {
			withImport := writeFile(dir, "e.ua", "@IMPORT e.ua\nLDI R0,1\nHLT\n")
			withoutImport := writeFile(dir, "e_plain.ua", "LDI R0,1\nHLT\n")

			resWith, err := compile.Run(withImport, compile.Options{Arch: target.X86, Sys: target.Baremetal})
			Expect(err).NotTo(HaveOccurred())

			resWithout, err := compile.Run(withoutImport, compile.Options{Arch: target.X86, Sys: target.Baremetal})
			Expect(err).NotTo(HaveOccurred())

			Expect(resWith.Code.Bytes()).To(Equal(resWithout.Code.Bytes()))
		})
	})

	Describe("Scenario F: import namespace resolution", func() {
		It("namespaces the imported file's own label references, leaving a preexisting dotted reference untouched", func() {
			writeFile(dir, "math.ua", "add:\nINC R0\nJMP add\n")
			main := writeFile(dir, "f.ua",
				"other.add:\nRET\n@IMPORT math.ua\nCALL math.add\nCALL other.add\nHLT\n")

			res, err := compile.Run(main, compile.Options{Arch: target.X86, Sys: target.Baremetal})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Code.Bytes()).NotTo(BeEmpty())
		})
	})
})
