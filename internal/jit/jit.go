// Package jit executes an assembled x86-64 code buffer directly on the
// host CPU (§5 "JIT execution"): map a page RWX, copy the bytes in,
// call them as a Go function value, read back the return value, and
// unmap. `internal/emit/x86`'s JIT-mode lowers HLT to RET so the copied
// code always falls through to a return rather than halting the host.
package jit

import (
	"fmt"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// nativeFunc matches §5's required JIT signature: "() -> 64-bit signed
// integer", with the return value read from the host's first return
// register (RAX on amd64, the ABI both Go and the emitted code use).
type nativeFunc func() int64

// Run maps code into an anonymous RWX page, invokes it as a function
// taking no arguments and returning int64, and returns that value
// (Scenario A's JIT return value of 15, for instance).
func Run(code []byte) (int64, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("jit: empty code buffer")
	}
	if code[len(code)-1] != 0xC3 {
		return 0, fmt.Errorf("jit: code buffer does not end in RET (0xC3); HLT was not lowered for JIT")
	}

	region, err := mmap.MapRegion(nil, len(code), mmap.RDWR|mmap.EXEC, mmap.ANON, 0)
	if err != nil {
		return 0, fmt.Errorf("jit: mmap anonymous RWX region: %w", err)
	}
	defer region.Unmap()

	copy(region, code)

	// A Go func value is itself a pointer to a word holding the code
	// address, not the code address directly — codeAddr supplies that
	// word so fn's bit pattern points at it rather than at region[0].
	codeAddr := uintptr(unsafe.Pointer(&region[0]))
	var fn nativeFunc
	funcPtr := (*uintptr)(unsafe.Pointer(&fn))
	*funcPtr = uintptr(unsafe.Pointer(&codeAddr))

	return fn(), nil
}
