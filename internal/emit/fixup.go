package emit

import "fmt"

// WriteLE32 patches a 4-byte little-endian signed displacement at
// offset — the x86-64/IA-32 fixup width (§4.4 pass 3).
func WriteLE32(st *State, offset int, v int32) {
	var b [4]byte
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
	st.Buf.WriteAt(offset, b[:])
}

// WriteLE16 patches a 2-byte little-endian value at offset.
func WriteLE16(st *State, offset int, v uint16) {
	b := [2]byte{byte(v), byte(v >> 8)}
	st.Buf.WriteAt(offset, b[:])
}

// OrBitsLE32 reads the 4-byte little-endian word already at offset (the
// emitted instruction template, with the displacement/immediate field
// zeroed), ORs in bits, and writes it back — the pattern ARM/ARM64/
// RISC-V fixups use since the displacement occupies only part of the
// 32-bit instruction word.
func OrBitsLE32(st *State, offset int, bits uint32) {
	cur := uint32(st.Buf.ByteAt(offset)) |
		uint32(st.Buf.ByteAt(offset+1))<<8 |
		uint32(st.Buf.ByteAt(offset+2))<<16 |
		uint32(st.Buf.ByteAt(offset+3))<<24
	cur |= bits
	WriteLE32(st, offset, int32(cur))
}

// CheckRange returns an error if v does not fit in a signed field of
// the given bit width — used by ARM/RISC-V/8051 range-checked fixups.
func CheckRange(v int64, bits uint, what string) error {
	lo := -(int64(1) << (bits - 1))
	hi := (int64(1) << (bits - 1)) - 1
	if v < lo || v > hi {
		return fmt.Errorf("%s displacement %d out of range for %d-bit signed field", what, v, bits)
	}
	return nil
}
