// Package codebuf implements the growable byte buffer shared by every
// code emitter (§4.5). It intentionally does not reuse bytes.Buffer:
// fixup patching needs an unchecked indexed write, and pass 1 needs to
// observe capacity directly, neither of which bytes.Buffer exposes.
package codebuf

const initialCapacity = 256

// Buffer owns a byte array, its logical size, and capacity. Append
// doubles capacity on overflow, mirroring the teacher's fixed-size stack
// sized up into an actually-growable region per §4.5.
type Buffer struct {
	data []byte
	size int
}

// New returns an empty buffer with the spec's initial capacity.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, initialCapacity)}
}

// Len is the logical size in bytes.
func (b *Buffer) Len() int { return b.size }

// Cap is the current backing capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns the logical byte slice (size-bounded, not cap-bounded).
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

func (b *Buffer) grow(need int) {
	if b.size+need <= cap(b.data) {
		return
	}
	newCap := cap(b.data)
	if newCap == 0 {
		newCap = initialCapacity
	}
	for newCap < b.size+need {
		newCap *= 2
	}
	grown := make([]byte, b.size, newCap)
	copy(grown, b.data[:b.size])
	b.data = grown
}

// AppendByte appends a single byte, growing (doubling) if at capacity.
func (b *Buffer) AppendByte(v byte) {
	b.grow(1)
	b.data = b.data[:b.size+1]
	b.data[b.size] = v
	b.size++
}

// AppendBytes appends a byte slice.
func (b *Buffer) AppendBytes(v []byte) {
	b.grow(len(v))
	b.data = b.data[:b.size+len(v)]
	copy(b.data[b.size:], v)
	b.size += len(v)
}

// WriteAt is the unchecked indexed write used by fixup patching (§4.4
// pass 3). The caller must have already validated offset+len(v) <= Len().
func (b *Buffer) WriteAt(offset int, v []byte) {
	copy(b.data[offset:offset+len(v)], v)
}

// ByteAt reads a single byte, used by fixup template OR-in logic.
func (b *Buffer) ByteAt(offset int) byte {
	return b.data[offset]
}
