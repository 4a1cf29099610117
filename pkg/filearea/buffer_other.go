//go:build !unix

package filearea

// Buffers falls back to heap memory where mmap is unavailable. Direct I/O
// is never used on these platforms, so alignment does not matter.
type Buffers struct {
	mem  []byte
	size int
}

func AllocBuffers(count, size int) (*Buffers, error) {
	return &Buffers{mem: make([]byte, count*size), size: size}, nil
}

func (b *Buffers) Slot(i int) []byte {
	return b.mem[i*b.size : (i+1)*b.size : (i+1)*b.size]
}

func (b *Buffers) Len() int { return len(b.mem) / b.size }

func (b *Buffers) Free() error {
	b.mem = nil
	return nil
}
