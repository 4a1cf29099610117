//go:build unix

package filearea

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Buffers is one page-aligned allocation carved into equal slots, one per
// outstanding request. Page alignment satisfies O_DIRECT's buffer rule.
type Buffers struct {
	mem  []byte
	size int
}

func AllocBuffers(count, size int) (*Buffers, error) {
	mem, err := unix.Mmap(-1, 0, count*size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate aligned memory: %w", err)
	}
	return &Buffers{mem: mem, size: size}, nil
}

func (b *Buffers) Slot(i int) []byte {
	return b.mem[i*b.size : (i+1)*b.size : (i+1)*b.size]
}

func (b *Buffers) Len() int { return len(b.mem) / b.size }

func (b *Buffers) Free() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}
