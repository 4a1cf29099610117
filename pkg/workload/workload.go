// Package workload produces the offsets a benchmark run issues against its file area.
package workload

import (
	"fmt"
	"math/rand"
)

// Pattern selects how offsets are laid out across the area.
type Pattern int

const (
	Sequential Pattern = iota
	Random
)

func (p Pattern) String() string {
	switch p {
	case Sequential:
		return "sequential"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
}

// Generator hands out the offset for the N-th request of a run.
// It never looks at completion results; its only state is the request
// counter and, in random mode, the PRNG.
type Generator struct {
	pattern   Pattern
	blockSize int64
	usable    int64
	blocks    int64
	n         int64
	rnd       *rand.Rand
}

// UsableSize rounds fileSize down to a whole number of blocks.
func UsableSize(fileSize, blockSize int64) int64 {
	if blockSize <= 0 {
		return 0
	}
	return (fileSize / blockSize) * blockSize
}

// New builds a generator over [0, UsableSize(fileSize, blockSize)).
// The seed is only consulted for Random.
func New(pattern Pattern, fileSize, blockSize, seed int64) (*Generator, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size: %d", blockSize)
	}
	usable := UsableSize(fileSize, blockSize)
	if usable == 0 {
		return nil, fmt.Errorf("file size %d smaller than block size %d", fileSize, blockSize)
	}
	g := &Generator{
		pattern:   pattern,
		blockSize: blockSize,
		usable:    usable,
		blocks:    usable / blockSize,
	}
	if pattern == Random {
		g.rnd = rand.New(rand.NewSource(seed))
	}
	return g, nil
}

// Next returns the offset for the next request and advances the counter.
func (g *Generator) Next() int64 {
	n := g.n
	g.n++
	if g.pattern == Random {
		return g.rnd.Int63n(g.blocks) * g.blockSize
	}
	return (n * g.blockSize) % g.usable
}

// Issued reports how many offsets have been handed out.
func (g *Generator) Issued() int64 { return g.n }

// Blocks is the number of distinct block-aligned positions in the area.
func (g *Generator) Blocks() int64 { return g.blocks }
