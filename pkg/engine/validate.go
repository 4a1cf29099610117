package engine

import (
	"github.com/runningwild/storagebench/pkg/workload"
)

// DirectAlignment is the block alignment required for cache-bypassing I/O.
// 512 is the smallest logical sector size in use; devices with 4 KiB
// sectors reject smaller requests at open-probe time and the run falls
// back to buffered I/O.
const DirectAlignment = 512

// Validate checks the config for internal consistency and returns the
// first violated invariant wrapped in ErrInvalidConfig. It performs no I/O.
func (c RunConfig) Validate() error {
	if c.Path == "" {
		return invalidf("path is required")
	}
	if !c.TestType.Valid() {
		return invalidf("unknown test type %q", c.TestType)
	}
	if c.BlockSizeBytes <= 0 {
		return invalidf("block size must be positive, got %d", c.BlockSizeBytes)
	}
	if c.UseDirect && c.BlockSizeBytes%DirectAlignment != 0 {
		return invalidf("block size %d is not a multiple of %d, required for direct I/O", c.BlockSizeBytes, DirectAlignment)
	}
	if c.FileSizeBytes < int64(c.BlockSizeBytes) {
		return invalidf("file size %d is smaller than block size %d", c.FileSizeBytes, c.BlockSizeBytes)
	}
	if c.QueueDepth < 1 {
		return invalidf("queue depth must be at least 1, got %d", c.QueueDepth)
	}
	if c.DurationSec <= 0 {
		return invalidf("duration must be positive, got %ds", c.DurationSec)
	}
	if c.WarmupSec < 0 {
		return invalidf("warmup must not be negative, got %ds", c.WarmupSec)
	}
	blocks := workload.UsableSize(c.FileSizeBytes, int64(c.BlockSizeBytes)) / int64(c.BlockSizeBytes)
	if blocks < int64(c.QueueDepth) {
		return invalidf("file area holds %d blocks, fewer than queue depth %d", blocks, c.QueueDepth)
	}
	return nil
}
