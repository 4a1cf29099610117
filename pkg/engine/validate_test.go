package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runningwild/storagebench/pkg/stats"
)

func TestValidate(t *testing.T) {
	good := RunConfig{
		Path:           "/tmp/area",
		TestType:       RandRead,
		FileSizeBytes:  1 << 20,
		BlockSizeBytes: 4096,
		QueueDepth:     8,
		DurationSec:    10,
		WarmupSec:      2,
		UseDirect:      true,
	}
	assert.NoError(t, good.Validate())

	tests := []struct {
		name string
		mod  func(c *RunConfig)
	}{
		{"empty path", func(c *RunConfig) { c.Path = "" }},
		{"bad test type", func(c *RunConfig) { c.TestType = "SEQ_TRIM" }},
		{"zero block", func(c *RunConfig) { c.BlockSizeBytes = 0 }},
		{"unaligned direct block", func(c *RunConfig) { c.BlockSizeBytes = 1000 }},
		{"file smaller than block", func(c *RunConfig) { c.FileSizeBytes = 2048 }},
		{"zero queue depth", func(c *RunConfig) { c.QueueDepth = 0 }},
		{"zero duration", func(c *RunConfig) { c.DurationSec = 0 }},
		{"negative warmup", func(c *RunConfig) { c.WarmupSec = -1 }},
		{"queue deeper than area", func(c *RunConfig) { c.QueueDepth = 257 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := good
			tt.mod(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}

	// Buffered I/O has no alignment requirement.
	c := good
	c.UseDirect = false
	c.BlockSizeBytes = 1000
	assert.NoError(t, c.Validate())
}

func TestParseTestType(t *testing.T) {
	for in, want := range map[string]TestType{
		"SEQ_READ": SeqRead, "seq_write": SeqWrite, "randread": RandRead, "randwrite": RandWrite, "write": SeqWrite,
	} {
		got, err := ParseTestType(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseTestType("trim")
	assert.Error(t, err)
}

func TestAggregateZeroOps(t *testing.T) {
	res := aggregate(aggInput{
		blockSize:   4096,
		durationSec: 3,
		series:      []stats.Point{{Second: 0}, {Second: 1}, {Second: 2}},
		label:       "sync/buffered",
	})
	assert.Zero(t, res.ThroughputMBps)
	assert.Zero(t, res.IOPS)
	assert.Zero(t, res.AvgLatencyUs)
	assert.Zero(t, res.P99LatencyUs)
	assert.Zero(t, res.MaxLatencyUs)
	assert.Len(t, res.Series, 3)
	assert.Equal(t, "sync/buffered", res.EngineLabel)
}

func TestAggregateRates(t *testing.T) {
	res := aggregate(aggInput{
		blockSize:   1 << 20,
		durationSec: 2,
		ops:         500,
		latency:     stats.LatencySummary{Count: 500, AvgUs: 100, P99Us: 50, MaxUs: 400},
		series:      []stats.Point{{Second: 0, Bytes: 250 << 20}, {Second: 1, Bytes: 250 << 20}},
	})
	assert.Equal(t, int64(500<<20), res.BytesCompleted)
	assert.InDelta(t, float64(500<<20)/1e6/2, res.ThroughputMBps, 1e-9)
	assert.InDelta(t, 250.0, res.IOPS, 1e-9)
	// p99 below the mean is pulled up to it.
	assert.Equal(t, 100.0, res.P99LatencyUs)
	assert.Equal(t, RunPoint{SecondIndex: 1, ThroughputMBps: float64(250<<20) / 1e6}, res.Series[1])
}

func TestAggregatePartialUsesElapsed(t *testing.T) {
	res := aggregate(aggInput{
		blockSize:   4096,
		durationSec: 10,
		ops:         1000,
		latency:     stats.LatencySummary{Count: 1000, AvgUs: 10, P99Us: 20, MaxUs: 30},
		partial:     true,
		elapsed:     2 * time.Second,
	})
	assert.InDelta(t, 500.0, res.IOPS, 1e-9)
	assert.Empty(t, res.Series)
}
