package fio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/storagebench/pkg/engine"
)

var cfg = engine.RunConfig{
	Path:           "/mnt/nvme/area.bin",
	TestType:       engine.RandRead,
	FileSizeBytes:  2048 << 20,
	BlockSizeBytes: 4096,
	QueueDepth:     32,
	DurationSec:    20,
	WarmupSec:      3,
	UseDirect:      true,
}

func TestGenerateJob(t *testing.T) {
	job := GenerateJob(cfg, engine.KindUring)
	for _, line := range []string{
		"ioengine=io_uring",
		"filename=/mnt/nvme/area.bin",
		"size=2147483648",
		"bs=4096",
		"direct=1",
		"rw=randread",
		"numjobs=1",
		"iodepth=32",
		"ramp_time=3s",
		"runtime=20s",
		"[storagebench]",
	} {
		assert.Contains(t, job, line+"\n")
	}
	assert.True(t, strings.HasPrefix(job, "[global]\n"))
}

func TestGenerateJobSync(t *testing.T) {
	c := cfg
	c.TestType = engine.SeqWrite
	c.UseDirect = false
	c.WarmupSec = 0
	job := GenerateJob(c, engine.KindSync)
	assert.Contains(t, job, "ioengine=psync\n")
	assert.Contains(t, job, "numjobs=32\n")
	assert.Contains(t, job, "iodepth=1\n")
	assert.Contains(t, job, "rw=write\n")
	assert.Contains(t, job, "direct=0\n")
	assert.NotContains(t, job, "ramp_time")
}

const sample = `{
  "fio version": "fio-3.36",
  "jobs": [
    {
      "jobname": "storagebench",
      "job options": {"ioengine": "io_uring", "rw": "randread"},
      "read": {
        "io_bytes": 8192000000,
        "bw_bytes": 409600000,
        "iops": 100000.0,
        "total_ios": 2000000,
        "clat_ns": {
          "max": 2500000.0,
          "mean": 310000.0,
          "percentile": {"50.000000": 300000, "99.000000": 720000}
        }
      },
      "write": {"io_bytes": 0, "bw_bytes": 0, "iops": 0, "total_ios": 0, "clat_ns": {"max": 0, "mean": 0}}
    }
  ]
}`

func TestParseOutput(t *testing.T) {
	res, err := ParseOutput([]byte(sample), cfg)
	require.NoError(t, err)

	assert.Equal(t, "fio/io_uring", res.EngineLabel)
	assert.Equal(t, int64(2000000), res.OpsCompleted)
	assert.Equal(t, int64(8192000000), res.BytesCompleted)
	assert.InDelta(t, 409.6, res.ThroughputMBps, 1e-9)
	assert.InDelta(t, 100000, res.IOPS, 1e-9)
	assert.InDelta(t, 310, res.AvgLatencyUs, 1e-9)
	assert.InDelta(t, 720, res.P99LatencyUs, 1e-9)
	assert.InDelta(t, 2500, res.MaxLatencyUs, 1e-9)
	assert.Empty(t, res.Series)
}

func TestParseOutputWriteSide(t *testing.T) {
	c := cfg
	c.TestType = engine.RandWrite
	res, err := ParseOutput([]byte(sample), c)
	require.NoError(t, err)
	assert.Zero(t, res.OpsCompleted)
	assert.Zero(t, res.AvgLatencyUs)
}

func TestParseOutputErrors(t *testing.T) {
	_, err := ParseOutput([]byte("not json"), cfg)
	assert.Error(t, err)

	_, err = ParseOutput([]byte(`{"jobs": []}`), cfg)
	assert.Error(t, err)
}
