// Package fio translates runs to and from fio, so a result can be checked
// against the reference tool on the same device.
package fio

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/runningwild/storagebench/pkg/engine"
)

// GenerateJob creates a fio job file that issues the same workload as cfg
// with the given completion mechanism.
func GenerateJob(cfg engine.RunConfig, kind engine.Kind) string {
	var sb strings.Builder

	sb.WriteString("[global]\n")

	switch kind {
	case engine.KindSync:
		// One thread per outstanding request, like the sync engine.
		sb.WriteString("ioengine=psync\n")
	case engine.KindLibAIO:
		sb.WriteString("ioengine=libaio\n")
	default:
		sb.WriteString("ioengine=io_uring\n")
	}

	sb.WriteString(fmt.Sprintf("filename=%s\n", cfg.Path))
	sb.WriteString(fmt.Sprintf("size=%d\n", cfg.FileSizeBytes))
	sb.WriteString(fmt.Sprintf("bs=%d\n", cfg.BlockSizeBytes))

	if cfg.UseDirect {
		sb.WriteString("direct=1\n")
	} else {
		sb.WriteString("direct=0\n")
	}

	switch cfg.TestType {
	case engine.SeqRead:
		sb.WriteString("rw=read\n")
	case engine.SeqWrite:
		sb.WriteString("rw=write\n")
	case engine.RandRead:
		sb.WriteString("rw=randread\n")
	case engine.RandWrite:
		sb.WriteString("rw=randwrite\n")
	}

	if kind == engine.KindSync {
		sb.WriteString(fmt.Sprintf("numjobs=%d\n", cfg.QueueDepth))
		sb.WriteString("iodepth=1\n")
		sb.WriteString("group_reporting\n")
	} else {
		sb.WriteString("numjobs=1\n")
		sb.WriteString(fmt.Sprintf("iodepth=%d\n", cfg.QueueDepth))
	}

	sb.WriteString("time_based\n")
	if cfg.WarmupSec > 0 {
		sb.WriteString(fmt.Sprintf("ramp_time=%ds\n", cfg.WarmupSec))
	}
	sb.WriteString(fmt.Sprintf("runtime=%ds\n", cfg.DurationSec))

	sb.WriteString("\n[storagebench]\n")
	return sb.String()
}

// Structures for parsing fio JSON output
type Output struct {
	Jobs        []Job `json:"jobs"`
	ClientStats []Job `json:"client_stats"`
}

type Job struct {
	Options map[string]string `json:"job options"`
	Read    Stats             `json:"read"`
	Write   Stats             `json:"write"`
}

type Stats struct {
	IOBytes  int64    `json:"io_bytes"`
	BWBytes  float64  `json:"bw_bytes"` // bytes per second
	IOPS     float64  `json:"iops"`
	TotalIOs int64    `json:"total_ios"`
	ClatNs   LatStats `json:"clat_ns"` // completion latency
}

type LatStats struct {
	Max        float64           `json:"max"`
	Mean       float64           `json:"mean"`
	Percentile map[string]uint64 `json:"percentile"` // e.g. "99.000000": 1234
}

// ParseOutput converts fio's --output-format=json into a RunResult for the
// direction cfg measures. fio reports no per-second series in its summary,
// so Series is empty.
func ParseOutput(jsonData []byte, cfg engine.RunConfig) (*engine.RunResult, error) {
	var out Output
	if err := json.Unmarshal(jsonData, &out); err != nil {
		return nil, err
	}

	jobs := out.Jobs
	if len(jobs) == 0 {
		jobs = out.ClientStats
	}
	if len(jobs) == 0 {
		return nil, errors.New("fio output has no jobs")
	}

	res := &engine.RunResult{
		EngineLabel: "fio",
		Series:      []engine.RunPoint{},
	}

	var bw, weightedMean, weightedP99 float64
	for _, j := range jobs {
		s := j.Read
		if cfg.TestType.IsWrite() {
			s = j.Write
		}
		res.OpsCompleted += s.TotalIOs
		res.BytesCompleted += s.IOBytes
		res.IOPS += s.IOPS
		bw += s.BWBytes

		// Latencies from several job groups are weighted by their share of
		// operations.
		n := float64(s.TotalIOs)
		weightedMean += s.ClatNs.Mean * n
		weightedP99 += float64(s.ClatNs.Percentile["99.000000"]) * n
		res.MaxLatencyUs = math.Max(res.MaxLatencyUs, s.ClatNs.Max/1e3)

		if res.EngineLabel == "fio" {
			if e := j.Options["ioengine"]; e != "" {
				res.EngineLabel = "fio/" + e
			}
		}
	}

	res.ThroughputMBps = bw / 1e6
	if res.OpsCompleted > 0 {
		res.AvgLatencyUs = weightedMean / float64(res.OpsCompleted) / 1e3
		res.P99LatencyUs = weightedP99 / float64(res.OpsCompleted) / 1e3
		res.P99LatencyUs = math.Min(math.Max(res.P99LatencyUs, res.AvgLatencyUs), res.MaxLatencyUs)
	}
	return res, nil
}
