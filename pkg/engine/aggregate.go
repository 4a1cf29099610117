package engine

import (
	"time"

	"github.com/runningwild/storagebench/pkg/stats"
)

// aggInput is everything the measurement phase left behind.
type aggInput struct {
	blockSize   int
	durationSec int
	ops         int64
	latency     stats.LatencySummary
	series      []stats.Point
	label       string
	note        string

	// A partial run divides by the time it actually measured.
	partial bool
	elapsed time.Duration
}

// aggregate turns the measurement accumulators into a RunResult.
// Throughput and IOPS divide by the configured duration, not wall time, so
// requests drained after the deadline still count against the budget.
func aggregate(in aggInput) RunResult {
	res := RunResult{
		OpsCompleted:   in.ops,
		BytesCompleted: in.ops * int64(in.blockSize),
		EngineLabel:    in.label,
		Note:           in.note,
		Series:         make([]RunPoint, len(in.series)),
	}
	for i, p := range in.series {
		res.Series[i] = toRunPoint(p)
	}
	if in.ops == 0 {
		return res
	}

	secs := float64(in.durationSec)
	if in.partial {
		secs = in.elapsed.Seconds()
	}
	if secs > 0 {
		res.ThroughputMBps = float64(res.BytesCompleted) / 1e6 / secs
		res.IOPS = float64(in.ops) / secs
	}

	res.AvgLatencyUs = in.latency.AvgUs
	res.MaxLatencyUs = in.latency.MaxUs
	res.P99LatencyUs = in.latency.P99Us
	if res.P99LatencyUs < res.AvgLatencyUs {
		res.P99LatencyUs = res.AvgLatencyUs
	}
	if res.P99LatencyUs > res.MaxLatencyUs {
		res.P99LatencyUs = res.MaxLatencyUs
	}
	return res
}

func toRunPoint(p stats.Point) RunPoint {
	return RunPoint{SecondIndex: p.Second, ThroughputMBps: p.MBps()}
}
