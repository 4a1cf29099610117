package stats

import (
	"math"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Tracked range for the percentile histogram, in microseconds.
	maxTrackedUs = int64(time.Hour / time.Microsecond)
	sigFigs      = 3
)

// LatencySummary is the frozen view of a LatencyRecorder.
type LatencySummary struct {
	Count int64
	AvgUs float64
	P99Us float64
	MaxUs float64
}

// LatencyRecorder accumulates per-operation latencies. Average and maximum
// are exact; the 99th percentile comes from an HDR histogram, so memory
// stays fixed no matter how many operations a run completes.
//
// Recording is append-only until Freeze; later samples are dropped.
type LatencyRecorder struct {
	mu      sync.Mutex
	hist    *hdrhistogram.Histogram
	count   int64
	sumNs   int64
	maxNs   int64
	frozen  bool
	dropped int64
}

func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{
		hist: hdrhistogram.New(1, maxTrackedUs, sigFigs),
	}
}

// Record adds one sample. Negative durations are ignored.
func (r *LatencyRecorder) Record(d time.Duration) {
	if d < 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		r.dropped++
		return
	}

	us := d.Microseconds()
	if us > maxTrackedUs {
		us = maxTrackedUs
	}
	_ = r.hist.RecordValue(us)

	r.count++
	r.sumNs += int64(d)
	if int64(d) > r.maxNs {
		r.maxNs = int64(d)
	}
}

// Count returns the number of accepted samples.
func (r *LatencyRecorder) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped returns the number of samples offered after Freeze.
func (r *LatencyRecorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Freeze stops accepting samples and returns the summary. It is safe to
// call more than once.
func (r *LatencyRecorder) Freeze() LatencySummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return r.summaryLocked()
}

// Snapshot returns the current summary without freezing.
func (r *LatencyRecorder) Snapshot() LatencySummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

func (r *LatencyRecorder) summaryLocked() LatencySummary {
	if r.count == 0 {
		return LatencySummary{}
	}
	avg := float64(r.sumNs) / float64(r.count) / 1e3
	max := float64(r.maxNs) / 1e3

	// The histogram reports bucket-equivalent values, which can land a
	// little above the exact max or below a mean pulled up by a few
	// outliers. Keep max >= p99 >= avg.
	p99 := float64(r.hist.ValueAtQuantile(99))
	p99 = math.Min(math.Max(p99, avg), max)

	return LatencySummary{
		Count: r.count,
		AvgUs: avg,
		P99Us: p99,
		MaxUs: max,
	}
}
