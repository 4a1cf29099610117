package stats

import (
	"sync"
	"time"
)

// Point is one second of the throughput series.
type Point struct {
	Second int
	Bytes  int64
}

// MBps converts the bucket to decimal megabytes per second.
func (p Point) MBps() float64 {
	return float64(p.Bytes) / 1e6
}

// Sampler buckets completed bytes by the whole second, relative to phase
// start, in which each completion happened.
type Sampler struct {
	mu      sync.Mutex
	buckets []int64
}

// NewSampler sizes the series for a phase of the given number of seconds.
func NewSampler(seconds int) *Sampler {
	if seconds < 1 {
		seconds = 1
	}
	return &Sampler{buckets: make([]int64, seconds)}
}

// Record adds bytes completed at elapsed time since phase start.
// Completions landing past the last second (in-flight requests drained
// after the time budget) are folded into the last bucket.
func (s *Sampler) Record(elapsed time.Duration, bytes int64) {
	idx := int(elapsed / time.Second)
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.buckets) {
		idx = len(s.buckets) - 1
	}
	s.buckets[idx] += bytes
}

// Bucket returns the bytes recorded for one second.
func (s *Sampler) Bucket(second int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if second < 0 || second >= len(s.buckets) {
		return 0
	}
	return s.buckets[second]
}

// Series returns the first n seconds as a dense, ordered sequence. Seconds
// without completions appear with zero bytes. n is clamped to the
// sampler's size.
func (s *Sampler) Series(n int) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.buckets) {
		n = len(s.buckets)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		out[i] = Point{Second: i, Bytes: s.buckets[i]}
	}
	return out
}
