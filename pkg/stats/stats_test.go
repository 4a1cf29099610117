package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyRecorderEmpty(t *testing.T) {
	r := NewLatencyRecorder()
	assert.Equal(t, LatencySummary{}, r.Freeze())
}

func TestLatencyRecorderSingleSample(t *testing.T) {
	r := NewLatencyRecorder()
	r.Record(250 * time.Microsecond)
	s := r.Freeze()
	assert.Equal(t, int64(1), s.Count)
	assert.InDelta(t, 250, s.AvgUs, 0.001)
	assert.InDelta(t, 250, s.P99Us, 0.5)
	assert.InDelta(t, 250, s.MaxUs, 0.001)
}

func TestLatencyRecorderPercentile(t *testing.T) {
	r := NewLatencyRecorder()
	// 1..1000 us, uniformly.
	for i := 1; i <= 1000; i++ {
		r.Record(time.Duration(i) * time.Microsecond)
	}
	s := r.Freeze()
	assert.Equal(t, int64(1000), s.Count)
	assert.InDelta(t, 500.5, s.AvgUs, 0.001)
	assert.InDelta(t, 990, s.P99Us, 2)
	assert.InDelta(t, 1000, s.MaxUs, 0.001)
}

func TestLatencyRecorderOrderingWithOutliers(t *testing.T) {
	// A handful of huge outliers pull the mean above the raw p99.
	r := NewLatencyRecorder()
	for i := 0; i < 995; i++ {
		r.Record(10 * time.Microsecond)
	}
	for i := 0; i < 5; i++ {
		r.Record(5 * time.Second)
	}
	s := r.Freeze()
	require.Greater(t, s.AvgUs, 10.0)
	assert.GreaterOrEqual(t, s.MaxUs, s.P99Us)
	assert.GreaterOrEqual(t, s.P99Us, s.AvgUs)
}

func TestLatencyRecorderFrozen(t *testing.T) {
	r := NewLatencyRecorder()
	r.Record(time.Millisecond)
	first := r.Freeze()
	r.Record(time.Second)
	assert.Equal(t, first, r.Freeze())
	assert.Equal(t, int64(1), r.Dropped())
}

func TestLatencyRecorderConcurrent(t *testing.T) {
	r := NewLatencyRecorder()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				r.Record(time.Duration(i) * time.Microsecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), r.Count())
}

func TestSamplerDenseSeries(t *testing.T) {
	s := NewSampler(5)
	s.Record(100*time.Millisecond, 1000)
	s.Record(900*time.Millisecond, 1000)
	s.Record(2500*time.Millisecond, 500)
	// Drained after the budget: folds into the last second.
	s.Record(5200*time.Millisecond, 7)

	want := []Point{
		{Second: 0, Bytes: 2000},
		{Second: 1, Bytes: 0},
		{Second: 2, Bytes: 500},
		{Second: 3, Bytes: 0},
		{Second: 4, Bytes: 7},
	}
	if diff := cmp.Diff(want, s.Series(5)); diff != "" {
		t.Errorf("Series mismatch (-want +got):\n%s", diff)
	}
}

func TestSamplerTruncatedSeries(t *testing.T) {
	s := NewSampler(10)
	s.Record(0, 1)
	s.Record(1500*time.Millisecond, 2)

	got := s.Series(2)
	require.Len(t, got, 2)
	for i, p := range got {
		assert.Equal(t, i, p.Second)
	}
	assert.Len(t, s.Series(50), 10)
	assert.Empty(t, s.Series(0))
}

func TestPointMBps(t *testing.T) {
	assert.InDelta(t, 2.5, Point{Bytes: 2500000}.MBps(), 1e-9)
}
