package report

import (
	"math"

	"github.com/runningwild/storagebench/pkg/engine"
)

// Stability describes how flat a throughput series is.
type Stability struct {
	MeanMBps  float64
	StdDev    float64
	CoV       float64 // StdDev / MeanMBps; 0 when the mean is 0
	Slope     float64 // MB/s gained (or lost) per second of the run
	Intercept float64
	MinMBps   float64
	MaxMBps   float64
}

// Drift is the relative change of the fitted line across the run, e.g.
// -0.2 when the device ends 20% slower than it started.
func (s Stability) Drift(seconds int) float64 {
	if seconds < 2 || s.Intercept == 0 {
		return 0
	}
	return s.Slope * float64(seconds-1) / s.Intercept
}

// Analyze fits a least-squares line through the series and summarises its
// spread. Sustained writes that fall off a cliff once a cache fills show
// up as a negative slope and a high CoV.
func Analyze(series []engine.RunPoint) Stability {
	var s Stability
	n := len(series)
	if n == 0 {
		return s
	}
	s.MinMBps, s.MaxMBps = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, p := range series {
		sum += p.ThroughputMBps
		s.MinMBps = math.Min(s.MinMBps, p.ThroughputMBps)
		s.MaxMBps = math.Max(s.MaxMBps, p.ThroughputMBps)
	}
	s.MeanMBps = sum / float64(n)

	var sq float64
	for _, p := range series {
		d := p.ThroughputMBps - s.MeanMBps
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(n))
	if s.MeanMBps != 0 {
		s.CoV = s.StdDev / s.MeanMBps
	}

	s.Slope, s.Intercept = leastSquares(series)
	return s
}

// leastSquares regresses throughput on second index. A single point, or a
// degenerate x range, yields a flat line through the mean.
func leastSquares(series []engine.RunPoint) (m, c float64) {
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(series))
	for _, p := range series {
		x := float64(p.SecondIndex)
		sumX += x
		sumY += p.ThroughputMBps
		sumXY += x * p.ThroughputMBps
		sumXX += x * x
	}
	den := n*sumXX - sumX*sumX
	if n < 2 || math.Abs(den) < 1e-12 {
		return 0, sumY / n
	}
	m = (n*sumXY - sumX*sumY) / den
	c = (sumY - m*sumX) / n
	return m, c
}
