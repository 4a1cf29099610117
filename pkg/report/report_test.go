package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/storagebench/pkg/engine"
)

func points(mbps ...float64) []engine.RunPoint {
	out := make([]engine.RunPoint, len(mbps))
	for i, v := range mbps {
		out[i] = engine.RunPoint{SecondIndex: i, ThroughputMBps: v}
	}
	return out
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []Series{
		{Label: "Run 1", Points: points(100, 101.5, 99)},
		{Label: "Run 2", Points: points(98, 97)},
	})
	require.NoError(t, err)

	want := "Second,Run 1_MBps,Run 2_MBps\n" +
		"0,100.00,98.00\n" +
		"1,101.50,97.00\n" +
		"2,99.00,\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, WriteCSVFile(path, []Series{{Label: "Run 1", Points: points(1)}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Second,Run 1_MBps\n0,1.00\n", string(data))
}

func TestSavePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.png")
	err := SavePlot(path, "SEQ_READ", []Series{
		{Label: "Run 1", Points: points(100, 110, 105)},
		{Label: "Run 2", Points: points(90, 95, 97)},
		{Label: "Run 3"},
	})
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}

func TestAnalyzeFlat(t *testing.T) {
	s := Analyze(points(100, 100, 100, 100))
	assert.InDelta(t, 100, s.MeanMBps, 1e-9)
	assert.InDelta(t, 0, s.Slope, 1e-9)
	assert.InDelta(t, 100, s.Intercept, 1e-9)
	assert.Zero(t, s.CoV)
	assert.Zero(t, s.Drift(4))
}

func TestAnalyzeDecline(t *testing.T) {
	// A write cache filling up: throughput halves over the run.
	s := Analyze(points(200, 175, 150, 125, 100))
	assert.InDelta(t, -25, s.Slope, 1e-9)
	assert.InDelta(t, 200, s.Intercept, 1e-9)
	assert.InDelta(t, -0.5, s.Drift(5), 1e-9)
	assert.Equal(t, 100.0, s.MinMBps)
	assert.Equal(t, 200.0, s.MaxMBps)
	assert.Greater(t, s.CoV, 0.1)
}

func TestAnalyzeDegenerate(t *testing.T) {
	assert.Equal(t, Stability{}, Analyze(nil))

	s := Analyze(points(42))
	assert.Equal(t, 42.0, s.MeanMBps)
	assert.Zero(t, s.Slope)
	assert.Equal(t, 42.0, s.Intercept)
}
