// Package report renders the per-second series of one or more runs as CSV
// and as a line chart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/runningwild/storagebench/pkg/engine"
)

// Series is one run's throughput curve with its legend label.
type Series struct {
	Label  string
	Points []engine.RunPoint
}

// WriteCSV writes one row per second and one throughput column per run.
// Runs shorter than the longest (aborted ones) leave their cells empty.
func WriteCSV(w io.Writer, runs []Series) error {
	cw := csv.NewWriter(w)

	header := []string{"Second"}
	rows := 0
	for _, r := range runs {
		header = append(header, r.Label+"_MBps")
		if len(r.Points) > rows {
			rows = len(r.Points)
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := 0; i < rows; i++ {
		rec := []string{fmt.Sprintf("%d", i)}
		for _, r := range runs {
			if i < len(r.Points) {
				rec = append(rec, fmt.Sprintf("%.2f", r.Points[i].ThroughputMBps))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, runs []Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, runs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Plot draws every run as one line, throughput against second.
func Plot(title string, runs []Series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Second"
	p.Y.Label.Text = "MB/s"
	p.Y.Min = 0
	p.Legend.Top = true

	for i, r := range runs {
		if len(r.Points) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(r.Points))
		for j, pt := range r.Points {
			xys[j].X = float64(pt.SecondIndex)
			xys[j].Y = pt.ThroughputMBps
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", r.Label, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add(r.Label, line)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// SavePlot renders the chart to path; the extension picks the format.
func SavePlot(path, title string, runs []Series) error {
	p, err := Plot(title, runs)
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
