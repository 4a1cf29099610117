package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/runningwild/storagebench/pkg/config"
	"github.com/runningwild/storagebench/pkg/engine"
	"github.com/runningwild/storagebench/pkg/metrics"
	"github.com/runningwild/storagebench/pkg/report"
	"github.com/runningwild/storagebench/pkg/session"
)

// reportFlags are the outputs written after a session.
type reportFlags struct {
	CSV    string
	Plot   string
	Report string
}

func (r *reportFlags) setup(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.CSV, "csv", "", "Write the per-second series of every run to this CSV file")
	cmd.Flags().StringVar(&r.Plot, "plot", "", "Write a chart of the per-second series (.png, .svg or .pdf)")
	cmd.Flags().StringVar(&r.Report, "report", "", "Write all results to this JSON file")
}

func newRunCmd() *cobra.Command {
	var (
		f           *Flags
		out         reportFlags
		metricsAddr string
		progress    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark locally, several times in a row",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.LoadConfig()
			if err != nil {
				return err
			}
			f.MaybeWriteConfig(cfg)
			opts, err := cfg.Options()
			if err != nil {
				return err
			}
			log := newLogger()
			opts = append(opts, engine.WithLogger(log))

			if metricsAddr != "" {
				exp := metrics.NewExporter()
				opts = append(opts, engine.WithObserver(exp))
				go func() {
					if err := exp.ListenAndServe(metricsAddr); err != nil {
						log.Error(err, "metrics server stopped", "addr", metricsAddr)
					}
				}()
				fmt.Printf("Serving metrics on %s/metrics\n", metricsAddr)
			}
			if progress {
				opts = append(opts, engine.WithProgress(func(p engine.RunPoint) {
					fmt.Printf("  t=%3ds %8.1f MB/s\n", p.SecondIndex+1, p.ThroughputMBps)
				}))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Benchmarking %s: %s, %d MiB, blk=%dKB, QD=%d, %ds (+%ds warmup)\n",
				cfg.Run.Path, cfg.Run.TestType, cfg.Run.FileSizeBytes>>20, cfg.Run.BlockSizeBytes/1024,
				cfg.Run.QueueDepth, cfg.Run.DurationSec, cfg.Run.WarmupSec)
			s := session.New(func() engine.Runner { return engine.New(opts...) }, log, os.Stdout)
			runs, runErr := s.RunN(ctx, cfg.Run, cfg.Settings.Runs)
			writeOutputs(out, cfg, runs, log)
			return runErr
		},
	}
	f = SetupFlags(cmd.Flags())
	out.setup(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running, e.g. :9100")
	cmd.Flags().BoolVar(&progress, "progress", false, "Print throughput after every measured second")
	return cmd
}

// writeOutputs prints the stability of every run and writes whichever
// report files were requested. Failures here never fail the command.
func writeOutputs(out reportFlags, cfg *config.Config, runs []session.Run, log logr.Logger) {
	if len(runs) == 0 {
		return
	}
	series := make([]report.Series, len(runs))
	for i, r := range runs {
		series[i] = report.Series{Label: fmt.Sprintf("Run %d", r.Index), Points: r.Result.Series}
		st := report.Analyze(r.Result.Series)
		fmt.Printf("Run %d: IOPS=%.0f, avg=%.0fus, p99=%.0fus, max=%.0fus, CoV=%.1f%%, drift=%+.1f%% [%s]\n",
			r.Index, r.Result.IOPS, r.Result.AvgLatencyUs, r.Result.P99LatencyUs, r.Result.MaxLatencyUs,
			st.CoV*100, st.Drift(len(r.Result.Series))*100, r.Result.EngineLabel)
	}

	if out.CSV != "" {
		if err := report.WriteCSVFile(out.CSV, series); err != nil {
			fmt.Printf("Failed to write CSV: %v\n", err)
		} else {
			fmt.Printf("Series written to %s\n", out.CSV)
		}
	}
	if out.Plot != "" {
		title := fmt.Sprintf("%s, blk=%dKB, QD=%d", cfg.Run.TestType, cfg.Run.BlockSizeBytes/1024, cfg.Run.QueueDepth)
		if err := report.SavePlot(out.Plot, title, series); err != nil {
			fmt.Printf("Failed to write plot: %v\n", err)
		} else {
			fmt.Printf("Plot written to %s\n", out.Plot)
		}
	}
	if out.Report != "" {
		writeReport(out.Report, cfg, runs, log)
	}
}

type reportFile struct {
	Config  engine.RunConfig   `json:"config"`
	Results []engine.RunResult `json:"results"`
}

func writeReport(path string, cfg *config.Config, runs []session.Run, log logr.Logger) {
	rf := reportFile{Config: cfg.Run}
	for _, r := range runs {
		rf.Results = append(rf.Results, *r.Result)
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		fmt.Printf("Failed to marshal report: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Printf("Failed to write report: %v\n", err)
		return
	}
	log.V(1).Info("report written", "path", path, "runs", len(runs))
	fmt.Printf("Report written to %s\n", path)
}
