package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/runningwild/storagebench/pkg/engine"
	"github.com/runningwild/storagebench/pkg/fio"
)

func newFioJobCmd() *cobra.Command {
	var (
		f         *Flags
		fioOutput string
	)
	cmd := &cobra.Command{
		Use:   "fio-job",
		Short: "Print an fio job file equivalent to the configured run, or summarise fio's JSON output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.LoadConfig()
			if err != nil {
				return err
			}
			if fioOutput == "" {
				kind, err := engine.ParseKind(cfg.Settings.Engine)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), fio.GenerateJob(cfg.Run, kind))
				return nil
			}

			data, err := os.ReadFile(fioOutput)
			if err != nil {
				return err
			}
			res, err := fio.ParseOutput(data, cfg.Run)
			if err != nil {
				return fmt.Errorf("parse %s: %w", fioOutput, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fio: %.1f MB/s, IOPS=%.0f, avg=%.0fus, p99=%.0fus, max=%.0fus [%s]\n",
				res.ThroughputMBps, res.IOPS, res.AvgLatencyUs, res.P99LatencyUs, res.MaxLatencyUs, res.EngineLabel)
			return nil
		},
	}
	f = SetupFlags(cmd.Flags())
	cmd.Flags().StringVar(&fioOutput, "fio-output", "", "Summarise this fio --output-format=json file instead of printing a job")
	return cmd
}
