package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runningwild/storagebench/pkg/agent"
	"github.com/runningwild/storagebench/pkg/engine"
	"github.com/runningwild/storagebench/pkg/session"
)

func newAgentCmd() *cobra.Command {
	var (
		port    int
		path    string
		engKind string
	)
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve benchmark runs over HTTP for a remote controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := engine.ParseKind(engKind)
			if err != nil {
				return err
			}
			srv := agent.NewServer(path, newLogger(), engine.WithBackend(kind))
			return srv.ListenAndServe(port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 9000, "Port to listen on")
	cmd.Flags().StringVar(&path, "path", "", "Target file path (overrides remote request)")
	cmd.Flags().StringVar(&engKind, "engine", string(engine.KindAuto), "Completion engine: auto, sync, uring or libaio")
	return cmd
}

func newRemoteCmd() *cobra.Command {
	var (
		f    *Flags
		out  reportFlags
		host string
	)
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Run the benchmark on a storagebench agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				return fmt.Errorf("--host is required")
			}
			cfg, err := f.LoadConfig()
			if err != nil {
				return err
			}
			f.MaybeWriteConfig(cfg)
			log := newLogger().WithValues("host", host)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Benchmarking %s on %s\n", cfg.Run.Path, host)
			c := agent.NewClient(host)
			s := session.New(func() engine.Runner { return c }, log, os.Stdout)
			runs, runErr := s.RunN(ctx, cfg.Run, cfg.Settings.Runs)
			writeOutputs(out, cfg, runs, log)
			return runErr
		},
	}
	f = SetupFlags(cmd.Flags())
	out.setup(cmd)
	cmd.Flags().StringVar(&host, "host", "", "Agent address, host:port")
	return cmd
}
