package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"
)

var verbosity int

func main() {
	root := &cobra.Command{
		Use:           "storagebench",
		Short:         "Measure sustained throughput and latency of a file or block device",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "Log verbosity (0: fallbacks and aborts, 1: phases, 2: every failed operation)")

	root.AddCommand(newRunCmd(), newAgentCmd(), newRemoteCmd(), newFioJobCmd())

	if err := root.Execute(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() logr.Logger {
	stdr.SetVerbosity(verbosity)
	return stdr.New(log.New(os.Stderr, "", log.LstdFlags))
}
