// Package session repeats a benchmark a few times back to back, the way a
// host compares consecutive runs against the same file area.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/runningwild/storagebench/pkg/engine"
)

// DefaultRuns is how many runs a session makes when asked for zero.
const DefaultRuns = 3

// NewRunner builds the runner for one run. Engines are single use, so the
// session asks for a fresh one every time.
type NewRunner func() engine.Runner

// Run is one finished run of a session.
type Run struct {
	Index  int // 1-based
	Result *engine.RunResult
	Err    error // set for a partial result
}

// Summary is the one-line report the host prints per run.
func (r Run) Summary(cfg engine.RunConfig) string {
	return fmt.Sprintf("Run %d: %.1f MB/s, QD=%d, blk=%dKB", r.Index, r.Result.ThroughputMBps, cfg.QueueDepth, cfg.BlockSizeBytes/1024)
}

// Session runs the same config n times in sequence.
type Session struct {
	newRunner NewRunner
	log       logr.Logger
	out       io.Writer
}

func New(newRunner NewRunner, log logr.Logger, out io.Writer) *Session {
	if out == nil {
		out = io.Discard
	}
	return &Session{newRunner: newRunner, log: log, out: out}
}

// RunN makes n runs (DefaultRuns when n <= 0) and writes one summary line
// per run to the session's output. A run that fails without a result stops
// the session; the runs finished so far are returned with the error. A
// partial result is kept and also stops the session.
func (s *Session) RunN(ctx context.Context, cfg engine.RunConfig, n int) ([]Run, error) {
	if n <= 0 {
		n = DefaultRuns
	}
	var runs []Run
	for i := 1; i <= n; i++ {
		log := s.log.WithValues("run", i, "of", n)
		log.V(1).Info("starting run")

		res, err := s.newRunner().Run(ctx, cfg)
		if res == nil {
			if err == nil {
				err = errors.New("runner returned no result")
			}
			log.Info("run failed", "err", err)
			return runs, fmt.Errorf("run %d: %w", i, err)
		}

		r := Run{Index: i, Result: res, Err: err}
		runs = append(runs, r)
		fmt.Fprintln(s.out, r.Summary(cfg))
		if res.Note != "" {
			fmt.Fprintf(s.out, "  note: %s\n", res.Note)
		}
		if err != nil {
			log.Info("run ended early", "err", err)
			return runs, fmt.Errorf("run %d: %w", i, err)
		}
	}
	return runs, nil
}

// RunTriple is RunN with the default three runs.
func (s *Session) RunTriple(ctx context.Context, cfg engine.RunConfig) ([]Run, error) {
	return s.RunN(ctx, cfg, DefaultRuns)
}
