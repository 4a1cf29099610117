package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/storagebench/pkg/engine"
)

type mockEngine struct {
	runFunc func(cfg engine.RunConfig) (*engine.RunResult, error)
}

func (m *mockEngine) Run(_ context.Context, cfg engine.RunConfig) (*engine.RunResult, error) {
	return m.runFunc(cfg)
}

var cfg = engine.RunConfig{
	Path:           "area.bin",
	TestType:       engine.SeqRead,
	FileSizeBytes:  2048 << 20,
	BlockSizeBytes: 128 << 10,
	QueueDepth:     4,
	DurationSec:    20,
	WarmupSec:      3,
}

func TestRunTriple(t *testing.T) {
	calls := 0
	var out bytes.Buffer
	s := New(func() engine.Runner {
		calls++
		mbps := float64(1000 + calls)
		return &mockEngine{runFunc: func(engine.RunConfig) (*engine.RunResult, error) {
			return &engine.RunResult{ThroughputMBps: mbps}, nil
		}}
	}, logr.Discard(), &out)

	runs, err := s.RunTriple(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 3, calls, "each run gets a fresh runner")
	assert.Equal(t, 2, runs[1].Index)
	assert.Equal(t,
		"Run 1: 1001.0 MB/s, QD=4, blk=128KB\n"+
			"Run 2: 1002.0 MB/s, QD=4, blk=128KB\n"+
			"Run 3: 1003.0 MB/s, QD=4, blk=128KB\n",
		out.String())
}

func TestRunNStopsOnFailure(t *testing.T) {
	calls := 0
	s := New(func() engine.Runner {
		calls++
		n := calls
		return &mockEngine{runFunc: func(engine.RunConfig) (*engine.RunResult, error) {
			if n == 2 {
				return nil, &engine.RunError{Kind: engine.ErrFileAccess, Err: errors.New("ENOSPC")}
			}
			return &engine.RunResult{ThroughputMBps: 1}, nil
		}}
	}, logr.Discard(), nil)

	runs, err := s.RunN(context.Background(), cfg, 5)
	assert.ErrorIs(t, err, engine.ErrFileAccess)
	assert.Len(t, runs, 1)
	assert.Equal(t, 2, calls)
}

func TestRunNKeepsPartialResult(t *testing.T) {
	var out bytes.Buffer
	s := New(func() engine.Runner {
		return &mockEngine{runFunc: func(engine.RunConfig) (*engine.RunResult, error) {
			return &engine.RunResult{ThroughputMBps: 5, Note: "aborted after 1.2s"},
				&engine.RunError{Kind: engine.ErrIoFailure, State: engine.StateMeasuring}
		}}
	}, logr.Discard(), &out)

	runs, err := s.RunN(context.Background(), cfg, 0)
	assert.ErrorIs(t, err, engine.ErrIoFailure)
	require.Len(t, runs, 1)
	assert.Error(t, runs[0].Err)
	assert.Contains(t, out.String(), "note: aborted after 1.2s")
}

func TestRunNCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(func() engine.Runner {
		return &mockEngine{runFunc: func(engine.RunConfig) (*engine.RunResult, error) {
			return nil, &engine.RunError{Kind: engine.ErrCancelled, Err: fmt.Errorf("%w", ctx.Err())}
		}}
	}, logr.Discard(), nil)

	runs, err := s.RunTriple(ctx, cfg)
	assert.Empty(t, runs)
	assert.ErrorIs(t, err, engine.ErrCancelled)
}
