// Package engine runs one storage benchmark: it prepares the file area,
// drives a fixed number of outstanding requests through a warmup and a
// measurement phase, and reports throughput, IOPS and latency.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/runningwild/storagebench/pkg/filearea"
	"github.com/runningwild/storagebench/pkg/stats"
	"github.com/runningwild/storagebench/pkg/workload"
)

// Phase names passed to an Observer.
const (
	PhaseWarmup  = "warmup"
	PhaseMeasure = "measure"
)

// Runner is anything that turns a RunConfig into a RunResult. Engine is the
// local implementation; the agent client runs on a remote host.
type Runner interface {
	Run(ctx context.Context, cfg RunConfig) (*RunResult, error)
}

// Engine executes exactly one run. Build a fresh one per invocation.
type Engine struct {
	opts options

	mu      sync.Mutex
	state   State
	started bool
}

func New(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{opts: o, state: StateInit}
}

// State returns where the run currently is.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) advance(to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !canAdvance(e.state, to) {
		panic(fmt.Sprintf("engine: illegal transition %s -> %s", e.state, to))
	}
	e.opts.log.V(1).Info("state", "from", e.state.String(), "to", to.String())
	e.state = to
}

func (e *Engine) fail(kind, err error) *RunError {
	e.mu.Lock()
	from := e.state
	e.mu.Unlock()
	e.advance(StateFailed)
	return &RunError{Kind: kind, State: from, Err: err}
}

// Run executes the benchmark described by cfg.
//
// On success it returns the result and a nil error. Configuration, file
// access and cancellation failures return a nil result. An error-rate
// abort during measurement returns the partial result together with an
// error matching ErrIoFailure.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (res *RunResult, err error) {
	e.mu.Lock()
	if e.started {
		state := e.state
		e.mu.Unlock()
		return nil, &RunError{Kind: ErrAlreadyRun, State: state}
	}
	e.started = true
	e.mu.Unlock()

	log := e.opts.log.WithValues("path", cfg.Path, "test", string(cfg.TestType))

	if err := cfg.Validate(); err != nil {
		return nil, e.fail(ErrInvalidConfig, err)
	}

	areaOpts := filearea.Options{
		Path:      cfg.Path,
		Size:      cfg.FileSizeBytes,
		BlockSize: cfg.BlockSizeBytes,
		Write:     cfg.TestType.IsWrite(),
		Direct:    cfg.UseDirect,
	}
	if err := filearea.Prepare(areaOpts); err != nil {
		return nil, e.fail(ErrFileAccess, err)
	}
	area, err := filearea.Open(areaOpts)
	if err != nil {
		return nil, e.fail(ErrFileAccess, err)
	}
	var notes []string
	defer func() {
		if cerr := area.Close(); cerr != nil {
			log.Info("closing area failed", "err", cerr)
			if res != nil {
				res.Note = joinNotes(res.Note, fmt.Sprintf("closing area: %v", cerr))
			}
		}
	}()
	if area.Note() != "" {
		log.Info("direct I/O unavailable, using buffered I/O", "reason", area.Note())
		notes = append(notes, area.Note())
	}

	bufs, err := filearea.AllocBuffers(cfg.QueueDepth, cfg.BlockSizeBytes)
	if err != nil {
		return nil, e.fail(ErrFileAccess, err)
	}
	if cfg.TestType.IsWrite() {
		for i := 0; i < bufs.Len(); i++ {
			filearea.Pattern(bufs.Slot(i))
		}
	}

	be, beNote, err := e.backend(area, cfg.QueueDepth)
	if err != nil {
		bufs.Free()
		return nil, e.fail(ErrFileAccess, err)
	}
	if beNote != "" {
		log.Info("completion engine fallback", "reason", beNote)
		notes = append(notes, beNote)
	}
	label := engineLabel(be.Name(), area.Direct())

	abandoned := 0
	defer func() {
		if cerr := be.Close(); cerr != nil {
			log.Info("closing completion engine failed", "err", cerr)
		}
		// Buffers still referenced by stuck kernel requests are leaked
		// rather than unmapped under them.
		if abandoned == 0 {
			bufs.Free()
		}
	}()

	seed := time.Now().UnixNano()
	if e.opts.seedSet {
		seed = e.opts.seed
	}
	gen, err := workload.New(cfg.TestType.Pattern(), cfg.FileSizeBytes, int64(cfg.BlockSizeBytes), seed)
	if err != nil {
		return nil, e.fail(ErrInvalidConfig, err)
	}
	x := newExecutor(be, gen, bufs, cfg.BlockSizeBytes, cfg.TestType.IsWrite(), e.opts)
	e.advance(StatePrepared)
	log.V(1).Info("area prepared", "engine", label, "size", cfg.FileSizeBytes, "blockSize", cfg.BlockSizeBytes, "queueDepth", cfg.QueueDepth)

	e.advance(StateWarmup)
	if cfg.WarmupSec > 0 {
		wr := x.runPhase(ctx, phase{name: PhaseWarmup, duration: time.Duration(cfg.WarmupSec) * time.Second})
		abandoned = x.outstanding()
		if wr.cancelled {
			return nil, e.fail(ErrCancelled, ctx.Err())
		}
		if wr.aborted {
			issued, failed := x.issued, x.failed
			return nil, e.fail(ErrIoFailure, fmt.Errorf("warmup: %d of %d operations failed", failed, issued))
		}
	}

	e.advance(StateMeasuring)
	rec := stats.NewLatencyRecorder()
	smp := stats.NewSampler(cfg.DurationSec)
	mp := phase{
		name:     PhaseMeasure,
		duration: time.Duration(cfg.DurationSec) * time.Second,
		seconds:  cfg.DurationSec,
		rec:      rec,
		smp:      smp,
	}
	if e.opts.progress != nil || e.opts.observer != nil {
		mp.onSecond = func(p stats.Point) {
			rp := toRunPoint(p)
			if e.opts.observer != nil {
				e.opts.observer.SecondCompleted(rp)
			}
			if e.opts.progress != nil {
				e.opts.progress(rp)
			}
		}
	}
	mr := x.runPhase(ctx, mp)
	abandoned = x.outstanding()
	if mr.cancelled {
		return nil, e.fail(ErrCancelled, ctx.Err())
	}

	in := aggInput{
		blockSize:   cfg.BlockSizeBytes,
		durationSec: cfg.DurationSec,
		ops:         mr.ops,
		latency:     rec.Freeze(),
		label:       label,
	}
	if mr.aborted {
		seconds := int(mr.elapsed / time.Second)
		if seconds > cfg.DurationSec {
			seconds = cfg.DurationSec
		}
		in.partial = true
		in.elapsed = mr.elapsed
		in.series = smp.Series(seconds)
		notes = append(notes, fmt.Sprintf("aborted after %.1fs: %d of %d operations failed (threshold %.0f%%)",
			mr.elapsed.Seconds(), x.failed, x.issued, x.abortFraction*100))
	} else {
		in.series = smp.Series(cfg.DurationSec)
	}
	if x.failed > 0 && !mr.aborted {
		notes = append(notes, fmt.Sprintf("%d of %d operations failed after retry", x.failed, x.issued))
	}
	in.note = joinNotes(notes...)
	result := aggregate(in)

	if mr.aborted {
		log.Info("run aborted", "ops", result.OpsCompleted, "note", result.Note)
		rerr := e.fail(ErrIoFailure, fmt.Errorf("measurement: %d of %d operations failed", x.failed, x.issued))
		return &result, rerr
	}

	e.advance(StateDone)
	log.V(1).Info("run complete", "engine", label, "mbps", result.ThroughputMBps, "iops", result.IOPS)
	return &result, nil
}

func (e *Engine) backend(area *filearea.Area, qd int) (backend, string, error) {
	if e.opts.factory != nil {
		be, err := e.opts.factory(area, qd)
		return be, "", err
	}
	return newBackend(e.opts.kind, area, qd)
}

func engineLabel(mechanism string, direct bool) string {
	if direct {
		return mechanism + "/direct"
	}
	return mechanism + "/buffered"
}

func joinNotes(notes ...string) string {
	var kept []string
	for _, n := range notes {
		if n != "" {
			kept = append(kept, n)
		}
	}
	return strings.Join(kept, "; ")
}
