package engine

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/runningwild/storagebench/pkg/filearea"
	"github.com/runningwild/storagebench/pkg/stats"
	"github.com/runningwild/storagebench/pkg/workload"
)

// minAbortSample is how many operations a run must have issued before the
// error rate may abort it mid-phase. The end of each phase always checks.
const minAbortSample = 64

// Per-operation failures reported to an Observer.
var (
	ErrShortTransfer = errors.New("short transfer")
	ErrOpTimeout     = errors.New("operation timed out")
)

type stopReason int

const (
	stopNone stopReason = iota
	stopDeadline
	stopAbort
	stopCancel
)

// retry is a failed operation waiting for a free slot.
type retry struct {
	offset  int64
	attempt int
}

// phaseResult is what one pass of the executor produced.
type phaseResult struct {
	ops       int64
	elapsed   time.Duration
	aborted   bool
	cancelled bool
}

// phase describes one pass. rec and smp are nil for warmup, whose results
// are discarded.
type phase struct {
	name     string
	duration time.Duration
	seconds  int
	rec      *stats.LatencyRecorder
	smp      *stats.Sampler
	onSecond func(stats.Point)
}

func (p phase) recording() bool { return p.rec != nil }

// executor keeps up to len(reqs) requests outstanding against the area.
// The goroutine calling runPhase issues every request and reaps every
// completion, so the generator and accumulators only see one caller.
type executor struct {
	be    backend
	gen   *workload.Generator
	reqs  []request
	bs    int
	write bool

	retryLimit    int
	abortFraction float64
	opTimeout     time.Duration
	tick          time.Duration

	log      logr.Logger
	observer Observer

	// Shared by warmup and measurement so a device failing during warmup
	// counts against the same budget.
	issued int64
	failed int64
}

func newExecutor(be backend, gen *workload.Generator, bufs *filearea.Buffers, bs int, write bool, o options) *executor {
	x := &executor{
		be:            be,
		gen:           gen,
		reqs:          make([]request, bufs.Len()),
		bs:            bs,
		write:         write,
		retryLimit:    o.retryLimit,
		abortFraction: o.abortFraction,
		opTimeout:     o.opTimeout,
		tick:          o.tick,
		log:           o.log,
		observer:      o.observer,
	}
	for i := range x.reqs {
		x.reqs[i] = request{slot: i, buf: bufs.Slot(i), write: write}
	}
	return x
}

// outstanding is how many requests the backend still owns. Between phases
// these are the ones abandoned as stuck; they carry into the next phase.
func (x *executor) outstanding() int {
	n := 0
	for i := range x.reqs {
		if x.reqs[i].live {
			n++
		}
	}
	return n
}

func (x *executor) shouldAbort(final bool) bool {
	if x.failed == 0 || x.issued == 0 {
		return false
	}
	if !final && x.issued < minAbortSample {
		return false
	}
	return float64(x.failed)/float64(x.issued) > x.abortFraction
}

// phaseRun is the mutable state of one runPhase call.
type phaseRun struct {
	x       *executor
	p       phase
	res     phaseResult
	start   time.Time
	stop    stopReason
	free    []int
	retries []retry
	live    int // requests owned by the backend
	stuck   int // live requests already counted as timed out
	emitted int
}

func (x *executor) runPhase(ctx context.Context, p phase) phaseResult {
	pr := &phaseRun{
		x:     x,
		p:     p,
		start: time.Now(),
		free:  make([]int, 0, len(x.reqs)),
	}
	// A request abandoned by an earlier phase still belongs to the backend.
	// Its slot stays out of the free list until the backend returns it.
	for i := len(x.reqs) - 1; i >= 0; i-- {
		r := &x.reqs[i]
		if !r.live {
			pr.free = append(pr.free, i)
			continue
		}
		pr.live++
		if r.timedOut {
			pr.stuck++
		}
	}
	if pr.live > 0 {
		x.log.V(1).Info("phase starting with stuck operations", "phase", p.name, "count", pr.live)
	}
	deadline := pr.start.Add(p.duration)
	batch := make([]*request, 0, len(x.reqs))
	reaped := make([]*request, 0, len(x.reqs))

	if x.observer != nil {
		x.observer.PhaseStarted(p.name)
	}
	x.log.V(1).Info("phase started", "phase", p.name, "duration", p.duration)

	for {
		now := time.Now()
		if pr.stop == stopNone {
			if ctx.Err() != nil {
				pr.stop = stopCancel
				x.log.V(1).Info("phase cancelled", "phase", p.name)
			} else if !now.Before(deadline) {
				pr.stop = stopDeadline
			}
		}

		if pr.stop == stopNone && len(pr.free) > 0 {
			batch = pr.fill(batch[:0])
			n, err := x.be.Submit(batch)
			for _, r := range batch[:n] {
				r.live = true
				pr.live++
			}
			if err != nil {
				x.log.V(2).Info("submit failed", "phase", p.name, "err", err)
				for _, r := range batch[n:] {
					r.done = time.Now()
					pr.release(r)
					pr.fail(r, err)
				}
			}
		}

		if pr.live == 0 {
			if pr.stop != stopNone {
				break
			}
			pr.checkAbort(false)
			continue
		}
		if pr.stop != stopNone && pr.live == pr.stuck {
			x.log.Info("abandoning stuck operations", "phase", p.name, "count", pr.stuck)
			break
		}

		wait := x.tick
		if pr.stop == stopNone {
			if until := deadline.Sub(now); until < wait {
				wait = until
			}
		}
		if oldest, ok := pr.oldestLive(); ok {
			if until := oldest.Add(x.opTimeout).Sub(now); until < wait {
				wait = until
			}
		}
		if wait < 0 {
			wait = 0
		}

		var err error
		reaped, err = x.be.Reap(wait, reaped[:0])
		for _, r := range reaped {
			pr.complete(r)
		}
		if err != nil {
			x.log.Info("completion backend failed", "phase", p.name, "err", err)
			if pr.stop == stopNone || pr.stop == stopDeadline {
				pr.stop = stopAbort
			}
			break
		}

		now = time.Now()
		pr.expire(now)
		pr.checkAbort(false)
		if pr.stop == stopNone {
			pr.emit(now, false)
		}
	}

	if len(pr.retries) > 0 {
		// Failed operations still waiting for a slot will not be retried.
		x.failed += int64(len(pr.retries))
		x.log.V(1).Info("dropping pending retries", "phase", p.name, "count", len(pr.retries))
		pr.retries = nil
	}
	if pr.stop == stopDeadline {
		pr.checkAbort(true)
	}

	pr.res.elapsed = time.Since(pr.start)
	switch pr.stop {
	case stopAbort:
		pr.res.aborted = true
	case stopCancel:
		pr.res.cancelled = true
	default:
		pr.emit(time.Now(), true)
	}
	x.log.V(1).Info("phase finished", "phase", p.name, "ops", pr.res.ops, "elapsed", pr.res.elapsed,
		"aborted", pr.res.aborted, "cancelled", pr.res.cancelled)
	return pr.res
}

// fill takes every free slot and loads it with a retry or the next offset.
func (pr *phaseRun) fill(batch []*request) []*request {
	x := pr.x
	for len(pr.free) > 0 {
		slot := pr.free[len(pr.free)-1]
		pr.free = pr.free[:len(pr.free)-1]

		r := &x.reqs[slot]
		if len(pr.retries) > 0 {
			r.offset, r.attempt = pr.retries[0].offset, pr.retries[0].attempt
			pr.retries = pr.retries[1:]
		} else {
			r.offset, r.attempt = x.gen.Next(), 0
			x.issued++
		}
		r.n, r.err, r.timedOut = 0, nil, false
		r.done = time.Time{}
		r.issued = time.Now()
		batch = append(batch, r)
	}
	return batch
}

// release returns the request's slot to the free list.
func (pr *phaseRun) release(r *request) {
	if r.live {
		r.live = false
		pr.live--
		if r.timedOut {
			pr.stuck--
		}
	}
	pr.free = append(pr.free, r.slot)
}

func (pr *phaseRun) fail(r *request, err error) {
	x := pr.x
	if x.observer != nil {
		x.observer.OpFailed(pr.p.name, err)
	}
	x.log.V(2).Info("operation failed", "phase", pr.p.name, "offset", r.offset, "attempt", r.attempt, "err", err)
	if pr.stop == stopNone && r.attempt < x.retryLimit {
		pr.retries = append(pr.retries, retry{offset: r.offset, attempt: r.attempt + 1})
		return
	}
	x.failed++
}

func (pr *phaseRun) complete(r *request) {
	timedOut := r.timedOut
	pr.release(r)
	if timedOut {
		// Already counted as failed when it expired.
		return
	}

	err := r.err
	if err == nil && r.n != pr.x.bs {
		err = ErrShortTransfer
	}
	if err != nil {
		pr.fail(r, err)
		return
	}
	if pr.stop == stopAbort || pr.stop == stopCancel {
		return
	}

	lat := r.done.Sub(r.issued)
	if pr.x.observer != nil {
		pr.x.observer.OpCompleted(pr.p.name, lat, pr.x.bs)
	}
	if !pr.p.recording() {
		return
	}
	pr.p.rec.Record(lat)
	pr.p.smp.Record(r.done.Sub(pr.start), int64(pr.x.bs))
	pr.res.ops++
}

// expire marks live requests older than the per-operation timeout as
// failed. Their slots stay occupied until the backend gives them back.
func (pr *phaseRun) expire(now time.Time) {
	for i := range pr.x.reqs {
		r := &pr.x.reqs[i]
		if r.live && !r.timedOut && now.Sub(r.issued) > pr.x.opTimeout {
			r.timedOut = true
			pr.stuck++
			pr.fail(r, ErrOpTimeout)
		}
	}
}

func (pr *phaseRun) oldestLive() (time.Time, bool) {
	var oldest time.Time
	found := false
	for i := range pr.x.reqs {
		r := &pr.x.reqs[i]
		if !r.live || r.timedOut {
			continue
		}
		if !found || r.issued.Before(oldest) {
			oldest, found = r.issued, true
		}
	}
	return oldest, found
}

func (pr *phaseRun) checkAbort(final bool) {
	if pr.stop == stopAbort || pr.stop == stopCancel {
		return
	}
	if pr.x.shouldAbort(final) {
		pr.stop = stopAbort
		pr.x.log.Info("error rate over threshold", "phase", pr.p.name, "issued", pr.x.issued, "failed", pr.x.failed)
	}
}

// emit reports each measurement second once no further completion can land
// in it. Mid-phase that means the second has elapsed and every request still
// live was issued after it. The last second also takes the completions
// drained after the deadline, so only the final call reports it.
func (pr *phaseRun) emit(now time.Time, all bool) {
	if pr.p.onSecond == nil || !pr.p.recording() {
		return
	}
	whole := pr.p.seconds
	if !all {
		whole = min(int(now.Sub(pr.start)/time.Second), pr.p.seconds-1)
		if oldest, ok := pr.oldestLive(); ok {
			whole = min(whole, int(oldest.Sub(pr.start)/time.Second))
		}
	}
	for ; pr.emitted < whole; pr.emitted++ {
		pr.p.onSecond(stats.Point{Second: pr.emitted, Bytes: pr.p.smp.Bucket(pr.emitted)})
	}
}
