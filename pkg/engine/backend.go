package engine

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runningwild/storagebench/pkg/filearea"
)

// Kind selects the completion mechanism used to keep requests in flight.
type Kind string

const (
	KindAuto   Kind = "auto"   // io_uring when available, else sync
	KindSync   Kind = "sync"   // fixed pool of blocking pread/pwrite submitters
	KindUring  Kind = "uring"  // Linux io_uring
	KindLibAIO Kind = "libaio" // Linux native AIO
)

// ParseKind accepts the engine names used on the command line and in
// config files. The empty string means auto.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindAuto:
		return KindAuto, nil
	case KindSync, KindUring, KindLibAIO:
		return Kind(s), nil
	case "io_uring":
		return KindUring, nil
	case "aio":
		return KindLibAIO, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

var errBackendUnsupported = errors.New("not supported on this platform")

// request is one outstanding operation. Each queue slot owns one request
// and one buffer for the whole run.
type request struct {
	slot    int
	buf     []byte
	write   bool
	offset  int64
	attempt int

	issued   time.Time
	done     time.Time
	n        int
	err      error
	live     bool // owned by the backend
	timedOut bool
}

// backend is the completion mechanism behind the executor. Submit starts
// requests without waiting for them and reports how many of reqs, from the
// front, it accepted. Reap blocks for at most timeout until at least one
// request completed and returns every completion available, in the order
// the mechanism reports them.
type backend interface {
	Name() string
	Submit(reqs []*request) (int, error)
	Reap(timeout time.Duration, out []*request) ([]*request, error)
	Close() error
}

// newBackend builds the requested mechanism. Anything other than sync that
// cannot be set up falls back to sync; the returned note says why.
func newBackend(kind Kind, area *filearea.Area, qd int) (backend, string, error) {
	switch kind {
	case KindSync:
		return newSyncBackend(area.File(), qd), "", nil
	case KindAuto, "":
		be, err := newUringBackend(area, qd)
		if err == nil {
			return be, "", nil
		}
		return newSyncBackend(area.File(), qd), "", nil
	case KindUring:
		be, err := newUringBackend(area, qd)
		if err == nil {
			return be, "", nil
		}
		return newSyncBackend(area.File(), qd), fmt.Sprintf("io_uring unavailable (%v); fell back to sync engine", err), nil
	case KindLibAIO:
		be, err := newAIOBackend(area, qd)
		if err == nil {
			return be, "", nil
		}
		return newSyncBackend(area.File(), qd), fmt.Sprintf("libaio unavailable (%v); fell back to sync engine", err), nil
	}
	return nil, "", fmt.Errorf("unknown engine %q", kind)
}

// syncBackend keeps qd blocking submitters busy. The submitters never
// touch the run's accumulators; their completions are funnelled back to
// the coordinator through a channel.
type syncBackend struct {
	f       *os.File
	reqs    chan *request
	done    chan *request
	g       errgroup.Group
	running int64
}

func newSyncBackend(f *os.File, qd int) *syncBackend {
	b := &syncBackend{
		f:    f,
		reqs: make(chan *request, qd),
		done: make(chan *request, qd),
	}
	for i := 0; i < qd; i++ {
		b.g.Go(b.submitter)
	}
	return b
}

func (b *syncBackend) submitter() error {
	for r := range b.reqs {
		if r.write {
			r.n, r.err = b.f.WriteAt(r.buf, r.offset)
		} else {
			r.n, r.err = b.f.ReadAt(r.buf, r.offset)
		}
		r.done = time.Now()
		atomic.AddInt64(&b.running, -1)
		b.done <- r
	}
	return nil
}

func (b *syncBackend) Name() string { return "sync" }

func (b *syncBackend) Submit(reqs []*request) (int, error) {
	for _, r := range reqs {
		atomic.AddInt64(&b.running, 1)
		b.reqs <- r
	}
	return len(reqs), nil
}

func (b *syncBackend) Reap(timeout time.Duration, out []*request) ([]*request, error) {
	if timeout <= 0 {
		select {
		case r := <-b.done:
			out = append(out, r)
		default:
			return out, nil
		}
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case r := <-b.done:
			out = append(out, r)
		case <-t.C:
			return out, nil
		}
	}
	for {
		select {
		case r := <-b.done:
			out = append(out, r)
		default:
			return out, nil
		}
	}
}

// Close stops the submitters. If a transfer is still stuck in the kernel
// the submitters are left to exit on their own.
func (b *syncBackend) Close() error {
	close(b.reqs)
	if atomic.LoadInt64(&b.running) > 0 {
		return nil
	}
	return b.g.Wait()
}
