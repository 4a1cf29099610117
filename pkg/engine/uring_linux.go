//go:build linux

package engine

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/godzie44/go-uring/uring"

	"github.com/runningwild/storagebench/pkg/filearea"
)

// uringBackend submits every request to one io_uring sized to the queue
// depth. The slot index travels as the SQE user data.
type uringBackend struct {
	ring  *uring.Ring
	fd    uintptr
	slots []*request
}

func newUringBackend(area *filearea.Area, qd int) (backend, error) {
	ring, err := uring.New(uint32(qd))
	if err != nil {
		return nil, fmt.Errorf("failed to setup io_uring: %w", err)
	}
	return &uringBackend{
		ring:  ring,
		fd:    area.Fd(),
		slots: make([]*request, qd),
	}, nil
}

func (b *uringBackend) Name() string { return "io_uring" }

func (b *uringBackend) Submit(reqs []*request) (int, error) {
	var queueErr error
	queued := 0
	for _, r := range reqs {
		var op uring.Operation
		if r.write {
			op = uring.Write(b.fd, r.buf, uint64(r.offset))
		} else {
			op = uring.Read(b.fd, r.buf, uint64(r.offset))
		}
		if err := b.ring.QueueSQE(op, 0, uint64(r.slot)); err != nil {
			queueErr = fmt.Errorf("queue sqe: %w", err)
			break
		}
		b.slots[r.slot] = r
		queued++
	}
	if queued > 0 {
		if err := b.submit(); err != nil {
			for _, r := range reqs[:queued] {
				b.slots[r.slot] = nil
			}
			return 0, err
		}
	}
	return queued, queueErr
}

func (b *uringBackend) submit() error {
	for {
		_, err := b.ring.Submit()
		if err == nil {
			return nil
		}
		if !isEINTR(err) {
			return fmt.Errorf("io_uring submit: %w", err)
		}
	}
}

func (b *uringBackend) Reap(timeout time.Duration, out []*request) ([]*request, error) {
	var cqe *uring.CQEvent
	var err error
	if timeout <= 0 {
		cqe, err = b.ring.PeekCQE()
		if err != nil {
			return out, nil
		}
	} else {
		cqe, err = b.ring.WaitCQEventsWithTimeout(1, timeout)
		if err != nil {
			if isEINTR(err) || errors.Is(err, syscall.ETIME) || errors.Is(err, syscall.EAGAIN) {
				return out, nil
			}
			return out, fmt.Errorf("io_uring wait: %w", err)
		}
	}

	now := time.Now()
	for cqe != nil {
		slot := int(cqe.UserData)
		if slot >= 0 && slot < len(b.slots) && b.slots[slot] != nil {
			r := b.slots[slot]
			b.slots[slot] = nil
			if cqe.Res < 0 {
				r.n, r.err = 0, syscall.Errno(-cqe.Res)
			} else {
				r.n, r.err = int(cqe.Res), nil
			}
			r.done = now
			out = append(out, r)
		}
		b.ring.SeenCQE(cqe)
		cqe, err = b.ring.PeekCQE()
		if err != nil {
			break
		}
	}
	return out, nil
}

func (b *uringBackend) Close() error {
	return b.ring.Close()
}

func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Err == syscall.EINTR
	}
	return false
}
