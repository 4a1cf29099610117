// Package filearea owns the target file of a benchmark run: it makes sure
// the area exists at the right size before any timed I/O, opens the run
// handle (bypassing the page cache when asked and possible), and releases
// it when the run ends.
package filearea

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	fillChunk   = 1 << 20
	fillWorkers = 4
)

// ErrDirectUnsupported is reported (never returned from Open) when the
// platform has no cache-bypassing open flag.
var ErrDirectUnsupported = errors.New("direct I/O not supported on this platform")

// Options describes the area a run needs.
type Options struct {
	Path      string
	Size      int64
	BlockSize int
	Write     bool // the timed phase writes
	Direct    bool // attempt cache-bypassing I/O
}

// Prepare creates or extends the file so the whole area is backed by real
// blocks. Write areas are preallocated; read areas get their missing tail
// filled with data so reads never hit sparse holes. A file already large
// enough is left as is.
func Prepare(opts Options) error {
	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE, 0664)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.Path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", opts.Path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", opts.Path)
	}
	cur := fi.Size()

	if opts.Write {
		err := preallocate(f, opts.Size)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errFallocateUnsupported) {
			return fmt.Errorf("preallocate %s to %d bytes: %w", opts.Path, opts.Size, err)
		}
		// Filesystem cannot reserve blocks; write them instead.
	}

	if cur >= opts.Size {
		return nil
	}
	if err := fill(f, cur, opts.Size); err != nil {
		return fmt.Errorf("fill %s: %w", opts.Path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", opts.Path, err)
	}
	return nil
}

// fill writes pattern data over [from, to) in parallel chunks.
func fill(f *os.File, from, to int64) error {
	chunk := make([]byte, fillChunk)
	Pattern(chunk)

	offsets := make(chan int64)
	g := new(errgroup.Group)
	for i := 0; i < fillWorkers; i++ {
		g.Go(func() error {
			for off := range offsets {
				n := int64(len(chunk))
				if off+n > to {
					n = to - off
				}
				if _, err := f.WriteAt(chunk[:n], off); err != nil {
					return err
				}
			}
			return nil
		})
	}

	// Align the first chunk so later ones stay on chunk boundaries.
	start := (from / fillChunk) * fillChunk
	go func() {
		defer close(offsets)
		for off := start; off < to; off += fillChunk {
			offsets <- off
		}
	}()
	err := g.Wait()
	if err != nil {
		// Unblock the producer.
		for range offsets {
		}
	}
	return err
}

// Pattern fills buf with non-zero, non-repeating-per-word content.
func Pattern(buf []byte) {
	for i := 0; i+4 <= len(buf); i += 4 {
		v := uint32(i) * 2654435761
		buf[i] = byte(v)
		buf[i+1] = byte(v >> 8)
		buf[i+2] = byte(v >> 16)
		buf[i+3] = byte(v >> 24)
	}
}

// Area is the open handle for one run. Close must be called on every path;
// it is idempotent.
type Area struct {
	f      *os.File
	opts   Options
	direct bool
	note   string

	closeOnce sync.Once
	closeErr  error
}

// Open opens the prepared area for the timed phases. When Direct is
// requested but rejected by the platform or filesystem, Open falls back to
// buffered I/O and explains why in Note instead of failing.
func Open(opts Options) (*Area, error) {
	flags := os.O_RDONLY
	if opts.Write {
		flags = os.O_RDWR
	}

	a := &Area{opts: opts}
	if opts.Direct {
		f, err := openDirect(opts.Path, flags)
		if err == nil {
			if perr := probe(f, opts.BlockSize); perr != nil {
				f.Close()
				err = perr
			} else {
				a.f, a.direct = f, true
				return a, nil
			}
		}
		if !isDirectRejection(err) {
			return nil, fmt.Errorf("open %s: %w", opts.Path, err)
		}
		a.note = fmt.Sprintf("direct I/O unavailable (%v); fell back to buffered I/O", err)
	}

	f, err := os.OpenFile(opts.Path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	a.f = f
	return a, nil
}

// probe issues one aligned read so filesystems that accept the open flag
// but refuse unaligned or direct transfers are caught before timing.
func probe(f *os.File, blockSize int) error {
	bufs, err := AllocBuffers(1, blockSize)
	if err != nil {
		return err
	}
	defer bufs.Free()
	if _, err := f.ReadAt(bufs.Slot(0), 0); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (a *Area) File() *os.File { return a.f }

// Fd is the raw descriptor for completion backends that submit to the
// kernel directly.
func (a *Area) Fd() uintptr { return a.f.Fd() }

// Direct reports whether the handle actually bypasses the page cache.
func (a *Area) Direct() bool { return a.direct }

// Note explains any degraded behaviour, empty otherwise.
func (a *Area) Note() string { return a.note }

func (a *Area) Size() int64 { return a.opts.Size }

// Close flushes written data and releases the handle.
func (a *Area) Close() error {
	a.closeOnce.Do(func() {
		if a.opts.Write {
			if err := datasync(a.f); err != nil {
				a.closeErr = fmt.Errorf("sync %s: %w", a.opts.Path, err)
			}
		}
		if err := a.f.Close(); err != nil && a.closeErr == nil {
			a.closeErr = err
		}
	})
	return a.closeErr
}
