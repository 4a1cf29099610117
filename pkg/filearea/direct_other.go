//go:build !linux

package filearea

import (
	"errors"
	"os"
)

var errFallocateUnsupported = errors.New("fallocate not supported")

func openDirect(path string, flags int) (*os.File, error) {
	return nil, ErrDirectUnsupported
}

func isDirectRejection(err error) bool {
	return errors.Is(err, ErrDirectUnsupported)
}

func preallocate(f *os.File, size int64) error {
	return errFallocateUnsupported
}

func datasync(f *os.File) error {
	return f.Sync()
}
