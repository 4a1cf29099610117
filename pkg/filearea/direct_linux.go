//go:build linux

package filearea

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var errFallocateUnsupported = errors.New("fallocate not supported")

func openDirect(path string, flags int) (*os.File, error) {
	return os.OpenFile(path, flags|unix.O_DIRECT, 0)
}

// isDirectRejection matches the errors filesystems use to refuse O_DIRECT
// (tmpfs and some FUSE mounts return EINVAL at open or on first transfer).
func isDirectRejection(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, ErrDirectUnsupported)
}

func preallocate(f *os.File, size int64) error {
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
		return errFallocateUnsupported
	}
	return err
}

func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
