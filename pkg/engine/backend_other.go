//go:build !linux

package engine

import (
	"github.com/runningwild/storagebench/pkg/filearea"
)

func newUringBackend(area *filearea.Area, qd int) (backend, error) {
	return nil, errBackendUnsupported
}

func newAIOBackend(area *filearea.Area, qd int) (backend, error) {
	return nil, errBackendUnsupported
}
