package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig means the RunConfig violates an invariant. Nothing
	// was touched on disk.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrFileAccess means the target area could not be opened, sized or
	// prepared.
	ErrFileAccess = errors.New("file access error")
	// ErrIoFailure means the per-phase error rate crossed the abort
	// threshold. When it happens during measurement, Run returns the
	// partial result alongside the error.
	ErrIoFailure = errors.New("io failure")
	// ErrCancelled means the caller's context ended the run. No result is
	// returned.
	ErrCancelled = errors.New("cancelled")
	// ErrAlreadyRun is returned when an Engine is asked to run twice.
	ErrAlreadyRun = errors.New("engine already used")
)

// RunError is the run-level failure returned by Engine.Run.
type RunError struct {
	Kind  error // one of the Err* sentinels
	State State // state the run was in when it failed
	Err   error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (in %s)", e.Kind, e.State)
	}
	return fmt.Sprintf("%v (in %s): %v", e.Kind, e.State, e.Err)
}

// Is matches the sentinel kind, so errors.Is(err, ErrFileAccess) works.
func (e *RunError) Is(target error) bool { return target == e.Kind }

func (e *RunError) Unwrap() error { return e.Err }

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
