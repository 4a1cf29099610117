package engine

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/runningwild/storagebench/pkg/filearea"
)

// backendFactory replaces newBackend, for tests.
type backendFactory func(area *filearea.Area, qd int) (backend, error)

// Defaults for the executor's failure policy.
const (
	DefaultRetryLimit    = 1
	DefaultAbortFraction = 0.05
	DefaultOpTimeout     = 10 * time.Second
	defaultTick          = 100 * time.Millisecond
)

// Observer receives engine events as they happen. Calls come from the
// run's coordinating goroutine; implementations must not block.
type Observer interface {
	PhaseStarted(phase string)
	OpCompleted(phase string, latency time.Duration, bytes int)
	OpFailed(phase string, err error)
	SecondCompleted(p RunPoint)
}

type options struct {
	kind          Kind
	log           logr.Logger
	observer      Observer
	progress      func(RunPoint)
	retryLimit    int
	abortFraction float64
	opTimeout     time.Duration
	tick          time.Duration
	seed          int64
	seedSet       bool
	factory       backendFactory
}

func defaultOptions() options {
	return options{
		kind:          KindAuto,
		log:           logr.Discard(),
		retryLimit:    DefaultRetryLimit,
		abortFraction: DefaultAbortFraction,
		opTimeout:     DefaultOpTimeout,
		tick:          defaultTick,
	}
}

// Option customises an Engine.
type Option func(*options)

// WithBackend selects the completion mechanism. Default is KindAuto.
func WithBackend(k Kind) Option {
	return func(o *options) { o.kind = k }
}

func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithProgress is called once for every finished measurement second.
func WithProgress(fn func(RunPoint)) Option {
	return func(o *options) { o.progress = fn }
}

// WithRetryLimit sets how many times a failed operation is reissued at the
// same offset before it is dropped.
func WithRetryLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retryLimit = n
		}
	}
}

// WithAbortFraction sets the dropped/issued ratio above which a run aborts.
func WithAbortFraction(f float64) Option {
	return func(o *options) {
		if f >= 0 {
			o.abortFraction = f
		}
	}
}

// WithOpTimeout bounds how long one operation may stay outstanding before
// it counts as failed.
func WithOpTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.opTimeout = d
		}
	}
}

// WithSeed fixes the random workload's seed. By default every run draws a
// fresh one.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed, o.seedSet = seed, true }
}

func withTick(d time.Duration) Option {
	return func(o *options) { o.tick = d }
}

func withBackendFactory(f backendFactory) Option {
	return func(o *options) { o.factory = f }
}
