// Package metrics exports engine events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runningwild/storagebench/pkg/engine"
)

// Exporter implements engine.Observer. Each Exporter owns its registry, so
// several can live in one process (and in tests).
type Exporter struct {
	reg *prometheus.Registry

	phase      prometheus.Gauge
	ops        *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	throughput prometheus.Gauge
	seconds    prometheus.Counter
}

func NewExporter() *Exporter {
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storagebench_measuring",
			Help: "1 while a measurement phase is running, 0 during warmup",
		}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storagebench_ops_total",
			Help: "Completed operations",
		}, []string{"phase"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storagebench_bytes_total",
			Help: "Bytes transferred by completed operations",
		}, []string{"phase"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storagebench_errors_total",
			Help: "Failed operation attempts",
		}, []string{"phase", "error_type"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storagebench_latency_us",
			Help:    "Operation latency in microseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 24), // 1us to ~8s
		}, []string{"phase"}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storagebench_throughput_mbps",
			Help: "Throughput of the last finished measurement second, in MB/s",
		}),
		seconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storagebench_seconds_total",
			Help: "Finished measurement seconds",
		}),
	}
	e.reg.MustRegister(e.phase, e.ops, e.bytes, e.errors, e.latency, e.throughput, e.seconds)
	return e
}

// Registry exposes the underlying registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry { return e.reg }

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg})
}

// ListenAndServe serves /metrics on addr until the listener fails.
func (e *Exporter) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return http.ListenAndServe(addr, mux)
}

func (e *Exporter) PhaseStarted(phase string) {
	if phase == engine.PhaseMeasure {
		e.phase.Set(1)
	} else {
		e.phase.Set(0)
	}
}

func (e *Exporter) OpCompleted(phase string, latency time.Duration, bytes int) {
	e.ops.WithLabelValues(phase).Inc()
	e.bytes.WithLabelValues(phase).Add(float64(bytes))
	e.latency.WithLabelValues(phase).Observe(float64(latency) / float64(time.Microsecond))
}

func (e *Exporter) OpFailed(phase string, err error) {
	e.errors.WithLabelValues(phase, errorType(err)).Inc()
}

func (e *Exporter) SecondCompleted(p engine.RunPoint) {
	e.throughput.Set(p.ThroughputMBps)
	e.seconds.Inc()
}

// errorType keeps the label set small: errno names for syscall failures,
// "other" for everything else.
func errorType(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errnoName(errno)
	}
	switch {
	case errors.Is(err, engine.ErrShortTransfer):
		return "short_transfer"
	case errors.Is(err, engine.ErrOpTimeout):
		return "timeout"
	}
	return "other"
}

func errnoName(errno syscall.Errno) string {
	switch errno {
	case syscall.EIO:
		return "EIO"
	case syscall.ENOSPC:
		return "ENOSPC"
	case syscall.EINVAL:
		return "EINVAL"
	case syscall.EAGAIN:
		return "EAGAIN"
	}
	return "errno"
}

var _ engine.Observer = (*Exporter)(nil)
