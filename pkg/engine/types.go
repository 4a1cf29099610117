package engine

import (
	"fmt"
	"strings"

	"github.com/runningwild/storagebench/pkg/workload"
)

// TestType is the access pattern of a run.
type TestType string

const (
	SeqRead   TestType = "SEQ_READ"
	SeqWrite  TestType = "SEQ_WRITE"
	RandRead  TestType = "RAND_READ"
	RandWrite TestType = "RAND_WRITE"
)

// TestTypes lists every supported access pattern.
var TestTypes = []TestType{SeqRead, SeqWrite, RandRead, RandWrite}

// ParseTestType accepts the canonical names case-insensitively, plus the
// fio-style aliases read, write, randread and randwrite.
func ParseTestType(s string) (TestType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SEQ_READ", "READ":
		return SeqRead, nil
	case "SEQ_WRITE", "WRITE":
		return SeqWrite, nil
	case "RAND_READ", "RANDREAD":
		return RandRead, nil
	case "RAND_WRITE", "RANDWRITE":
		return RandWrite, nil
	}
	return "", fmt.Errorf("unknown test type %q", s)
}

func (t TestType) Valid() bool {
	switch t {
	case SeqRead, SeqWrite, RandRead, RandWrite:
		return true
	}
	return false
}

func (t TestType) IsWrite() bool { return t == SeqWrite || t == RandWrite }

func (t TestType) IsRandom() bool { return t == RandRead || t == RandWrite }

// Pattern maps the test type onto the workload generator's layout.
func (t TestType) Pattern() workload.Pattern {
	if t.IsRandom() {
		return workload.Random
	}
	return workload.Sequential
}

// RunConfig is the caller-supplied description of one run. It is treated
// as immutable once handed to Engine.Run.
type RunConfig struct {
	Path           string   `json:"path" yaml:"path"`
	TestType       TestType `json:"testType" yaml:"test_type"`
	FileSizeBytes  int64    `json:"fileSizeBytes" yaml:"file_size_bytes"`
	BlockSizeBytes int      `json:"blockSizeBytes" yaml:"block_size_bytes"`
	QueueDepth     int      `json:"queueDepth" yaml:"queue_depth"`
	DurationSec    int      `json:"durationSec" yaml:"duration_sec"`
	WarmupSec      int      `json:"warmupSec" yaml:"warmup_sec"`
	UseDirect      bool     `json:"useDirect" yaml:"use_direct"`
}

// RunPoint is the throughput of one whole second of the measurement phase.
type RunPoint struct {
	SecondIndex    int     `json:"secondIndex" yaml:"second_index"`
	ThroughputMBps float64 `json:"throughputMBps" yaml:"throughput_mbps"`
}

// RunResult is produced once per run. Rates and latencies cover the
// measurement phase only; MB means 10^6 bytes.
type RunResult struct {
	ThroughputMBps float64    `json:"throughputMBps" yaml:"throughput_mbps"`
	IOPS           float64    `json:"iops" yaml:"iops"`
	AvgLatencyUs   float64    `json:"avgLatencyUs" yaml:"avg_latency_us"`
	P99LatencyUs   float64    `json:"p99LatencyUs" yaml:"p99_latency_us"`
	MaxLatencyUs   float64    `json:"maxLatencyUs" yaml:"max_latency_us"`
	BytesCompleted int64      `json:"bytesCompleted" yaml:"bytes_completed"`
	OpsCompleted   int64      `json:"opsCompleted" yaml:"ops_completed"`
	EngineLabel    string     `json:"engineLabel" yaml:"engine_label"`
	Series         []RunPoint `json:"series" yaml:"series"`
	Note           string     `json:"note,omitempty" yaml:"note,omitempty"`
}

// State is a step of a run's lifecycle. Each engine walks
// INIT -> PREPARED -> WARMUP -> MEASURING -> DONE once, or ends in FAILED.
type State int

const (
	StateInit State = iota
	StatePrepared
	StateWarmup
	StateMeasuring
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePrepared:
		return "PREPARED"
	case StateWarmup:
		return "WARMUP"
	case StateMeasuring:
		return "MEASURING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// canAdvance reports whether from -> to is a legal transition.
func canAdvance(from, to State) bool {
	if to == StateFailed {
		return from != StateDone && from != StateFailed
	}
	return to == from+1 && to <= StateDone
}
