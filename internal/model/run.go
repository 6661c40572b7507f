package model

import "github.com/wult-project/wult/internal/observer"

// RunMetadata is the header attached to every `wult start` invocation's
// output: enough to reproduce and interpret a run without re-deriving
// it from the raw datapoint stream.
type RunMetadata struct {
	RunID         string `json:"run_id"`
	Tool          string `json:"tool"`
	Version       string `json:"version"`
	Hostname      string `json:"hostname"`
	KernelVersion string `json:"kernel_version"`
	Arch          string `json:"arch"`
	CPUs          int    `json:"cpus"`
	Variant       string `json:"des_variant"`
	CPUNum        int    `json:"cpu_num"`
	MinT          int64  `json:"min_t"`
	MaxT          int64  `json:"max_t"`
	Timestamp     string `json:"timestamp"`
}

// Run is the full JSON output of one measurement run: the header plus
// every DATA datapoint collected before Disable. PING records are not
// included.
type Run struct {
	Metadata   RunMetadata               `json:"metadata"`
	Datapoints []Datapoint               `json:"datapoints"`
	Dropped    uint64                    `json:"dropped"`
	Discarded  DiscardStats              `json:"discarded"`
	Overhead   *observer.OverheadSummary `json:"overhead,omitempty"`
}

// DiscardStats tallies the per-datapoint discard reasons.
type DiscardStats struct {
	Window       uint64 `json:"window_violation"`
	Nested       uint64 `json:"nested_wake"`
	NegativeIntr uint64 `json:"negative_intr_latency"`
}
