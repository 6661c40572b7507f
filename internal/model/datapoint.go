// Package model defines the data types produced by the wult measurement
// engine: the per-wake Datapoint record, run configuration, and the typed
// error kinds the engine and its collaborators raise.
package model

import (
	"encoding/json"
	"fmt"
)

// RecordType distinguishes a normal measurement from a POLL-path ping
// used to force the consumer to wake the CPU out of POLL.
type RecordType uint8

const (
	// RecordData is a fully measured datapoint.
	RecordData RecordType = iota
	// RecordPing carries no measurement fields; it exists only to wake
	// a user-space consumer blocked on the ring while the CPU spins in POLL.
	RecordPing
)

func (t RecordType) String() string {
	switch t {
	case RecordData:
		return "DATA"
	case RecordPing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

func (t RecordType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *RecordType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "DATA":
		*t = RecordData
	case "PING":
		*t = RecordPing
	default:
		return fmt.Errorf("model: unknown record type %q", s)
	}
	return nil
}

// DriverField is an ordered driver-specific (name, value) pair appended
// to a Datapoint after the common field set.
type DriverField struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

// Datapoint is the immutable record emitted to the consumer once both
// after_idle and interrupt have reported in for one wake cycle.
type Datapoint struct {
	Type RecordType `json:"type"`

	// SilentTime is ltime - tbi: time actually spent idle, in ns.
	SilentTime int64 `json:"silent_time"`
	// WakeLatency is tai - ltime, in ns.
	WakeLatency int64 `json:"wake_latency"`
	// IntrLatency is tintr - ltime - ai_overhead, in ns.
	IntrLatency int64 `json:"intr_latency"`
	// LDist is the requested launch distance for this cycle, in ns.
	LDist int64 `json:"ldist"`
	// ReqCState is the C-state index requested by the OS on idle entry.
	// 0 means POLL; POLL datapoints never reach here as RecordData.
	ReqCState int `json:"req_cstate"`

	TSCCycles   uint64 `json:"tsc_cycles"`
	MPERFCycles uint64 `json:"mperf_cycles"`
	// CCCycles holds per-C-state cycle deltas, ordered by C-state index
	// as enumerated by the C-state bank for this CPU family.
	CCCycles []uint64 `json:"cc_cycles,omitempty"`

	SMIWake uint64 `json:"smi_wake"`
	NMIWake uint64 `json:"nmi_wake"`
	SMIIntr uint64 `json:"smi_intr"`
	NMIIntr uint64 `json:"nmi_intr"`

	// DrvFields carries variant-specific counters (e.g. BPF perf-event
	// array entries beyond TSC/MPERF) in the order the driver reports them.
	DrvFields []DriverField `json:"drv_fields,omitempty"`
}

// EngineConfig is the control surface the consumer supplies at Enable
// time: min_t/max_t bound the uniform ldist draw, CPUNum pins the
// run to a single target CPU, Count bounds how many datapoints a run
// collects (0 = unbounded, run until Disable).
type EngineConfig struct {
	MinT   int64 // ns, 1 <= MinT < MaxT
	MaxT   int64 // ns, MaxT <= 20_000_000
	CPUNum int
	Count  int

	// ReqCState is the target C-state this run measures (0 = POLL).
	// Real wult learns this from the kernel's cpuidle governor on each
	// idle entry; a user-space-only rewrite has no governor to observe,
	// so the run is pinned to one target C-state for its duration,
	// matching wult's own --cstate flag.
	ReqCState int

	// RingCapacity is the requested number of slots in the event ring.
	// It is not validated here: eventring.New rounds it up to at least
	// 4096 and to a power of two.
	RingCapacity int
}

// Validate checks the invariants the control surface requires.
func (c EngineConfig) Validate() error {
	if c.MinT < 1 {
		return &SetupError{Reason: "min_t must be >= 1ns"}
	}
	if c.MinT >= c.MaxT {
		return &SetupError{Reason: "min_t must be strictly less than max_t"}
	}
	if c.MaxT > 20_000_000 {
		return &SetupError{Reason: "max_t must be <= 20ms"}
	}
	if c.CPUNum < 0 {
		return &SetupError{Reason: "cpu_num must be >= 0"}
	}
	return nil
}
