package cstate

import "fmt"

// reader abstracts MSR access so Bank can be exercised without a real
// /dev/cpu/N/msr handle.
type reader interface {
	read(offset int64) (uint64, error)
	close() error
}

// Snapshot holds one before/after reading of every tracked counter.
type Snapshot struct {
	TSC   uint64
	MPERF uint64
	SMI   uint64
	CC    []uint64 // aligned with Bank.tracked(), one value per tracked State
}

// Deltas holds the per-counter difference between two Snapshots, in the
// stable order: slot 0 is always TSC, slot 1 is always
// MPERF, followed by per-C-state cycles in enumeration order.
type Deltas struct {
	TSCCycles   uint64
	MPERFCycles uint64
	SMIDelta    uint64
	CCCycles    []uint64
}

// Bank reads the C-state residency counters for one pinned CPU.
type Bank struct {
	cpu    int
	states []State
	msr    reader
}

// Open detects the CPU family/model (via /proc/cpuinfo) and opens the
// MSR handles needed to track its residency counters. It fails Enable
// when the MSR device node cannot be opened
// — typically because the `msr` kernel module is not loaded.
func Open(cpu int) (*Bank, error) {
	family, model := detectFamilyModel()
	h, err := openMSR(cpu)
	if err != nil {
		return nil, fmt.Errorf("cstate: %w (is the msr kernel module loaded?)", err)
	}
	return &Bank{
		cpu:    cpu,
		states: StatesFor(family, model),
		msr:    h,
	}, nil
}

// newForTest builds a Bank around an injected reader, bypassing /proc
// and /dev/cpu discovery.
func newForTest(cpu int, states []State, r reader) *Bank {
	return &Bank{cpu: cpu, states: states, msr: r}
}

// tracked returns only the states with a real residency MSR; a State
// with MSR == 0 (e.g. "C1", which has no dedicated counter on most
// parts) is enumerated for req_cstate bookkeeping but carries no cycles.
func (b *Bank) tracked() []State {
	out := make([]State, 0, len(b.states))
	for _, s := range b.states {
		if s.MSR != 0 {
			out = append(out, s)
		}
	}
	return out
}

// ReadBefore snapshots all tracked counters on idle-entry.
func (b *Bank) ReadBefore() (Snapshot, error) {
	return b.read()
}

// ReadAfter snapshots all tracked counters on idle-exit.
func (b *Bank) ReadAfter() (Snapshot, error) {
	return b.read()
}

func (b *Bank) read() (Snapshot, error) {
	tracked := b.tracked()
	snap := Snapshot{CC: make([]uint64, len(tracked))}

	tsc, err := b.msr.read(msrTSC)
	if err != nil {
		return snap, err
	}
	snap.TSC = tsc

	mperf, err := b.msr.read(msrMPERF)
	if err != nil {
		return snap, err
	}
	snap.MPERF = mperf

	smi, err := b.msr.read(msrSMI)
	if err != nil {
		return snap, err
	}
	snap.SMI = smi

	for i, s := range tracked {
		v, err := b.msr.read(s.MSR)
		if err != nil {
			return snap, err
		}
		snap.CC[i] = v
	}
	return snap, nil
}

// ComputeDeltas subtracts before from after in the stable TSC/MPERF/Cx
// order the wire encodings expect.
func (b *Bank) ComputeDeltas(before, after Snapshot) Deltas {
	d := Deltas{
		TSCCycles:   after.TSC - before.TSC,
		MPERFCycles: after.MPERF - before.MPERF,
		SMIDelta:    after.SMI - before.SMI,
		CCCycles:    make([]uint64, len(after.CC)),
	}
	for i := range after.CC {
		if i < len(before.CC) {
			d.CCCycles[i] = after.CC[i] - before.CC[i]
		}
	}
	return d
}

// TrackedStates exposes the ordered, MSR-backed C-state list so callers
// can name each CCCycles slot.
func (b *Bank) TrackedStates() []State {
	return b.tracked()
}

// Close releases the MSR handle.
func (b *Bank) Close() error {
	if b.msr == nil {
		return nil
	}
	return b.msr.close()
}
