// Package idletrace implements the idle tracer: the three sample-point
// callbacks (before_idle, after_idle, interrupt) that correlate a
// programmed wake with the hardware idle-exit event and publish a
// completed record to the event ring. All mutation funnels through one
// owner cell with non-overlapping callback windows enforced by the idle
// tracepoint contract (the caller is responsible for never invoking
// these methods concurrently for the same CPU).
package idletrace

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/wult-project/wult/internal/clock"
	"github.com/wult-project/wult/internal/cstate"
	"github.com/wult-project/wult/internal/des"
	"github.com/wult-project/wult/internal/eventring"
	"github.com/wult-project/wult/internal/model"
)

// SMINMIReader abstracts the platform SMI/NMI counters so Tracer can
// be exercised without real hardware.
type SMINMIReader interface {
	ReadSMI() uint64
	ReadNMI() uint64
}

// state is the per-CPU engine state mutated only by the pinned CPU:
// one before_idle/after_idle/interrupt triple in flight at a time.
type state struct {
	active          bool
	gotMeasurements bool
	reqCState       int

	smiBI, nmiBI     uint64
	smiAI, nmiAI     uint64
	smiIntr, nmiIntr uint64

	tbi, tai, tintr int64
	ltimeAtAfter    int64
	aiOverheadNS    int64

	before, after cstate.Snapshot
}

// Tracer runs the three sample-point callbacks for one pinned CPU.
type Tracer struct {
	bank   *cstate.Bank
	source des.DelayedEventSource
	conv   des.TimeConverter // optional; nil means TSC deltas are treated as already-ns
	ring   *eventring.Ring
	smiNMI SMINMIReader

	eventsArmed    uint64
	eventsHappened uint64
	lastLDistNS    int64

	discardedWindow  uint64
	discardedNested  uint64
	discardedNegIntr uint64

	st state

	// Warn receives non-fatal diagnostics (TSC failure, ring overflow,
	// non-fatal); defaults to log.Printf.
	Warn func(format string, args ...any)
}

// New builds a Tracer. conv may be nil (HRT variant has no counter-to-ns
// conversion need beyond clock.NowNS, already wall-clock).
func New(bank *cstate.Bank, source des.DelayedEventSource, ring *eventring.Ring, smiNMI SMINMIReader) *Tracer {
	t := &Tracer{
		bank:   bank,
		source: source,
		ring:   ring,
		smiNMI: smiNMI,
	}
	if conv, ok := source.(des.TimeConverter); ok {
		t.conv = conv
	}
	return t
}

func (t *Tracer) warn(format string, args ...any) {
	if t.Warn != nil {
		t.Warn(format, args...)
		return
	}
	log.Printf(format, args...)
}

// NoteArmed records a successful DES.Arm and the ldist it was given;
// the engine calls this right after arming, before the next
// before_idle.
func (t *Tracer) NoteArmed(ldist time.Duration) {
	atomic.AddUint64(&t.eventsArmed, 1)
	atomic.StoreInt64(&t.lastLDistNS, ldist.Nanoseconds())
}

// BeforeIdle is the idle-entry sample point.
func (t *Tracer) BeforeIdle(reqCState int) error {
	t.st = state{
		active:    true,
		reqCState: reqCState,
	}
	t.st.smiBI, t.st.nmiBI = t.smiNMI.ReadSMI(), t.smiNMI.ReadNMI()

	before, err := t.bank.ReadBefore()
	if err != nil {
		t.st.active = false
		return err
	}
	t.st.before = before
	t.st.tbi = t.source.GetTimeBeforeIdle()
	return nil
}

// AfterIdle is the idle-exit sample point.
func (t *Tracer) AfterIdle() {
	if !t.st.active {
		return
	}

	tai := t.source.GetTimeAfterIdle()
	cyc1, ok1 := clock.ReadTSC()
	if !ok1 {
		t.warn("idletrace: TSC read failed before after_idle bracket, overhead will read 0")
	}

	if !t.source.EventHasHappened() {
		// Spurious wake: clear tai, retain tbi, wait
		// for the real idle-exit to call AfterIdle again.
		t.st.tai = 0
		return
	}

	after, err := t.bank.ReadAfter()
	if err != nil {
		t.warn("idletrace: cstate read_after failed: %v", err)
		t.clear()
		return
	}

	ltime := t.source.GetLaunchTime()
	if ltime <= t.st.tbi || ltime >= tai {
		// Window-invariant violation: discard silently.
		atomic.AddUint64(&t.discardedWindow, 1)
		t.clear()
		return
	}

	armed := atomic.LoadUint64(&t.eventsArmed)
	happened := atomic.LoadUint64(&t.eventsHappened)
	if armed-happened != 1 {
		// Nested-wake accounting failure: discard silently.
		atomic.AddUint64(&t.discardedNested, 1)
		t.clear()
		return
	}

	t.st.tai = tai
	t.st.ltimeAtAfter = ltime
	t.st.smiAI, t.st.nmiAI = t.smiNMI.ReadSMI(), t.smiNMI.ReadNMI()
	t.st.after = after
	t.st.gotMeasurements = true

	cyc2, ok2 := clock.ReadTSC()
	if ok1 && ok2 {
		t.st.aiOverheadNS = t.cyclesToNS(cyc2 - cyc1)
	}

	atomic.AddUint64(&t.eventsHappened, 1)
	t.emitIfReady()
}

// Interrupt is the interrupt-handler sample point for the programmed
// wake.
func (t *Tracer) Interrupt(tintr int64) {
	if !t.st.active {
		return
	}
	t.st.tintr = tintr
	t.st.smiIntr, t.st.nmiIntr = t.smiNMI.ReadSMI(), t.smiNMI.ReadNMI()
	t.emitIfReady()
}

// cyclesToNS converts a TSC cycle delta using the DES-provided
// converter when available (BPF variant); otherwise the delta is
// treated as already expressed in ns, which holds for HRT since its
// before/after timestamps come from clock.NowNS rather than read_tsc.
func (t *Tracer) cyclesToNS(delta uint64) int64 {
	if t.conv != nil {
		return t.conv.TimeToNS(delta)
	}
	return int64(delta)
}

// emitIfReady constructs and pushes a record once both after_idle and
// interrupt have contributed their half, or emits a POLL ping as soon
// as the timer interrupt fires for a req_cstate == 0 sample (POLL
// never disables interrupts, so after_idle may never see anything
// coherent).
func (t *Tracer) emitIfReady() {
	if t.st.reqCState == 0 {
		if t.st.tintr != 0 {
			t.pushPing()
			t.clear()
		}
		return
	}
	if t.st.gotMeasurements && t.st.tintr != 0 {
		t.pushData()
		t.clear()
	}
}

func (t *Tracer) pushData() {
	intrLatency := (t.st.tintr - t.st.ltimeAtAfter) - t.st.aiOverheadNS
	if intrLatency < 0 {
		// intr_latency must never be negative after subtracting
		// ai_overhead; a negative result means the overhead estimate
		// overran the real interrupt delay, so the whole datapoint is
		// untrustworthy and gets discarded rather than clamped.
		atomic.AddUint64(&t.discardedNegIntr, 1)
		return
	}

	deltas := t.bank.ComputeDeltas(t.st.before, t.st.after)

	dp := model.Datapoint{
		Type:        model.RecordData,
		SilentTime:  t.st.ltimeAtAfter - t.st.tbi,
		WakeLatency: t.st.tai - t.st.ltimeAtAfter,
		IntrLatency: intrLatency,
		LDist:       atomic.LoadInt64(&t.lastLDistNS),
		ReqCState:   t.st.reqCState,
		TSCCycles:   deltas.TSCCycles,
		MPERFCycles: deltas.MPERFCycles,
		CCCycles:    deltas.CCCycles,
		SMIWake:     t.st.smiAI - t.st.smiBI,
		NMIWake:     t.st.nmiAI - t.st.nmiBI,
		SMIIntr:     t.st.smiIntr - t.st.smiBI,
		NMIIntr:     t.st.nmiIntr - t.st.nmiBI,
	}

	if !t.ring.Push(eventring.Record{Type: model.RecordData, Datapoint: dp}) {
		t.warn("idletrace: event ring overflow, dropping record")
	}
}

func (t *Tracer) pushPing() {
	if !t.ring.Push(eventring.Record{Type: model.RecordPing}) {
		t.warn("idletrace: event ring overflow, dropping ping")
	}
}

func (t *Tracer) clear() {
	t.st = state{}
}

// DiscardedWindow returns the count of records discarded for a
// window-invariant violation.
func (t *Tracer) DiscardedWindow() uint64 { return atomic.LoadUint64(&t.discardedWindow) }

// DiscardedNested returns the count of records discarded for a
// nested-wake accounting failure.
func (t *Tracer) DiscardedNested() uint64 { return atomic.LoadUint64(&t.discardedNested) }

// DiscardedNegativeIntr returns the count of records discarded because
// intr_latency went negative after subtracting ai_overhead.
func (t *Tracer) DiscardedNegativeIntr() uint64 { return atomic.LoadUint64(&t.discardedNegIntr) }

// Active reports whether a before_idle is currently in flight without
// a matching completion; exposed for engine-level Disable draining.
func (t *Tracer) Active() bool { return t.st.active }
