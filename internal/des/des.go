// Package des implements the delayed-event source: the
// polymorphic device that arms a wake at T_launch = now + ldist. Two
// concrete variants exist — HRT (a pinned high-resolution timer) and BPF
// (a kernel-sandboxed timer with perf-event MSR reads) — selected once at
// Enable and held as a concrete type by the engine to avoid dynamic
// dispatch on the hot path.
package des

import "time"

// DelayedEventSource is the minimal capability set every variant
// implements.
type DelayedEventSource interface {
	// Init prepares the source (opens devices, loads programs). Called
	// once at Enable.
	Init() error

	// Exit tears the source down. Called once at Disable.
	Exit() error

	// Arm programs a wake ldist nanoseconds from now and stamps the
	// launch time atomically with arming. Returns the stamped launch
	// time in ns (boot-time clock), or an error if the request was
	// rejected.
	Arm(ldist time.Duration) (launchTime int64, err error)

	// EventHasHappened reports whether the most recently armed event has
	// fired. It is allowed to return a false negative only while
	// GetLaunchTime() is still in the future.
	EventHasHappened() bool

	// GetLaunchTime returns the ltime stamped by the most recent Arm.
	GetLaunchTime() int64

	// GetTimeBeforeIdle and GetTimeAfterIdle are the idle-entry/exit
	// timebase the tracer uses to stamp tbi/tai; both are normally
	// clock.NowNS(), overridable per variant.
	GetTimeBeforeIdle() int64
	GetTimeAfterIdle() int64
}

// TimeConverter is implemented by counter-based variants (BPF) that need
// to convert a raw counter delta into nanoseconds.
type TimeConverter interface {
	TimeToNS(counterDelta uint64) int64
}

// TraceDataProvider is implemented by variants that can surface raw
// trace/debug payloads alongside a datapoint.
type TraceDataProvider interface {
	GetTraceData() ([]byte, error)
}

// WakeNotifier is implemented by variants that can push an asynchronous
// notification when a programmed wake fires, letting the engine block
// on a channel instead of polling EventHasHappened.
type WakeNotifier interface {
	WakeCh() <-chan struct{}
}

// Variant tags the concrete DES implementation in use, reported in run
// metadata and capability checks.
type Variant string

const (
	VariantHRT Variant = "hrt"
	VariantBPF Variant = "bpf"
)
