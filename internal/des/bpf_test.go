package des

import (
	"testing"

	ebpfsupport "github.com/wult-project/wult/internal/ebpf"
)

func TestBPFTimeToNS_ZeroFreqReturnsZero(t *testing.T) {
	b := NewBPF(nil, nil, 0)
	if got := b.TimeToNS(1_000_000); got != 0 {
		t.Errorf("TimeToNS() = %d, want 0 when tscFreq is unset", got)
	}
}

func TestBPFTimeToNS_ConvertsCyclesToNanoseconds(t *testing.T) {
	// A 2 GHz TSC: 2_000_000_000 cycles per second, so 1 cycle = 0.5ns.
	b := NewBPF(nil, nil, 2_000_000_000)
	got := b.TimeToNS(4_000_000)
	want := int64(2_000_000)
	if got != want {
		t.Errorf("TimeToNS(4_000_000) = %d, want %d", got, want)
	}
}

func TestBPFEventHasHappened_InitialFalse(t *testing.T) {
	b := NewBPF(nil, nil, 0)
	if b.EventHasHappened() {
		t.Error("EventHasHappened() = true before any event, want false")
	}
	if got := b.GetLaunchTime(); got != 0 {
		t.Errorf("GetLaunchTime() = %d, want 0 before Arm", got)
	}
}

func TestBPFDrainEvent_EmptyReturnsFalse(t *testing.T) {
	b := NewBPF(nil, nil, 0)
	if _, ok := b.drainEvent(); ok {
		t.Error("drainEvent() on a fresh BPF source: ok = true, want false")
	}
}

func TestBPFGetTimeBeforeAfterIdle_AlwaysZero(t *testing.T) {
	b := NewBPF(nil, nil, 0)
	if got := b.GetTimeBeforeIdle(); got != 0 {
		t.Errorf("GetTimeBeforeIdle() = %d, want 0 (BPF variant carries time in-event)", got)
	}
	if got := b.GetTimeAfterIdle(); got != 0 {
		t.Errorf("GetTimeAfterIdle() = %d, want 0 (BPF variant carries time in-event)", got)
	}
}

// TestBPFInit_MissingObjectFileFails exercises Init()'s load path without
// a real kernel BPF program: wult.o is not built by the test suite, and
// CO-RE/BTF may also be unavailable, so TryLoad must fail cleanly either
// way rather than panicking.
func TestBPFInit_MissingObjectFileFails(t *testing.T) {
	loader := ebpfsupport.NewLoader(false)
	b := NewBPF(loader, &ebpfsupport.WultProgram, 1_000_000_000)
	defer b.Exit()

	if err := b.Init(); err == nil {
		t.Error("Init() with no compiled BPF object on disk: error = nil, want non-nil")
	}
}

// TestBPFArm_RequiresLoadedMaps documents that Arm cannot run against a
// BPF source that was never successfully Init'd: the config/launch_time
// maps it writes to only exist once a real kernel program is loaded,
// which this suite cannot do without CO-RE support and a compiled
// wult.o. Real map read/write coverage for Arm lives in an integration
// environment with both present.
func TestBPFArm_RequiresLoadedMaps(t *testing.T) {
	loader := ebpfsupport.NewLoader(false)
	b := NewBPF(loader, &ebpfsupport.WultProgram, 1_000_000_000)

	if err := b.Init(); err == nil {
		t.Skip("BPF object loaded successfully in this environment; Arm() map-write coverage belongs in an integration test")
	}

	// b.loaded stays nil after a failed Init, so Arm must report an
	// error rather than dereferencing it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Arm() panicked on an un-Init'd source: %v", r)
			}
		}()
		if _, err := b.Arm(1_000_000); err == nil {
			t.Error("Arm() without a loaded program: error = nil, want non-nil")
		}
	}()
}
