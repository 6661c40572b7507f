package des

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wult-project/wult/internal/clock"
)

// HRT granularity and bounds: ldist_gran is the timer's effective
// resolution, ldist_min/max bound what Arm will accept.
const (
	HRTLDistMin = 1 * time.Nanosecond
	HRTLDistMax = 20 * time.Millisecond
)

// HRT is the high-resolution-timer DES variant. It models a pinned
// hrtimer in relative-monotonic mode: the timer callback fires the wake
// hook and does not restart itself — the engine loop re-arms.
type HRT struct {
	mu       sync.Mutex
	timer    *time.Timer
	ltime    int64
	happened atomic.Bool
	wakeCh   chan struct{}

	// Resolution reports the granularity the caller should expect from
	// Arm, analogous to hrtimer_resolution.
	Resolution time.Duration

	// OnFire, if set, is invoked from the timer goroutine when the
	// programmed wake fires, in addition to the WakeCh notification.
	OnFire func()
}

// NewHRT creates an HRT source. onFire, if non-nil, is called (from a
// timer-internal goroutine) every time an armed event fires; the
// engine normally drives itself off WakeCh instead and leaves onFire nil.
func NewHRT(onFire func()) *HRT {
	return &HRT{
		Resolution: time.Microsecond,
		OnFire:     onFire,
		wakeCh:     make(chan struct{}, 1),
	}
}

// WakeCh implements des.WakeNotifier.
func (h *HRT) WakeCh() <-chan struct{} { return h.wakeCh }

func (h *HRT) Init() error { return nil }

func (h *HRT) Exit() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	return nil
}

// Arm programs the wake. ldist must lie in [HRTLDistMin, HRTLDistMax];
// values outside that range are rejected rather than silently clamped,
// since a caller asking for an out-of-range ldist is a programming error.
func (h *HRT) Arm(ldist time.Duration) (int64, error) {
	if ldist < HRTLDistMin || ldist > HRTLDistMax {
		return 0, fmt.Errorf("des/hrt: ldist %s out of range [%s, %s]", ldist, HRTLDistMin, HRTLDistMax)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	h.happened.Store(false)
	select {
	case <-h.wakeCh:
	default:
	}
	h.ltime = clock.NowNS() + ldist.Nanoseconds()

	h.timer = time.AfterFunc(ldist, func() {
		h.happened.Store(true)
		select {
		case h.wakeCh <- struct{}{}:
		default:
		}
		if h.OnFire != nil {
			h.OnFire()
		}
	})

	return h.ltime, nil
}

func (h *HRT) EventHasHappened() bool {
	return h.happened.Load()
}

func (h *HRT) GetLaunchTime() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ltime
}

func (h *HRT) GetTimeBeforeIdle() int64 { return clock.NowNS() }
func (h *HRT) GetTimeAfterIdle() int64  { return clock.NowNS() }
