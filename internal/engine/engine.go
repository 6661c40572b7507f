// Package engine implements the engine loop: Enable, the steady-state
// re-arm cycle, and Disable, wired around one DelayedEventSource
// variant. Engine is generic over the concrete variant (HRT or BPF) so
// the hot path never dispatches through an interface.
package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/wult-project/wult/internal/clock"
	"github.com/wult-project/wult/internal/cstate"
	"github.com/wult-project/wult/internal/des"
	"github.com/wult-project/wult/internal/eventring"
	"github.com/wult-project/wult/internal/idletrace"
	"github.com/wult-project/wult/internal/model"
	"github.com/wult-project/wult/internal/output"
)

// openBank is a test seam: Enable calls this instead of cstate.Open
// directly so tests can inject a fake Bank without real MSR hardware,
// the same package-level function-variable pattern clock.readTSCRaw uses.
var openBank = cstate.Open

// Source is the capability set Engine requires of its type parameter:
// the core DelayedEventSource plus asynchronous wake notification.
type Source interface {
	des.DelayedEventSource
	des.WakeNotifier
}

// Engine runs one measurement cycle for a single pinned CPU, generic
// over its concrete DES variant D.
type Engine[D Source] struct {
	cfg      model.EngineConfig
	source   D
	bank     *cstate.Bank
	tracer   *idletrace.Tracer
	ring     *eventring.Ring
	progress *output.Progress
	rng      *rand.Rand

	mu      sync.Mutex
	enabled bool
	stopCh  chan struct{}
	done    chan struct{}

	// OnRecord, if set, is invoked for every DATA or PING record as it
	// is popped off the ring (the CLI and MCP front-ends wire this to
	// collect DATA records for the run's JSON output).
	OnRecord func(eventring.Record)
}

// New builds an Engine bound to source and cfg. cfg is not validated
// here; call Enable to validate and start the run.
func New[D Source](source D, cfg model.EngineConfig, progress *output.Progress) *Engine[D] {
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = eventring.MinCapacity
	}
	return &Engine[D]{
		cfg:      cfg,
		source:   source,
		ring:     eventring.New(cfg.RingCapacity),
		progress: progress,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enable performs the engine's startup sequence: CSB init, DES init,
// register the idle tracer, prime the first arm.
func (e *Engine[D]) Enable(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	bank, err := openBank(e.cfg.CPUNum)
	if err != nil {
		return &model.SetupError{Reason: "cstate bank open failed", Err: err}
	}

	if err := e.source.Init(); err != nil {
		bank.Close()
		return &model.SetupError{Reason: "DES init failed", Err: err}
	}

	e.bank = bank
	e.tracer = idletrace.New(bank, e.source, e.ring, procSMINMI{cpu: e.cfg.CPUNum})
	e.tracer.Warn = func(format string, args...any) { e.progress.Log(format, args...) }

	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})

	if err := e.kickTimer(); err != nil {
		e.source.Exit()
		bank.Close()
		return &model.SetupError{Reason: "initial arm failed", Err: err}
	}
	if err := e.tracer.BeforeIdle(e.cfg.ReqCState); err != nil {
		e.progress.Log("before_idle failed: %v", err)
	}

	go e.run(ctx)

	e.mu.Lock()
	e.enabled = true
	e.mu.Unlock()

	e.progress.Log("engine enabled: cpu=%d min_t=%dns max_t=%dns req_cstate=%d",
		e.cfg.CPUNum, e.cfg.MinT, e.cfg.MaxT, e.cfg.ReqCState)
	return nil
}

// run is the steady-state loop: wait for a wake notification,
// run after_idle/interrupt, drain whatever the tracer emitted, re-arm,
// and prime the next before_idle.
func (e *Engine[D]) run(ctx context.Context) {
	defer close(e.done)
	wakeCh := e.source.WakeCh()
	emitted := 0

	for {
		select {
		case <-ctx.Done():
			e.progress.Log("engine stopping: %v", ctx.Err())
			return
		case <-e.stopCh:
			return
		case <-wakeCh:
		}

		tintr := clock.NowNS()
		e.tracer.AfterIdle()
		e.tracer.Interrupt(tintr)

		for {
			rec, ok := e.ring.Pop()
			if !ok {
				break
			}
			if e.OnRecord != nil {
				e.OnRecord(rec)
			}
			if rec.Type == model.RecordData {
				emitted++
			}
		}

		if dropped := e.ring.Dropped(); dropped > 0 {
			e.progress.Log("event ring: %d records dropped so far", dropped)
		}

		if e.cfg.Count > 0 && emitted >= e.cfg.Count {
			e.progress.Log("collected %d datapoints, stopping", emitted)
			return
		}

		if err := e.kickTimer(); err != nil {
			e.progress.Log("re-arm failed, stopping: %v", err)
			return
		}
		if err := e.tracer.BeforeIdle(e.cfg.ReqCState); err != nil {
			e.progress.Log("before_idle failed: %v", err)
		}
	}
}

// kickTimer draws a uniform ldist in [min_t, max_t) and arms the DES.
// An arm failure is reported but not fatal: the
// engine re-attempts on the next tick.
func (e *Engine[D]) kickTimer() error {
	ldist := e.drawLDist()
	_, err := e.source.Arm(ldist)
	if err != nil {
		e.progress.Log("%v", &model.ArmError{LDist: ldist.Nanoseconds(), Err: err})
		return nil
	}
	e.tracer.NoteArmed(ldist)
	return nil
}

func (e *Engine[D]) drawLDist() time.Duration {
	span := e.cfg.MaxT - e.cfg.MinT
	n := e.cfg.MinT
	if span > 0 {
		n += e.rng.Int63n(span)
	}
	return time.Duration(n) * time.Nanosecond
}

// Disable unregisters, cancels the DES, drains the ring, frees the
// CSB, and waits for the run goroutine to exit before returning.
func (e *Engine[D]) Disable() error {
	e.mu.Lock()
	if !e.enabled {
		e.mu.Unlock()
		return nil
	}
	e.enabled = false
	e.mu.Unlock()

	close(e.stopCh)
	<-e.done

	if err := e.source.Exit(); err != nil {
		e.progress.Log("DES exit error: %v", err)
	}

	for _, rec := range e.ring.Drain() {
		if e.OnRecord != nil {
			e.OnRecord(rec)
		}
	}

	if err := e.bank.Close(); err != nil {
		e.progress.Log("cstate bank close error: %v", err)
	}

	e.progress.Log("engine disabled: dropped=%d discarded_window=%d discarded_nested=%d discarded_neg_intr=%d",
		e.ring.Dropped(), e.tracer.DiscardedWindow(), e.tracer.DiscardedNested(), e.tracer.DiscardedNegativeIntr())
	return nil
}

// Stats reports ring and tracer counters for the run metadata/summary.
func (e *Engine[D]) Stats() (dropped, discardedWindow, discardedNested, discardedNegIntr uint64) {
	return e.ring.Dropped(), e.tracer.DiscardedWindow(), e.tracer.DiscardedNested(), e.tracer.DiscardedNegativeIntr()
}
