package des

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cilium/ebpf/perf"

	ebpfsupport "github.com/wult-project/wult/internal/ebpf"
)

// bpfEvent mirrors the C struct the tracepoint handler writes into the
// "events" perf-event array: a timestamp-converted TSC/MPERF delta pair
// plus the SMI count observed since the last arm, stamped at cpu_idle
// exit.
type bpfEvent struct {
	LaunchTime  int64
	WakeTSC     uint64
	WakeMPERF   uint64
	SMICount    uint32
	SpuriousCnt uint32
}

const bpfEventSize = 8 + 8 + 8 + 4 + 4

// BPF is the kernel-sandboxed DES variant: a tracepoint-attached BPF
// program times idle exit in-kernel and reports through a perf-event
// array, avoiding the syscall round trip HRT needs to read the clock
// from userspace.
type BPF struct {
	loader *ebpfsupport.Loader
	spec   *ebpfsupport.ProgramSpec

	mu      sync.Mutex
	loaded  *ebpfsupport.LoadedProgram
	reader  *perf.Reader
	cancel  context.CancelFunc
	tscFreq uint64 // cycles per nanosecond scaling, x1e9 fixed point

	ltime     int64
	happened  atomic.Bool
	lastEvent bpfEvent
	events    chan bpfEvent
	wakeCh    chan struct{}
}

// WakeCh implements des.WakeNotifier.
func (b *BPF) WakeCh() <-chan struct{} { return b.wakeCh }

// NewBPF constructs a BPF DES bound to loader/spec (normally
// ebpf.NewLoader(verbose) and the package-level ebpf.WultProgram).
func NewBPF(loader *ebpfsupport.Loader, spec *ebpfsupport.ProgramSpec, tscFreqHz uint64) *BPF {
	return &BPF{
		loader:  loader,
		spec:    spec,
		tscFreq: tscFreqHz,
		events:  make(chan bpfEvent, 1),
		wakeCh:  make(chan struct{}, 1),
	}
}

func (b *BPF) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	prog, err := b.loader.TryLoad(ctx, b.spec)
	if err != nil {
		cancel()
		return fmt.Errorf("des/bpf: %w", err)
	}

	eventsMap := prog.Collection.Maps[b.spec.RingMap]
	if eventsMap == nil {
		prog.Close()
		cancel()
		return fmt.Errorf("des/bpf: map %q not found in collection", b.spec.RingMap)
	}

	rd, err := perf.NewReader(eventsMap, 4096)
	if err != nil {
		prog.Close()
		cancel()
		return fmt.Errorf("des/bpf: perf reader: %w", err)
	}

	b.loaded = prog
	b.reader = rd
	b.cancel = cancel

	go b.readLoop(ctx)

	return nil
}

func (b *BPF) readLoop(ctx context.Context) {
	for {
		record, err := b.reader.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) {
				return
			}
			continue
		}
		if record.LostSamples > 0 {
			// A dropped sample means a wake was observed in-kernel but
			// never reached userspace; EventHasHappened will still flip
			// true from the next good sample, so no special handling.
			continue
		}
		if len(record.RawSample) < bpfEventSize {
			continue
		}

		var ev bpfEvent
		if err := binary.Read(bytes.NewReader(record.RawSample), binary.LittleEndian, &ev); err != nil {
			continue
		}

		select {
		case b.events <- ev:
		case <-ctx.Done():
			return
		default:
			// Drop the stale pending event; only the most recent wake
			// matters once Arm has moved on.
			select {
			case <-b.events:
			default:
			}
			b.events <- ev
		}

		b.happened.Store(true)
		select {
		case b.wakeCh <- struct{}{}:
		default:
		}
	}
}

func (b *BPF) Exit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	if b.reader != nil {
		b.reader.Close()
	}
	if b.loaded != nil {
		b.loaded.Close()
	}
	return nil
}

// configMap keys: slot 0 holds the minimum ldist, slot 1 the maximum.
const (
	cfgKeyMinLdistNS = uint32(0)
	cfgKeyMaxLdistNS = uint32(1)
)

// Arm writes the given ldist into the config map as both the minimum
// and the maximum bound and clears the happened flag, so the in-kernel
// draw between the two bounds always yields exactly ldist. The run's
// [min_t, max_t] range is not passed to the kernel side; the uniform
// draw over it happens in the engine before Arm is called. The
// returned launch time is whatever the launch_time map holds when Arm
// reads it.
func (b *BPF) Arm(ldist time.Duration) (int64, error) {
	b.mu.Lock()
	if b.loaded == nil {
		b.mu.Unlock()
		return 0, fmt.Errorf("des/bpf: Arm called before a successful Init")
	}
	cfgMap := b.loaded.Collection.Maps[b.spec.ConfigMap]
	ltMap := b.loaded.Collection.Maps[b.spec.LaunchTimeMap]
	b.mu.Unlock()

	if cfgMap == nil || ltMap == nil {
		return 0, fmt.Errorf("des/bpf: config/launch_time maps not loaded")
	}

	ns := uint64(ldist.Nanoseconds())
	if err := cfgMap.Put(cfgKeyMinLdistNS, ns); err != nil {
		return 0, fmt.Errorf("des/bpf: write config: %w", err)
	}
	if err := cfgMap.Put(cfgKeyMaxLdistNS, ns); err != nil {
		return 0, fmt.Errorf("des/bpf: write config: %w", err)
	}

	b.happened.Store(false)
	select {
	case <-b.events:
	default:
	}
	select {
	case <-b.wakeCh:
	default:
	}

	var ltime uint64
	if err := ltMap.Lookup(uint32(0), &ltime); err == nil {
		atomic.StoreInt64(&b.ltime, int64(ltime))
	}

	return atomic.LoadInt64(&b.ltime), nil
}

func (b *BPF) EventHasHappened() bool { return b.happened.Load() }

func (b *BPF) GetLaunchTime() int64 { return atomic.LoadInt64(&b.ltime) }

// GetTimeBeforeIdle and GetTimeAfterIdle are unused on the BPF variant:
// the in-kernel timestamps are authoritative and carried in the perf
// event itself (TimeToNS converts them), so the tracer should prefer
// TimeConverter when talking to a BPF source.
func (b *BPF) GetTimeBeforeIdle() int64 { return 0 }
func (b *BPF) GetTimeAfterIdle() int64  { return 0 }

// TimeToNS converts a raw TSC cycle delta to nanoseconds using the
// frequency passed to NewBPF; it returns 0 when that frequency is 0.
func (b *BPF) TimeToNS(counterDelta uint64) int64 {
	if b.tscFreq == 0 {
		return 0
	}
	return int64(counterDelta * 1_000_000_000 / b.tscFreq)
}

// GetTraceData drains the most recent decoded event as a small
// diagnostic payload (SMI/spurious counts), satisfying
// TraceDataProvider without needing a second trace_pipe read path.
func (b *BPF) GetTraceData() ([]byte, error) {
	select {
	case ev := <-b.events:
		b.lastEvent = ev
	default:
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, b.lastEvent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ DelayedEventSource = (*BPF)(nil)
var _ TimeConverter = (*BPF)(nil)
var _ TraceDataProvider = (*BPF)(nil)

// drainEvent is used by the engine's BPF-specific read path to pull a
// decoded wake sample after EventHasHappened reports true.
func (b *BPF) drainEvent() (bpfEvent, bool) {
	select {
	case ev := <-b.events:
		return ev, true
	default:
		return bpfEvent{}, false
	}
}
