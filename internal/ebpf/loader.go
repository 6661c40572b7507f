package ebpf

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// ProgramSpec describes the wult BPF object to load: a typed tracepoint
// on cpu_idle that differentiates enter/exit (PWR_EVENT_EXIT), reporting
// through a perf-event array, with two small array maps userspace uses
// to pass ldist bounds in and read the stamped launch time back.
type ProgramSpec struct {
	Name           string
	ObjectFile     string // path to the compiled CO-RE.o
	TracepointProg string // program name attached to power:cpu_idle
	RingMap        string // perf-event array map name (events)
	ConfigMap      string // array map wult writes the ldist bounds into
	LaunchTimeMap  string // single-entry array map the kernel side stamps ltime into
}

// LoadedProgram is a running instance of a ProgramSpec.
type LoadedProgram struct {
	Spec       *ProgramSpec
	Collection *ebpf.Collection
	Link       link.Link
}

// Close cleans up resources; safe to call on a partially initialized
// LoadedProgram whose Link or Collection is nil.
func (p *LoadedProgram) Close() error {
	if p.Link != nil {
		p.Link.Close()
	}
	if p.Collection != nil {
		p.Collection.Close()
	}
	return nil
}

// Loader handles loading and unloading the wult native BPF program.
type Loader struct {
	btfInfo *BTFInfo
	verbose bool
}

// NewLoader creates a new eBPF program loader.
func NewLoader(verbose bool) *Loader {
	return &Loader{
		btfInfo: DetectBTF(),
		verbose: verbose,
	}
}

// CanLoad returns whether the system supports native eBPF loading.
func (l *Loader) CanLoad() bool {
	return l.btfInfo.Available && l.btfInfo.CORESupport
}

// LoadError represents a BPF program load failure; it is surfaced to
// the caller as a setup failure since Enable cannot proceed
// without a working DES.
type LoadError struct {
	Program string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("BPF program %q: %v", e.Program, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// TryLoad loads the wult BPF object and attaches its tracepoint program
// to power:cpu_idle.
func (l *Loader) TryLoad(ctx context.Context, spec *ProgramSpec) (*LoadedProgram, error) {
	if !l.CanLoad() {
		return nil, &LoadError{
			Program: spec.Name,
			Err:     fmt.Errorf("BTF/CO-RE not available (kernel %s)", l.btfInfo.KernelVersion),
		}
	}

	if _, err := os.Stat(spec.ObjectFile); err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("object file %s: %w", spec.ObjectFile, err)}
	}

	collSpec, err := ebpf.LoadCollectionSpec(spec.ObjectFile)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load spec: %w", err)}
	}

	coll, err := ebpf.NewCollection(collSpec)
	if err != nil {
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("load collection: %w", err)}
	}

	prog := coll.Programs[spec.TracepointProg]
	if prog == nil {
		coll.Close()
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("program %q not found in collection", spec.TracepointProg)}
	}

	tp, err := link.Tracepoint("power", "cpu_idle", prog, nil)
	if err != nil {
		coll.Close()
		return nil, &LoadError{Program: spec.Name, Err: fmt.Errorf("attach tracepoint power/cpu_idle: %w", err)}
	}

	if l.verbose {
		log.Printf("[ebpf] loaded %s (tracepoint: power/cpu_idle)", spec.Name)
	}

	return &LoadedProgram{
		Spec:       spec,
		Collection: coll,
		Link:       tp,
	}, nil
}

// WultProgram is the single known wult BPF object. ObjectFile is
// resolved relative to the working directory or an install path; it is
// built out-of-band by the accompanying BPF toolchain, the same
// assumption the original tcpretrans.o build made.
var WultProgram = ProgramSpec{
	Name:           "wult_hrt",
	ObjectFile:     filepath.Join("internal", "ebpf", "bpf", "wult.o"),
	TracepointProg: "handle_cpu_idle",
	RingMap:        "events",
	ConfigMap:      "config",
	LaunchTimeMap:  "launch_time",
}

// NativePrograms lists every BPF object wult knows how to load, kept
// as a slice for capability-reporting callers that enumerate by name.
var NativePrograms = []ProgramSpec{WultProgram}
