// wult — wake-up latency tool: measures the delay between a scheduled
// wake event and the CPU actually observing it out of an idle state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wult-project/wult/internal/clock"
	"github.com/wult-project/wult/internal/des"
	"github.com/wult-project/wult/internal/ebpf"
	"github.com/wult-project/wult/internal/engine"
	"github.com/wult-project/wult/internal/eventring"
	"github.com/wult-project/wult/internal/installer"
	"github.com/wult-project/wult/internal/model"
	"github.com/wult-project/wult/internal/observer"
	"github.com/wult-project/wult/internal/output"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "wult",
		Short:   "Measure CPU wake-up (idle-exit) latency",
		Version: version,
		Long: `wult arms a delayed wake event, lets the target CPU enter an idle
state, and measures how long it takes the CPU to observe the wake
event once it fires. Two delayed-event-source variants are available:
a high-resolution timer (hrt, always works) and a BPF-driven
tracepoint timer (bpf, needs CO-RE + a recent kernel).`,
	}

	rootCmd.AddCommand(newStartCmd(), newCapabilitiesCmd(), newMSRCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newStartCmd() *cobra.Command {
	var (
		minT      int64
		maxT      int64
		cpuNum    int
		count     int
		reqCState int
		desVariant string
		outPath   string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a wake-latency measurement run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := model.EngineConfig{
				MinT:         minT,
				MaxT:         maxT,
				CPUNum:       cpuNum,
				Count:        count,
				ReqCState:    reqCState,
				RingCapacity: eventring.MinCapacity,
			}
			return runStart(cfg, desVariant, outPath, quiet)
		},
	}

	cmd.Flags().Int64Var(&minT, "min-t", 1_000_000, "Minimum launch distance in nanoseconds")
	cmd.Flags().Int64Var(&maxT, "max-t", 4_000_000, "Maximum launch distance in nanoseconds")
	cmd.Flags().IntVar(&cpuNum, "cpu-num", 0, "CPU to pin the measurement to")
	cmd.Flags().IntVar(&count, "count", 1000, "Number of datapoints to collect (0 = unbounded, run until Ctrl-C)")
	cmd.Flags().IntVar(&reqCState, "cstate", 3, "Target C-state index to measure (0 = POLL)")
	cmd.Flags().StringVar(&desVariant, "des", "hrt", "Delayed-event source: hrt or bpf")
	cmd.Flags().StringVarP(&outPath, "output", "o", "-", "Output file path (- for stdout)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	return cmd
}

func runStart(cfg model.EngineConfig, desVariant, outPath string, quiet bool) error {
	progress := output.NewProgress(!quiet)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pids := observer.NewPIDTracker()
	pids.SnapshotBefore()

	var datapoints []model.Datapoint
	done := make(chan struct{})
	var closeOnce sync.Once
	collect := func(rec eventring.Record) {
		if rec.Type != model.RecordData {
			return
		}
		datapoints = append(datapoints, rec.Datapoint)
		if cfg.Count > 0 && len(datapoints) >= cfg.Count {
			closeOnce.Do(func() { close(done) })
		}
	}

	var dropped, discardedWindow, discardedNested, discardedNegIntr uint64

	switch desVariant {
	case "bpf":
		loader := ebpf.NewLoader(!quiet)
		tscFreqHz := clock.DetectTSCFreqHz()
		if tscFreqHz == 0 {
			progress.Log("TSC frequency detection failed, BPF cycle-to-ns conversion will read 0")
		}
		src := des.NewBPF(loader, &ebpf.WultProgram, tscFreqHz)
		e := engine.New[*des.BPF](src, cfg, progress)
		e.OnRecord = collect
		if err := e.Enable(ctx); err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
		e.Disable()
		dropped, discardedWindow, discardedNested, discardedNegIntr = e.Stats()
	case "hrt", "":
		src := des.NewHRT(nil)
		e := engine.New[*des.HRT](src, cfg, progress)
		e.OnRecord = collect
		if err := e.Enable(ctx); err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
		e.Disable()
		dropped, discardedWindow, discardedNested, discardedNegIntr = e.Stats()
	default:
		return fmt.Errorf("unknown --des variant %q (want hrt or bpf)", desVariant)
	}

	hostname, _ := os.Hostname()
	btf := ebpf.DetectBTF()
	overhead := pids.SnapshotAfter()

	run := &model.Run{
		Metadata: model.RunMetadata{
			RunID:         uuid.New().String(),
			Tool:          "wult",
			Version:       version,
			Hostname:      hostname,
			KernelVersion: btf.KernelVersion,
			Arch:          runtime.GOARCH,
			CPUs:          runtime.NumCPU(),
			Variant:       desVariant,
			CPUNum:        cfg.CPUNum,
			MinT:          cfg.MinT,
			MaxT:          cfg.MaxT,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
		Datapoints: datapoints,
		Dropped:    dropped,
		Discarded: model.DiscardStats{
			Window:       discardedWindow,
			Nested:       discardedNested,
			NegativeIntr: discardedNegIntr,
		},
		Overhead: &overhead,
	}

	return output.WriteJSON(run, outPath)
}

func newCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show which DES variant this host supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			caps := ebpf.DetectBPFCapabilities()
			fmt.Print(ebpf.FormatCapabilities(caps))

			btfInfo := ebpf.DetectBTF()
			fmt.Printf("Kernel: %s\n", btfInfo.KernelVersion)
			fmt.Printf("BTF: %v\n", btfInfo.Available)
			fmt.Printf("CO-RE: %v\n", btfInfo.CORESupport)
			return nil
		},
	}
}

func newMSRCheckCmd() *cobra.Command {
	var loadModule bool

	cmd := &cobra.Command{
		Use:   "msr-check",
		Short: "Verify MSR/perf_event_paranoid prerequisites for the C-state bank",
		RunE: func(cmd *cobra.Command, args []string) error {
			chk := &installer.Checker{LoadModule: loadModule}
			fmt.Print(installer.Format(chk.Run()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&loadModule, "load-module", false, "Attempt `modprobe msr` if the module isn't loaded")
	return cmd
}
