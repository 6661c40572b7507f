package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wult-project/wult/internal/clock"
	"github.com/wult-project/wult/internal/des"
	"github.com/wult-project/wult/internal/ebpf"
	"github.com/wult-project/wult/internal/engine"
	"github.com/wult-project/wult/internal/eventring"
	"github.com/wult-project/wult/internal/model"
	"github.com/wult-project/wult/internal/observer"
	"github.com/wult-project/wult/internal/output"
)

// startMeasurementTimeout bounds a single MCP-triggered run so a
// misbehaving client can't wedge the server indefinitely.
const startMeasurementTimeout = 2 * time.Minute

func handleStartMeasurement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, startMeasurementTimeout)
	defer cancel()

	args := getArgs(request)
	cfg := model.EngineConfig{
		MinT:         int64(numberArg(args, "min_t_ns", 1_000_000)),
		MaxT:         int64(numberArg(args, "max_t_ns", 4_000_000)),
		CPUNum:       int(numberArg(args, "cpu_num", 0)),
		Count:        int(numberArg(args, "count", 100)),
		ReqCState:    int(numberArg(args, "req_cstate", 3)),
		RingCapacity: eventring.MinCapacity,
	}
	variant := stringArg(args, "des", "hrt")

	run, err := runMeasurement(ctx, variant, cfg)
	if err != nil {
		return errResult(fmt.Sprintf("measurement failed: %v", err)), nil
	}

	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(jsonData)), nil
}

// runMeasurement builds and drives an Engine for the requested DES
// variant. Engine is generic over its DES type, so the two variants are wired through separate instantiations
// rather than a single dynamically-dispatched call.
func runMeasurement(ctx context.Context, variant string, cfg model.EngineConfig) (*model.Run, error) {
	progress := output.NewProgress(false)
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

	var (
		stats struct{ dropped, window, nested, negIntr uint64 }
		err   error
	)

	switch variant {
	case "bpf":
		loader := ebpf.NewLoader(false)
		src := des.NewBPF(loader, &ebpf.WultProgram, clock.DetectTSCFreqHz())
		e := engine.New[*des.BPF](src, cfg, progress)
		e.OnRecord = collect
		if err = e.Enable(ctx); err != nil {
			return nil, err
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
		e.Disable()
		stats.dropped, stats.window, stats.nested, stats.negIntr = e.Stats()
	case "hrt", "":
		src := des.NewHRT(nil)
		e := engine.New[*des.HRT](src, cfg, progress)
		e.OnRecord = collect
		if err = e.Enable(ctx); err != nil {
			return nil, err
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
		e.Disable()
		stats.dropped, stats.window, stats.nested, stats.negIntr = e.Stats()
	default:
		return nil, fmt.Errorf("unknown des variant %q", variant)
	}

	hostname, _ := os.Hostname()
	btf := ebpf.DetectBTF()
	overhead := pids.SnapshotAfter()

	return &model.Run{
		Metadata: model.RunMetadata{
			RunID:         uuid.New().String(),
			Tool:          "wult",
			Hostname:      hostname,
			KernelVersion: btf.KernelVersion,
			Arch:          runtime.GOARCH,
			CPUs:          runtime.NumCPU(),
			Variant:       variant,
			CPUNum:        cfg.CPUNum,
			MinT:          cfg.MinT,
			MaxT:          cfg.MaxT,
		},
		Datapoints: datapoints,
		Dropped:    stats.dropped,
		Discarded: model.DiscardStats{
			Window:       stats.window,
			Nested:       stats.nested,
			NegativeIntr: stats.negIntr,
		},
		Overhead: &overhead,
	}, nil
}

func handleGetCapabilities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caps := ebpf.DetectBPFCapabilities()
	level := ebpf.CapabilityLevel(caps)

	summary := map[string]interface{}{
		"capability_level": level,
		"capabilities":     caps,
		"recommended_des":  recommendedVariant(level),
	}

	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(jsonData)), nil
}

func recommendedVariant(level int) string {
	switch {
	case level >= 2:
		return "bpf"
	case level >= 1:
		return "hrt"
	default:
		return "none"
	}
}

func handleExplainRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	field := stringArg(args, "field", "")

	if field == "" {
		names := make([]string, 0, len(recordFieldExplanations))
		for name := range recordFieldExplanations {
			names = append(names, name)
		}
		sort.Strings(names)
		jsonData, err := json.MarshalIndent(names, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
		}
		return newTextResult(string(jsonData)), nil
	}

	desc, ok := recordFieldExplanations[field]
	if !ok {
		return errResult(fmt.Sprintf("unknown field %q; call without 'field' to list known fields", field)), nil
	}
	return newTextResult(desc), nil
}

// getArgs safely extracts the arguments map from a CallToolRequest.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

func numberArg(args map[string]interface{}, key string, defaultVal float64) float64 {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	f, ok := val.(float64)
	if !ok {
		return defaultVal
	}
	return f
}

func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
	}
}

var recordFieldExplanations = map[string]string{
	"silent_time":  "ltime - tbi: time actually spent idle before the wake event fired, in nanoseconds.",
	"wake_latency": "tai - ltime: delay between the programmed wake time and the idle-exit timestamp, in nanoseconds.",
	"intr_latency": "tintr - ltime - ai_overhead: delay until the interrupt handler observed the wake, in nanoseconds.",
	"ldist":        "The requested launch distance for this cycle: how far in the future the wake was armed, in nanoseconds.",
	"req_cstate":   "The C-state index the run is pinned to measure; 0 means POLL.",
	"tsc_cycles":   "TSC delta between before_idle and after_idle.",
	"mperf_cycles": "MPERF delta between before_idle and after_idle; tracks actual core clock cycles.",
	"cc_cycles":    "Per-C-state residency-counter deltas, ordered by C-state index as enumerated for this CPU family.",
	"smi_wake":     "SMI count delta between before_idle and after_idle.",
	"nmi_wake":     "NMI count delta between before_idle and after_idle.",
	"smi_intr":     "SMI count delta between before_idle and the interrupt sample point; smi_intr >= smi_wake always holds.",
	"nmi_intr":     "NMI count delta between before_idle and the interrupt sample point; nmi_intr >= nmi_wake always holds.",
	"drv_fields":   "Variant-specific counters the DES driver reports beyond TSC/MPERF, in driver-reported order.",
}
