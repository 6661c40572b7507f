// Package encode implements the two record-stream encodings: the
// trace-printk fallback (a single formatted line) and the
// synthetic-event encoder (a typed, round-trippable binary record).
// The engine does not select or apply either encoder; a run's records
// are written as JSON by package output.
package encode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wult-project/wult/internal/cstate"
	"github.com/wult-project/wult/internal/model"
)

// ErrBufferTooSmall is returned by TracePrintkInto when the caller's
// buffer cannot hold the formatted line.
var ErrBufferTooSmall = errors.New("encode: buffer too small for trace-printk record")

// TracePrintk renders dp as the trace-printk fallback line:
// common key=value fields in a fixed order, then CxCyc=<u64> per
// tracked C-state in enumeration order, then driver-specific
// Name=<u64> fields.
func TracePrintk(dp model.Datapoint, states []cstate.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SilentTime=%d WakeLatency=%d IntrLatency=%d LDist=%d ReqCState=%d TSC=%d MPERF=%d SMIWake=%d NMIWake=%d SMIIntr=%d NMIIntr=%d",
		dp.SilentTime, dp.WakeLatency, dp.IntrLatency, dp.LDist, dp.ReqCState,
		dp.TSCCycles, dp.MPERFCycles, dp.SMIWake, dp.NMIWake, dp.SMIIntr, dp.NMIIntr)
	for i, s := range states {
		if i < len(dp.CCCycles) {
			fmt.Fprintf(&sb, " %sCyc=%d", s.Name, dp.CCCycles[i])
		}
	}
	for _, f := range dp.DrvFields {
		fmt.Fprintf(&sb, " %s=%d", f.Name, f.Value)
	}
	return sb.String()
}

// TracePrintkInto formats dp into buf, matching the kernel
// trace_printk's fixed-size buffer contract: too small is an error,
// never a truncated emit.
func TracePrintkInto(buf []byte, dp model.Datapoint, states []cstate.State) (int, error) {
	line := TracePrintk(dp, states)
	if len(line) > len(buf) {
		return 0, ErrBufferTooSmall
	}
	return copy(buf, line), nil
}

// EncodeSynthetic serializes dp into the synthetic-event binary
// layout: SilentTime, WakeLatency, IntrLatency, LDist,
// ReqCState, TotCyc (= TSCCycles), CC0Cyc (= MPERFCycles), SMIWake,
// NMIWake, SMIIntr, NMIIntr, then a length-prefixed CCCycles slice,
// then length-prefixed (name, value) driver fields.
func EncodeSynthetic(dp model.Datapoint) []byte {
	var buf bytes.Buffer
	write := func(v any) { binary.Write(&buf, binary.LittleEndian, v) }

	write(dp.SilentTime)
	write(dp.WakeLatency)
	write(dp.IntrLatency)
	write(dp.LDist)
	write(uint32(dp.ReqCState))
	write(dp.TSCCycles)
	write(dp.MPERFCycles)
	write(dp.SMIWake)
	write(dp.NMIWake)
	write(dp.SMIIntr)
	write(dp.NMIIntr)

	write(uint32(len(dp.CCCycles)))
	for _, c := range dp.CCCycles {
		write(c)
	}

	write(uint32(len(dp.DrvFields)))
	for _, f := range dp.DrvFields {
		nameBytes := []byte(f.Name)
		write(uint32(len(nameBytes)))
		buf.Write(nameBytes)
		write(f.Value)
	}

	return buf.Bytes()
}

// DecodeSynthetic is the inverse of EncodeSynthetic; it round-trips
// every u64 field bit-exact.
func DecodeSynthetic(data []byte) (model.Datapoint, error) {
	r := bytes.NewReader(data)
	var dp model.Datapoint
	dp.Type = model.RecordData

	fields := []any{&dp.SilentTime, &dp.WakeLatency, &dp.IntrLatency, &dp.LDist}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return dp, fmt.Errorf("encode: decode synthetic: %w", err)
		}
	}

	var reqCState uint32
	if err := binary.Read(r, binary.LittleEndian, &reqCState); err != nil {
		return dp, fmt.Errorf("encode: decode synthetic: %w", err)
	}
	dp.ReqCState = int(reqCState)

	u64fields := []*uint64{&dp.TSCCycles, &dp.MPERFCycles, &dp.SMIWake, &dp.NMIWake, &dp.SMIIntr, &dp.NMIIntr}
	for _, f := range u64fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return dp, fmt.Errorf("encode: decode synthetic: %w", err)
		}
	}

	var ccCount uint32
	if err := binary.Read(r, binary.LittleEndian, &ccCount); err != nil {
		return dp, fmt.Errorf("encode: decode synthetic: %w", err)
	}
	dp.CCCycles = make([]uint64, ccCount)
	for i := range dp.CCCycles {
		if err := binary.Read(r, binary.LittleEndian, &dp.CCCycles[i]); err != nil {
			return dp, fmt.Errorf("encode: decode synthetic: %w", err)
		}
	}

	var drvCount uint32
	if err := binary.Read(r, binary.LittleEndian, &drvCount); err != nil {
		return dp, fmt.Errorf("encode: decode synthetic: %w", err)
	}
	dp.DrvFields = make([]model.DriverField, drvCount)
	for i := range dp.DrvFields {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return dp, fmt.Errorf("encode: decode synthetic: %w", err)
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return dp, fmt.Errorf("encode: decode synthetic: %w", err)
		}
		var val uint64
		if err := binary.Read(r, binary.LittleEndian, &val); err != nil {
			return dp, fmt.Errorf("encode: decode synthetic: %w", err)
		}
		dp.DrvFields[i] = model.DriverField{Name: string(nameBytes), Value: val}
	}

	return dp, nil
}

// Compat names the two encodings, matching historical kernels that
// lack the synthetic-event ring. The engine does not consult it.
type Compat int

const (
	CompatSyntheticEvent Compat = iota
	CompatTracePrintk
)
