// Package clock implements the wult clock source: a
// monotonic boot-time nanosecond clock and a best-effort TSC reader with
// a documented failure convention.
package clock

import (
	"log"

	"golang.org/x/sys/unix"
)

// NowNS returns a monotonic, boot-stable nanosecond timestamp. It is the
// primary timebase every call site uses; callers must tolerate a failed
// ReadTSC without falling back to it for ordering.
func NowNS() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		// CLOCK_BOOTTIME has been present since Linux 2.6.39; a failure
		// here means the syscall itself is unavailable, not a transient
		// condition. Fall back to CLOCK_MONOTONIC rather than aborting.
		unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	}
	return ts.Nano()
}

// tscFailLow and tscFailHigh bound the sentinel range a raw TSC read
// reinterprets as a transient failure: "[-512, -1)", i.e. a small
// negative errno-like code rather than a counter value.
const (
	tscFailLow  = -512
	tscFailHigh = -1
)

// readTSCRaw is replaced in tests to exercise the failure path without
// needing a real forbidden-context read.
var readTSCRaw = readTSCHardware

// ReadTSC returns the 64-bit time-stamp counter. On transient failure
// (read attempted from a context where it is forbidden) it logs a warn
// and returns (0, false); callers must treat a zero TSC as "no delta"
// rather than aborting the datapoint.
func ReadTSC() (uint64, bool) {
	raw := readTSCRaw()
	if raw >= tscFailLow && raw < tscFailHigh {
		log.Printf("[clock] TSC read failed (code=%d), treating as zero", raw)
		return 0, false
	}
	return uint64(raw), true
}
