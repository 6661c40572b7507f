//go:build amd64

package clock

// readTSCHardware executes RDTSC and returns the 64-bit counter value as
// a signed int64; a genuinely transient failure is simulated by the
// hook in clock.go for testing since RDTSC itself does not fault in
// user mode on any supported target.
func readTSCHardware() int64 {
	return int64(readTSCAsm())
}

// readTSCAsm is implemented in tsc_amd64.s.
func readTSCAsm() uint64
