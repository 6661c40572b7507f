package clock

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// DetectTSCFreqHz returns the TSC tick rate in Hz, used by the BPF DES
// variant to convert raw cycle deltas into nanoseconds. Modern Intel
// and AMD parts run the TSC at the CPU's rated (not turbo) frequency,
// reported by the kernel as "cpu MHz" in /proc/cpuinfo; a 0 return
// means detection failed and callers must not fabricate a delta.
func DetectTSCFreqHz() uint64 {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu MHz") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		mhz, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
		if err != nil || mhz <= 0 {
			continue
		}
		return uint64(mhz * 1_000_000)
	}
	return 0
}
