package engine

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/wult-project/wult/internal/cstate"
)

// procSMINMI implements idletrace.SMINMIReader. SMI comes from
// IA32_SMI_COUNT, read as a separate snapshot from the paired Bank
// reads; NMI has no equivalent architectural counter, so it is summed
// from /proc/interrupts' NMI: line instead.
type procSMINMI struct {
	cpu int
}

func (p procSMINMI) ReadSMI() uint64 {
	v, err := cstate.ReadMSROnce(p.cpu, cstate.MSRSMICount)
	if err != nil {
		return 0
	}
	return v
}

func (p procSMINMI) ReadNMI() uint64 {
	f, err := os.Open("/proc/interrupts")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "NMI:") {
			continue
		}
		fields := strings.Fields(line)
		var sum uint64
		for _, tok := range fields[1:] {
			v, err := strconv.ParseUint(tok, 10, 64)
			if err != nil {
				break // stop at the first non-numeric column (description text)
			}
			sum += v
		}
		return sum
	}
	return 0
}
