// Package installer checks the kernel prerequisites wult's C-state
// bank and BPF DES variant need: the msr kernel module and a
// perf_event_paranoid setting permissive enough for perf-event reads.
// It never installs packages — wult has no external tools to fetch,
// only kernel state to verify.
package installer

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Check is one prerequisite probe result.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Checker runs the MSR/perf_event_paranoid readiness checks.
type Checker struct {
	// LoadModule attempts `modprobe msr` when the module isn't loaded.
	LoadModule bool
}

// Run performs every prerequisite check and returns them in a fixed
// order.
func (c *Checker) Run() []Check {
	return []Check{
		c.checkRoot(),
		c.checkMSRModule(),
		c.checkMSRDevice(),
		c.checkPerfEventParanoid(),
	}
}

func (c *Checker) checkRoot() Check {
	if os.Geteuid() == 0 {
		return Check{Name: "root", OK: true, Detail: "running as root"}
	}
	return Check{Name: "root", OK: false, Detail: "not running as root; MSR reads require CAP_SYS_RAWIO"}
}

func (c *Checker) checkMSRModule() Check {
	if msrModuleLoaded() {
		return Check{Name: "msr_module", OK: true, Detail: "msr module loaded"}
	}
	if c.LoadModule {
		if err := exec.Command("modprobe", "msr").Run(); err == nil && msrModuleLoaded() {
			return Check{Name: "msr_module", OK: true, Detail: "msr module loaded via modprobe"}
		}
	}
	return Check{Name: "msr_module", OK: false, Detail: "msr module not loaded; run `modprobe msr`"}
}

func (c *Checker) checkMSRDevice() Check {
	if _, err := os.Stat("/dev/cpu/0/msr"); err == nil {
		return Check{Name: "msr_device", OK: true, Detail: "/dev/cpu/0/msr present"}
	}
	return Check{Name: "msr_device", OK: false, Detail: "/dev/cpu/0/msr missing"}
}

// checkPerfEventParanoid verifies perf_event_paranoid permits the
// tracepoint/perf-event reads the BPF DES variant needs (<=1 for a
// non-root user, any value for root).
func (c *Checker) checkPerfEventParanoid() Check {
	data, err := os.ReadFile("/proc/sys/kernel/perf_event_paranoid")
	if err != nil {
		return Check{Name: "perf_event_paranoid", OK: false, Detail: fmt.Sprintf("read failed: %v", err)}
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return Check{Name: "perf_event_paranoid", OK: false, Detail: "unreadable value"}
	}
	if os.Geteuid() == 0 || val <= 1 {
		return Check{Name: "perf_event_paranoid", OK: true, Detail: fmt.Sprintf("value=%d", val)}
	}
	return Check{Name: "perf_event_paranoid", OK: false, Detail: fmt.Sprintf("value=%d too restrictive (need <=1 or root)", val)}
}

func msrModuleLoaded() bool {
	data, err := os.ReadFile("/proc/modules")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "msr ") {
			return true
		}
	}
	return false
}

// Format renders the checks as a human-readable report.
func Format(checks []Check) string {
	var sb strings.Builder
	allOK := true
	for _, chk := range checks {
		status := "FAIL"
		if chk.OK {
			status = "OK"
		} else {
			allOK = false
		}
		sb.WriteString(fmt.Sprintf("[%-4s] %-20s %s\n", status, chk.Name, chk.Detail))
	}
	if allOK {
		sb.WriteString("\nAll MSR/perf prerequisites satisfied.\n")
	} else {
		sb.WriteString("\nSome prerequisites are missing; wult may fail at Enable.\n")
	}
	return sb.String()
}
