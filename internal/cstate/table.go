// Package cstate implements the C-state counter bank:
// MSR offsets for the supported C-states on the detected CPU family,
// before/after snapshots, and stable-order delta computation.
package cstate

// State describes one hardware idle C-state the bank can track.
type State struct {
	Name   string // e.g. "C3", "C6", "C7"
	Index  int    // C-state index as requested by the OS on idle entry
	MSR    int64  // residency-counter MSR offset
}

// MSR offsets, from the Intel SDM (vol. 4) residency-counter table.
const (
	msrTSC  = 0x10  // IA32_TIME_STAMP_COUNTER
	msrMPERF = 0xE7 // IA32_MPERF
	msrSMI  = 0x34  // IA32_SMI_COUNT

	msrCoreC3Residency = 0x3FC
	msrCoreC6Residency = 0x3FD
	msrCoreC7Residency = 0x3FE
	msrPkgC2Residency  = 0x60D
	msrPkgC3Residency  = 0x3F8
	msrPkgC6Residency  = 0x3F9
	msrPkgC7Residency  = 0x3FA
)

// MSRSMICount exports IA32_SMI_COUNT for one-off readers outside a
// Bank.
const MSRSMICount = msrSMI

// familyModelTable maps a "family/model" key (as formatted by Key) to the
// C-states the bank should enumerate for that CPU, in a fixed order that
// is stable across the whole run.
var familyModelTable = map[string][]State{
	// Default/fallback: the common Core/Xeon residency set present since
	// Nehalem. Specific family/model entries override this when a more
	// precise counter list is known.
	"default": {
		{Name: "C1", Index: 1, MSR: 0},
		{Name: "C3", Index: 3, MSR: msrCoreC3Residency},
		{Name: "C6", Index: 6, MSR: msrCoreC6Residency},
		{Name: "C7", Index: 7, MSR: msrCoreC7Residency},
	},
}

// Key returns the familyModelTable key for a CPU family/model pair.
// Every family/model currently maps to "default".
func Key(family, model int) string {
	if family == 6 {
		// Family 6 is shared by essentially every modern Intel part; the
		// residency MSR layout does not vary across it for our purposes.
		return "default"
	}
	return "default"
}

// StatesFor returns the ordered C-state list for a given family/model.
// Unknown families fall back to the default table rather than failing
// Enable outright — a conservative choice since the default set matches
// every CPU wult realistically runs on.
func StatesFor(family, model int) []State {
	if states, ok := familyModelTable[Key(family, model)]; ok {
		return states
	}
	return familyModelTable["default"]
}
