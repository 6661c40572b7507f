// Package turbostat treats turbostat as an external collaborator: a
// column schema for its output plus a thin collector that shells out
// to the real tool. It is not part of the measurement engine and
// never feeds back into a Datapoint.
package turbostat

// ColumnType distinguishes how a schema entry's raw text should be
// interpreted.
type ColumnType string

const (
	TypeFloat ColumnType = "float"
	TypeInt   ColumnType = "int"
)

// Column catalogues one recognized turbostat output column.
type Column struct {
	Title       string
	Description string
	Unit        string
	ShortUnit   string
	Type        ColumnType
	// DropIfEmpty means a missing or empty cell for this column should
	// be omitted from the parsed Sample rather than recorded as zero,
	// since turbostat omits some columns entirely depending on the CPU
	// model and kernel PMU support.
	DropIfEmpty bool
}

// Schema is the catalogue of turbostat columns this collector
// recognizes.
var Schema = map[string]Column{
	"Busy%":                {Title: "Busy%", Description: "Percent of time in C0", Unit: "percent", ShortUnit: "%", Type: TypeFloat},
	"Bzy_MHz":              {Title: "Bzy_MHz", Description: "Average clock rate while in C0", Unit: "megahertz", ShortUnit: "MHz", Type: TypeFloat},
	"Avg_MHz":              {Title: "Avg_MHz", Description: "Average clock rate across all states", Unit: "megahertz", ShortUnit: "MHz", Type: TypeFloat},
	"UncMHz":               {Title: "UncMHz", Description: "Uncore clock rate", Unit: "megahertz", ShortUnit: "MHz", Type: TypeFloat, DropIfEmpty: true},
	"IRQ":                  {Title: "IRQ", Description: "Interrupts per interval", Unit: "count", ShortUnit: "", Type: TypeInt},
	"SMI":                  {Title: "SMI", Description: "System management interrupts per interval", Unit: "count", ShortUnit: "", Type: TypeInt, DropIfEmpty: true},
	"IPC":                  {Title: "IPC", Description: "Instructions per cycle", Unit: "ratio", ShortUnit: "", Type: TypeFloat, DropIfEmpty: true},
	"CorWatt":              {Title: "CorWatt", Description: "Core package power", Unit: "watts", ShortUnit: "W", Type: TypeFloat, DropIfEmpty: true},
	"PkgWatt":              {Title: "PkgWatt", Description: "Package power", Unit: "watts", ShortUnit: "W", Type: TypeFloat, DropIfEmpty: true},
	"GFXWatt":              {Title: "GFXWatt", Description: "Integrated GPU power", Unit: "watts", ShortUnit: "W", Type: TypeFloat, DropIfEmpty: true},
	"CoreTmp":              {Title: "CoreTmp", Description: "Core temperature", Unit: "celsius", ShortUnit: "C", Type: TypeInt, DropIfEmpty: true},
	"PkgTmp":               {Title: "PkgTmp", Description: "Package temperature", Unit: "celsius", ShortUnit: "C", Type: TypeInt, DropIfEmpty: true},
	"Time_Of_Day_Seconds":  {Title: "Time_Of_Day_Seconds", Description: "Wall-clock time at sample end", Unit: "seconds", ShortUnit: "s", Type: TypeFloat},
}

// IsCState reports whether name matches turbostat's per-C-state column
// convention: "Pkg%pcN", "CPU%cN", or "CN%" style names, which are
// generated per platform rather than fixed in Schema. Any name ending
// in "%" matches, so "Busy%" (C0 residency) counts as well.
func IsCState(name string) bool {
	if len(name) == 0 {
		return false
	}
	switch {
	case hasPrefix(name, "Pkg%pc"), hasPrefix(name, "CPU%c"), hasPrefix(name, "Pkg%"), hasSuffix(name, "%"):
		return true
	}
	return false
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
