package main

import (
	"testing"

	"github.com/wult-project/wult/internal/model"
)

func TestNewStartCmdDefaults(t *testing.T) {
	cmd := newStartCmd()

	flags := []struct {
		name string
		want string
	}{
		{"min-t", "1000000"},
		{"max-t", "4000000"},
		{"cpu-num", "0"},
		{"count", "1000"},
		{"cstate", "3"},
		{"des", "hrt"},
		{"output", "-"},
	}
	for _, f := range flags {
		flag := cmd.Flags().Lookup(f.name)
		if flag == nil {
			t.Fatalf("missing flag %q", f.name)
		}
		if flag.DefValue != f.want {
			t.Errorf("flag %q default = %q, want %q", f.name, flag.DefValue, f.want)
		}
	}
}

func TestRunStartRejectsUnknownVariant(t *testing.T) {
	cfg := model.EngineConfig{MinT: 1_000_000, MaxT: 2_000_000, Count: 1}
	if err := runStart(cfg, "unknown-variant", "-", true); err == nil {
		t.Error("runStart() error = nil, want error for unknown des variant")
	}
}

func TestNewCapabilitiesCmdRuns(t *testing.T) {
	cmd := newCapabilitiesCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Errorf("capabilities RunE() error = %v", err)
	}
}

func TestNewMSRCheckCmdRuns(t *testing.T) {
	cmd := newMSRCheckCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Errorf("msr-check RunE() error = %v", err)
	}
}
