package installer

import "testing"

func TestFormatAllOK(t *testing.T) {
	checks := []Check{
		{Name: "root", OK: true, Detail: "running as root"},
		{Name: "msr_module", OK: true, Detail: "msr module loaded"},
	}
	out := Format(checks)
	if !contains(out, "OK") {
		t.Errorf("expected OK status in output, got: %s", out)
	}
	if !contains(out, "All MSR/perf prerequisites satisfied.") {
		t.Errorf("expected satisfied summary, got: %s", out)
	}
}

func TestFormatWithFailure(t *testing.T) {
	checks := []Check{
		{Name: "root", OK: false, Detail: "not running as root"},
	}
	out := Format(checks)
	if !contains(out, "FAIL") {
		t.Errorf("expected FAIL status in output, got: %s", out)
	}
	if !contains(out, "may fail at Enable") {
		t.Errorf("expected warning summary, got: %s", out)
	}
}

func TestCheckerRunReturnsFourChecks(t *testing.T) {
	c := &Checker{}
	checks := c.Run()
	if len(checks) != 4 {
		t.Fatalf("Run() returned %d checks, want 4", len(checks))
	}
	names := map[string]bool{}
	for _, chk := range checks {
		names[chk.Name] = true
	}
	for _, want := range []string{"root", "msr_module", "msr_device", "perf_event_paranoid"} {
		if !names[want] {
			t.Errorf("missing check %q", want)
		}
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
