package cstate

// Reader is the exported counterpart of the internal msr reader,
// letting other packages' tests (idletrace, engine) inject a fake MSR
// backend without touching real hardware.
type Reader interface {
	Read(offset int64) (uint64, error)
	Close() error
}

type readerAdapter struct{ r Reader }

func (a readerAdapter) read(offset int64) (uint64, error) { return a.r.Read(offset) }
func (a readerAdapter) close() error                      { return a.r.Close() }

// OpenForTest builds a Bank around an injected Reader for the given
// family/model, bypassing /proc/cpuinfo and /dev/cpu/N/msr discovery.
func OpenForTest(cpu, family, model int, r Reader) *Bank {
	return newForTest(cpu, StatesFor(family, model), readerAdapter{r})
}
