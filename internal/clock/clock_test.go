package clock

import "testing"

func TestNowNSMonotonic(t *testing.T) {
	a := NowNS()
	b := NowNS()
	if b < a {
		t.Errorf("NowNS() went backwards: %d then %d", a, b)
	}
	if a <= 0 {
		t.Errorf("NowNS() = %d, want positive", a)
	}
}

func TestReadTSCFailureSentinel(t *testing.T) {
	orig := readTSCRaw
	defer func() { readTSCRaw = orig }()

	calls := []int64{-100, -1 * 1, -511, 123456}
	wantOK := []bool{false, true, false, true}

	for i, raw := range calls {
		readTSCRaw = func() int64 { return raw }
		val, ok := ReadTSC()
		if ok != wantOK[i] {
			t.Errorf("ReadTSC() raw=%d ok=%v, want %v", raw, ok, wantOK[i])
		}
		if !ok && val != 0 {
			t.Errorf("ReadTSC() raw=%d val=%d, want 0 on failure", raw, val)
		}
	}
}

func TestReadTSCSuccessPassesThroughValue(t *testing.T) {
	orig := readTSCRaw
	defer func() { readTSCRaw = orig }()

	readTSCRaw = func() int64 { return 42 }
	val, ok := ReadTSC()
	if !ok || val != 42 {
		t.Errorf("ReadTSC() = (%d, %v), want (42, true)", val, ok)
	}
}
