package encode

import (
	"strings"
	"testing"

	"github.com/wult-project/wult/internal/cstate"
	"github.com/wult-project/wult/internal/model"
)

func sampleDatapoint() model.Datapoint {
	return model.Datapoint{
		Type:        model.RecordData,
		SilentTime:  1_200_000,
		WakeLatency: 45_000,
		IntrLatency: 12_000,
		LDist:       1_250_000,
		ReqCState:   6,
		TSCCycles:   3_000_000,
		MPERFCycles: 1_500_000,
		CCCycles:    []uint64{30, 40, 60},
		SMIWake:     1,
		NMIWake:     0,
		SMIIntr:     2,
		NMIIntr:     0,
		DrvFields:   []model.DriverField{{Name: "EnterCnt", Value: 7}},
	}
}

func TestEncodeDecodeSyntheticRoundTrip(t *testing.T) {
	dp := sampleDatapoint()
	encoded := EncodeSynthetic(dp)
	decoded, err := DecodeSynthetic(encoded)
	if err != nil {
		t.Fatalf("DecodeSynthetic() error = %v", err)
	}

	if decoded.SilentTime != dp.SilentTime || decoded.WakeLatency != dp.WakeLatency ||
		decoded.IntrLatency != dp.IntrLatency || decoded.LDist != dp.LDist {
		t.Errorf("decoded timing fields = %+v, want match to %+v", decoded, dp)
	}
	if decoded.ReqCState != dp.ReqCState {
		t.Errorf("ReqCState = %d, want %d", decoded.ReqCState, dp.ReqCState)
	}
	if decoded.TSCCycles != dp.TSCCycles || decoded.MPERFCycles != dp.MPERFCycles {
		t.Errorf("counter fields mismatch: got %+v, want %+v", decoded, dp)
	}
	if len(decoded.CCCycles) != len(dp.CCCycles) {
		t.Fatalf("len(CCCycles) = %d, want %d", len(decoded.CCCycles), len(dp.CCCycles))
	}
	for i := range dp.CCCycles {
		if decoded.CCCycles[i] != dp.CCCycles[i] {
			t.Errorf("CCCycles[%d] = %d, want %d", i, decoded.CCCycles[i], dp.CCCycles[i])
		}
	}
	if len(decoded.DrvFields) != 1 || decoded.DrvFields[0].Name != "EnterCnt" || decoded.DrvFields[0].Value != 7 {
		t.Errorf("DrvFields = %+v, want [{EnterCnt 7}]", decoded.DrvFields)
	}
}

func TestTracePrintkFormatsCommonFieldsAndCStates(t *testing.T) {
	dp := sampleDatapoint()
	states := []cstate.State{{Name: "C3"}, {Name: "C6"}, {Name: "C7"}}

	line := TracePrintk(dp, states)
	for _, want := range []string{
		"SilentTime=1200000", "WakeLatency=45000", "ReqCState=6",
		"C3Cyc=30", "C6Cyc=40", "C7Cyc=60", "EnterCnt=7",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("TracePrintk() = %q, missing %q", line, want)
		}
	}
}

func TestTracePrintkIntoErrorsWhenBufferTooSmall(t *testing.T) {
	dp := sampleDatapoint()
	buf := make([]byte, 4)
	if _, err := TracePrintkInto(buf, dp, nil); err != ErrBufferTooSmall {
		t.Errorf("TracePrintkInto() error = %v, want ErrBufferTooSmall", err)
	}
}

func TestTracePrintkIntoSucceedsWithSufficientBuffer(t *testing.T) {
	dp := sampleDatapoint()
	buf := make([]byte, 512)
	n, err := TracePrintkInto(buf, dp, nil)
	if err != nil {
		t.Fatalf("TracePrintkInto() error = %v", err)
	}
	if n == 0 {
		t.Error("TracePrintkInto() wrote 0 bytes")
	}
}
