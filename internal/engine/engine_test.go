package engine

import (
	"context"
	"testing"
	"time"

	"github.com/wult-project/wult/internal/cstate"
	"github.com/wult-project/wult/internal/des"
	"github.com/wult-project/wult/internal/eventring"
	"github.com/wult-project/wult/internal/model"
	"github.com/wult-project/wult/internal/output"
)

type fakeMSR struct{}

func (fakeMSR) Read(offset int64) (uint64, error) { return 1000, nil }
func (fakeMSR) Close() error                       { return nil }

func withFakeBank(t *testing.T) {
	t.Helper()
	orig := openBank
	openBank = func(cpu int) (*cstate.Bank, error) {
		return cstate.OpenForTest(cpu, 6, 0, fakeMSR{}), nil
	}
	t.Cleanup(func() { openBank = orig })
}

func testConfig() model.EngineConfig {
	return model.EngineConfig{
		MinT:         1_000_000,
		MaxT:         2_000_000,
		CPUNum:       0,
		Count:        3,
		ReqCState:    3,
		RingCapacity: eventring.MinCapacity,
	}
}

func TestEngineEnableRunsToCountAndStops(t *testing.T) {
	withFakeBank(t)

	hrt := des.NewHRT(nil)
	e := New[*des.HRT](hrt, testConfig(), output.NewProgress(false))

	var records []eventring.Record
	done := make(chan struct{})
	e.OnRecord = func(rec eventring.Record) {
		records = append(records, rec)
		if len(records) >= 3 {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := e.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for datapoints")
	}

	if err := e.Disable(); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}

	dataCount := 0
	for _, rec := range records {
		if rec.Type == model.RecordData {
			dataCount++
			if rec.Datapoint.LDist < testConfig().MinT || rec.Datapoint.LDist >= testConfig().MaxT {
				t.Errorf("LDist = %d, want in [%d, %d)", rec.Datapoint.LDist, testConfig().MinT, testConfig().MaxT)
			}
		}
	}
	if dataCount == 0 {
		t.Error("no DATA records emitted")
	}
}

func TestEngineEnableRejectsInvalidConfig(t *testing.T) {
	withFakeBank(t)

	hrt := des.NewHRT(nil)
	cfg := testConfig()
	cfg.MinT = 0 // invalid: must be >= 1
	e := New[*des.HRT](hrt, cfg, output.NewProgress(false))

	if err := e.Enable(context.Background()); err == nil {
		t.Error("Enable() error = nil, want SetupError for invalid config")
	}
}

func TestEngineDisableIsIdempotent(t *testing.T) {
	withFakeBank(t)

	hrt := des.NewHRT(nil)
	cfg := testConfig()
	cfg.Count = 1
	e := New[*des.HRT](hrt, cfg, output.NewProgress(false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Enable(ctx); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := e.Disable(); err != nil {
		t.Fatalf("first Disable() error = %v", err)
	}
	if err := e.Disable(); err != nil {
		t.Fatalf("second Disable() error = %v", err)
	}
}
