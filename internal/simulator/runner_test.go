package simulator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"inverter-drive/internal/drive"
	"inverter-drive/internal/params"
)

type collector struct {
	mu      sync.Mutex
	samples []drive.Sample
}

func (c *collector) Accept(s drive.Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func newTestRunner(t *testing.T, sinks ...drive.Sink) (*Runner, *params.Store, *drive.ManualClock) {
	t.Helper()
	clock := drive.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store, err := params.NewStore(drive.DefaultParameters(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	session, err := drive.NewSession(store.Snapshot(), drive.WithClock(clock), drive.WithSink(NewFanout(sinks...)))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return NewRunner(session, store, Config{RunID: "run-1", DriveID: "D1"}, zap.NewNop()), store, clock
}

func TestRunStepsFeedsSinksInOrder(t *testing.T) {
	a, b := &collector{}, &collector{}
	r, _, _ := newTestRunner(t, a, b)

	n, err := r.RunSteps(context.Background(), 50)
	if err != nil || n != 50 {
		t.Fatalf("expected 50 steps, got %d (%v)", n, err)
	}
	if r.Tick() != 50 {
		t.Errorf("expected tick 50, got %d", r.Tick())
	}
	for _, c := range []*collector{a, b} {
		if len(c.samples) != 50 {
			t.Fatalf("expected 50 samples, got %d", len(c.samples))
		}
		for i, s := range c.samples {
			if s.Tick != uint64(i) {
				t.Fatalf("sample %d has tick %d", i, s.Tick)
			}
		}
	}
}

func TestRunStepsHonoursCancelledContext(t *testing.T) {
	r, _, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := r.RunSteps(ctx, 10)
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Errorf("expected 0 steps and context.Canceled, got %d, %v", n, err)
	}
}

type badSource struct {
	*params.Store
}

func (b badSource) Snapshot() drive.DriveParameters {
	p := b.Store.Snapshot()
	p.Inductance = 0
	return p
}

func TestInvalidParametersSkipTickAndLogOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store, _ := params.NewStore(drive.DefaultParameters(), zap.NewNop())
	session, err := drive.NewSession(store.Snapshot())
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	before := session.Snapshot()
	r := NewRunner(session, badSource{store}, Config{}, zap.New(core))

	for i := 0; i < 3; i++ {
		if err := r.Step(); !errors.Is(err, drive.ErrInvalidConfiguration) {
			t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
		}
	}
	if session.Tick() != 0 {
		t.Errorf("expected tick 0, got %d", session.Tick())
	}
	if after := session.Snapshot(); after.Motor != before.Motor || after.Controller != before.Controller {
		t.Error("expected session state untouched by rejected ticks")
	}
	if got := logs.FilterMessage("Tick skipped").Len(); got != 1 {
		t.Errorf("expected 1 log entry, got %d", got)
	}
	st := r.Status()
	if st.SkippedTicks != 3 || st.LastError == "" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestScenarioDrivesFaultsAndParameters(t *testing.T) {
	r, store, _ := newTestRunner(t)
	sc, err := params.ParseScenario([]byte(`
name: step
events:
  - at: 0.001
    inject: overcurrent
    set:
      speed_ref: "50"
  - at: 0.002
    clear: true
`))
	if err != nil {
		t.Fatalf("ParseScenario failed: %v", err)
	}
	r.SetScenario(sc)

	// dt = 1e-4, the event at 1 ms fires by tick 11
	if _, err := r.RunSteps(context.Background(), 12); err != nil {
		t.Fatal(err)
	}
	if st := r.Status(); st.Fault != drive.FaultOvercurrent {
		t.Errorf("expected Overcurrent, got %v", st.Fault)
	}
	if store.Snapshot().SpeedRef != 50 {
		t.Errorf("expected speed_ref 50, got %v", store.Snapshot().SpeedRef)
	}
	if _, err := r.RunSteps(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	if st := r.Status(); st.Fault != drive.FaultNone {
		t.Errorf("expected fault cleared, got %v", st.Fault)
	}
	if !sc.Done() {
		t.Error("expected scenario finished")
	}
}

func TestRunnerControlCommands(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if err := r.InjectFault(drive.FaultPhaseLoss); err != nil {
		t.Fatalf("InjectFault failed: %v", err)
	}
	if r.Status().Fault != drive.FaultPhaseLoss {
		t.Errorf("expected Phase Loss")
	}
	r.ClearFault()
	if r.Status().Fault != drive.FaultNone {
		t.Errorf("expected fault cleared")
	}
	if err := r.InjectFault(drive.FaultKind(99)); !errors.Is(err, drive.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}

	if _, err := r.RunSteps(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	r.ResetController()
	if got := r.Snapshot().Controller; got != (drive.ControllerState{}) {
		t.Errorf("expected zeroed controller, got %+v", got)
	}

	if err := r.ApplyParams([]params.Update{{ID: 25, Value: 10}}); err != nil {
		t.Fatalf("ApplyParams failed: %v", err)
	}
	if err := r.ApplyParams([]params.Update{{ID: 14, Value: 0}}); err == nil {
		t.Error("expected zero inductance to be rejected")
	}
	if r.Status().ParamsVersion != 1 {
		t.Errorf("expected params version 1, got %d", r.Status().ParamsVersion)
	}
}

func TestStatusReportsModeOfLastTick(t *testing.T) {
	r, store, _ := newTestRunner(t)
	if err := store.Set("mode", "FOC"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := r.Status().Mode; got != drive.ModeVf {
		t.Errorf("expected V/f until the next tick, got %s", got)
	}
	if err := r.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if got := r.Status().Mode; got != drive.ModeFOC {
		t.Errorf("expected FOC after the tick, got %s", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	c := &collector{}
	r, _, _ := newTestRunner(t, c)
	r.cfg.TickInterval = time.Millisecond
	r.cfg.StepsPerTick = 5

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.len() < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := r.RunSteps(context.Background(), 1); err == nil {
		t.Error("expected RunSteps to refuse while Run is active")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if c.len() < 10 {
		t.Errorf("expected at least 10 samples, got %d", c.len())
	}
	if r.Tick()%5 != 0 {
		t.Errorf("expected whole ticker fires, got tick %d", r.Tick())
	}
}

func TestFaultFanout(t *testing.T) {
	var got []drive.FaultKind
	ff := &FaultFanout{}
	ff.Add(func(tr drive.FaultTransition) { got = append(got, tr.To) })
	ff.Add(nil)
	ff.Add(func(tr drive.FaultTransition) { got = append(got, tr.To) })
	ff.Observe(drive.FaultTransition{To: drive.FaultOverheat})
	if len(got) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(got))
	}
}
