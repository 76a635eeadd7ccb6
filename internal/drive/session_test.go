package drive

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"
)

func newTestSession(t *testing.T, p DriveParameters, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(p, opts...)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestNewSessionRejectsBadTimeStep(t *testing.T) {
	_, err := NewSession(DefaultParameters(), WithTimeStep(0))
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestNewSessionRejectsUnknownTorqueModel(t *testing.T) {
	c := DefaultConstants()
	c.TorqueModel = "magic"
	_, err := NewSession(DefaultParameters(), WithConstants(c))
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestStepKeepsStateWithinFloors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*DriveParameters)
	}{
		{"vf constant load", func(p *DriveParameters) {}},
		{"vf fan load reverse", func(p *DriveParameters) { p.LoadType = LoadFanPump; p.Direction = -1 }},
		{"foc inertia", func(p *DriveParameters) { p.Mode = ModeFOC; p.LoadType = LoadInertia; p.TorqueRef = 5 }},
		{"foc svpwm overmod", func(p *DriveParameters) {
			p.Mode = ModeFOC
			p.PWMType = PWMSpaceVector
			p.Overmodulation = true
			p.HarmonicInjection = true
		}},
		{"dtc stub", func(p *DriveParameters) { p.Mode = ModeDTC }},
		{"shutdown", func(p *DriveParameters) { p.Protection = ProtectionShutdown; p.MaxTemperature = 60 }},
		{"sensor failed", func(p *DriveParameters) { p.CurrentSensorFault = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParameters()
			tc.mutate(&p)
			s := newTestSession(t, p)
			for n := 0; n < 3000; n++ {
				sample, err := s.Step(p)
				if err != nil {
					t.Fatalf("step %d: %v", n, err)
				}
				if sample.Speed < 0 {
					t.Fatalf("step %d: negative speed %v", n, sample.Speed)
				}
				if sample.MotorTemperature < 25 || sample.InverterTemperature < 25 {
					t.Fatalf("step %d: temperature below ambient: motor %v inverter %v",
						n, sample.MotorTemperature, sample.InverterTemperature)
				}
				for i := 0; i < 3; i++ {
					if math.IsNaN(sample.Voltages[i]) || math.IsInf(sample.Voltages[i], 0) {
						t.Fatalf("step %d: non-finite voltage %v", n, sample.Voltages)
					}
				}
				if !sample.Fault.Valid() {
					t.Fatalf("step %d: invalid fault kind %d", n, sample.Fault)
				}
			}
		})
	}
}

func TestStepIsIdempotentUnderRollback(t *testing.T) {
	c := DefaultConstants()
	c.SensorNoise = 0.01
	p := DefaultParameters()
	p.Mode = ModeFOC
	p.HarmonicInjection = true

	clock := NewManualClock(time.Unix(0, 0))
	s := newTestSession(t, p, WithConstants(c), WithClock(clock), WithRand(rand.NewPCG(7, 11)))
	for n := 0; n < 50; n++ {
		if _, err := s.Step(p); err != nil {
			t.Fatalf("warm-up step %d: %v", n, err)
		}
	}

	before := s.Snapshot()
	first, err := s.Step(p)
	if err != nil {
		t.Fatalf("first step: %v", err)
	}
	afterFirst := s.Snapshot()

	if err := s.Restore(before); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	second, err := s.Step(p)
	if err != nil {
		t.Fatalf("second step: %v", err)
	}

	if first != second {
		t.Errorf("expected identical samples, got %+v and %+v", first, second)
	}
	if !reflect.DeepEqual(afterFirst, s.Snapshot()) {
		t.Errorf("expected identical state after replay")
	}
}

func TestStepRejectsInvalidParametersWithoutMutation(t *testing.T) {
	p := DefaultParameters()
	s := newTestSession(t, p)
	for n := 0; n < 10; n++ {
		if _, err := s.Step(p); err != nil {
			t.Fatalf("step %d: %v", n, err)
		}
	}
	before := s.Snapshot()

	bad := []func(*DriveParameters){
		func(p *DriveParameters) { p.DCLinkVoltage = math.NaN() },
		func(p *DriveParameters) { p.SpeedRef = math.Inf(1) },
		func(p *DriveParameters) { p.Direction = 0 },
		func(p *DriveParameters) { p.Inductance = 0 },
		func(p *DriveParameters) { p.LoadInertia, p.ShaftInertia = 0, 0 },
		func(p *DriveParameters) { p.Mode = ControlMode(9) },
		func(p *DriveParameters) { p.Protection = ProtectionMode(7) },
	}
	for i, mutate := range bad {
		q := p
		mutate(&q)
		if _, err := s.Step(q); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("case %d: expected ErrInvalidConfiguration, got %v", i, err)
		}
	}

	if !reflect.DeepEqual(before, s.Snapshot()) {
		t.Errorf("expected state untouched by rejected ticks")
	}
}

func TestScenarioNominalVfTick(t *testing.T) {
	p := DefaultParameters()
	p.DCLinkVoltage = 400
	p.PWMFrequency = 10000
	p.DeadTime = 1e-6
	p.ModulationIndex = 0.8
	p.Mode = ModeVf
	p.SpeedRef = 100

	s := newTestSession(t, p, WithTimeStep(0.0001))
	fluxBefore := s.Motor().RotorFlux

	sample, err := s.Step(p)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	for i, v := range sample.Voltages {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("phase %d: expected finite non-zero voltage, got %v", i, v)
		}
	}
	// duty is ~0.5 on the first tick, so phase A is 0.5·400·0.99·0.8
	if math.Abs(sample.Voltages[0]-158.4) > 1e-6 {
		t.Errorf("expected Va 158.4, got %v", sample.Voltages[0])
	}

	iq, _ := clarke(sample.Currents)
	want := 1.5 * p.PolePairs * fluxBefore * iq
	if math.Abs(sample.Torque-want) > 1e-9 {
		t.Errorf("expected torque %v, got %v", want, sample.Torque)
	}
	if sample.Time != 0 || s.Time() != 0.0001 {
		t.Errorf("expected sample at t=0 and clock at 0.0001, got %v and %v", sample.Time, s.Time())
	}
}

func TestSinkReceivesSamplesInOrder(t *testing.T) {
	var got []uint64
	sink := SinkFunc(func(s Sample) { got = append(got, s.Tick) })

	p := DefaultParameters()
	s := newTestSession(t, p, WithSink(sink))
	for n := 0; n < 20; n++ {
		if _, err := s.Step(p); err != nil {
			t.Fatalf("step %d: %v", n, err)
		}
	}
	if len(got) != 20 {
		t.Fatalf("expected 20 samples, got %d", len(got))
	}
	for i, tick := range got {
		if tick != uint64(i) {
			t.Fatalf("expected tick %d at position %d, got %d", i, i, tick)
		}
	}
}

func TestSessionInjectAndClearFault(t *testing.T) {
	var transitions []FaultTransition
	p := DefaultParameters()
	s := newTestSession(t, p, WithFaultObserver(func(tr FaultTransition) {
		transitions = append(transitions, tr)
	}))

	if err := s.InjectFault(FaultPhaseLoss); err != nil {
		t.Fatalf("InjectFault failed: %v", err)
	}
	sample, err := s.Step(p)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if sample.Voltages[0] != 0 {
		t.Errorf("expected phase A dropped, got %v", sample.Voltages[0])
	}
	if sample.Fault != FaultPhaseLoss {
		t.Errorf("expected %s, got %s", FaultPhaseLoss, sample.Fault)
	}

	s.ClearFault()
	if s.Fault().Kind != FaultNone {
		t.Errorf("expected None after clear, got %s", s.Fault().Kind)
	}
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[1].Cause != CauseCleared || transitions[1].SimTime != s.Time() {
		t.Errorf("unexpected clear transition %+v", transitions[1])
	}
}

func TestSessionResetController(t *testing.T) {
	p := DefaultParameters()
	s := newTestSession(t, p)
	for n := 0; n < 5; n++ {
		if _, err := s.Step(p); err != nil {
			t.Fatalf("step %d: %v", n, err)
		}
	}
	if s.Controller() == (ControllerState{}) {
		t.Fatal("expected integrators to be non-zero after stepping")
	}
	s.ResetController()
	if s.Controller() != (ControllerState{}) {
		t.Errorf("expected zeroed controller, got %+v", s.Controller())
	}
}
