package drive

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestClarkeBalancedTriple(t *testing.T) {
	q, d := clarke([3]float64{1, -0.5, -0.5})
	if math.Abs(q-1) > 1e-12 || math.Abs(d) > 1e-12 {
		t.Errorf("expected (1, 0), got (%v, %v)", q, d)
	}
}

func TestTorqueModels(t *testing.T) {
	p := DefaultParameters()
	i := [3]float64{3, -1, -2}

	dq := DQTorque{}.Torque(p, 0.8, 2, i)
	if want := 1.5 * p.PolePairs * 0.8 * 2; dq != want {
		t.Errorf("dq: expected %v, got %v", want, dq)
	}
	avg := AverageCurrentTorque{}.Torque(p, 0.8, 2, i)
	if want := p.PolePairs * 0.8 * 2 * 0.1; math.Abs(avg-want) > 1e-12 {
		t.Errorf("average: expected %v, got %v", want, avg)
	}

	if m, err := TorqueModelByName("average"); err != nil || m.Name() != TorqueModelAverage {
		t.Errorf("expected average model, got %v, %v", m, err)
	}
}

func TestLoadTorque(t *testing.T) {
	cases := []struct {
		lt   LoadType
		want float64
	}{
		{LoadConstant, 10},
		{LoadFanPump, 0.1 * 20 * 20},
		{LoadInertia, 0},
	}
	for _, tc := range cases {
		if got := loadTorque(tc.lt, 20); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.lt, tc.want, got)
		}
	}
}

func TestMotorThermalAndResistance(t *testing.T) {
	c := DefaultConstants()
	p := DefaultParameters()
	m := NewMotor(c, DQTorque{}, p)

	i := [3]float64{100, -50, -50}
	dt := 1e-3
	m.UpdateState([3]float64{}, i, p, dt)

	i2r := (100*100 + 50*50 + 50*50) * p.Resistance
	want := 25 + (i2r*c.MotorThermalResistance-(0.6*p.FanSpeed+0.4*p.CoolantFlow)/c.MotorThermalCapacitance)*dt
	st := m.State()
	if math.Abs(st.Temperature-want) > 1e-9 {
		t.Errorf("expected temperature %v, got %v", want, st.Temperature)
	}
	wantR := p.Resistance * (1 + p.TempCoefficient*(want-25))
	if math.Abs(st.Resistance-wantR) > 1e-9 {
		t.Errorf("expected resistance %v, got %v", wantR, st.Resistance)
	}
}

func TestMotorFluxAndSpeedIntegration(t *testing.T) {
	c := DefaultConstants()
	p := DefaultParameters()
	p.LoadType = LoadInertia
	m := NewMotor(c, DQTorque{}, p)

	i := [3]float64{10, -5, -5} // iq = 10, id = 0
	dt := 1e-4
	m.UpdateState([3]float64{}, i, p, dt)
	st := m.State()

	wantTorque := 1.5 * p.PolePairs * 1.0 * 10
	if math.Abs(st.Torque-wantTorque) > 1e-9 {
		t.Errorf("expected torque %v, got %v", wantTorque, st.Torque)
	}
	wantFlux := 1.0 + dt*(-1.0/p.Inductance)
	if math.Abs(st.RotorFlux-wantFlux) > 1e-12 {
		t.Errorf("expected flux %v, got %v", wantFlux, st.RotorFlux)
	}
	wantSpeed := wantTorque / p.TotalInertia() * dt
	if math.Abs(st.Speed-wantSpeed) > 1e-12 {
		t.Errorf("expected speed %v, got %v", wantSpeed, st.Speed)
	}
}

func TestMotorSpeedFloor(t *testing.T) {
	p := DefaultParameters()
	m := NewMotor(DefaultConstants(), DQTorque{}, p)
	// braking current with a constant load pulls speed negative without the floor
	m.UpdateState([3]float64{}, [3]float64{-100, 50, 50}, p, 1e-3)
	if m.State().Speed != 0 {
		t.Errorf("expected speed clamped at 0, got %v", m.State().Speed)
	}
}

func TestSensor(t *testing.T) {
	s := NewSensor(0, nil)
	got := s.MeasureCurrents([3]float64{100.2, -50.1, 0}, 0.5, 0.01, false)
	want := [3]float64{200, -100, 0}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("phase %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if z := s.MeasureCurrents([3]float64{1, 2, 3}, 0.5, 0.01, true); z != [3]float64{} {
		t.Errorf("expected zeros from failed sensor, got %v", z)
	}

	a := NewSensor(0.01, rand.NewPCG(3, 4)).MeasureCurrents([3]float64{1, 1, 1}, 1, 0, false)
	b := NewSensor(0.01, rand.NewPCG(3, 4)).MeasureCurrents([3]float64{1, 1, 1}, 1, 0, false)
	if a != b {
		t.Errorf("expected seeded noise to repeat, got %v and %v", a, b)
	}
}
