package drive

import (
	"math"
	"testing"
)

func TestVfZeroReferenceHoldsDutyAtHalf(t *testing.T) {
	c := NewController(DefaultConstants())
	p := DefaultParameters()
	p.SpeedRef = 0

	dt := 1e-4
	for n := 0; n < 500; n++ {
		duty := c.Update(p, MotorState{}, float64(n)*dt, dt)
		for i, d := range duty {
			if math.Abs(d-0.5) > 1e-12 {
				t.Fatalf("tick %d phase %d: expected duty 0.5, got %v", n, i, d)
			}
		}
	}
	if f := c.State().LastFrequency; math.Abs(f) > 1e-12 {
		t.Errorf("expected commanded frequency ~0, got %v", f)
	}
}

func TestVfFrequencySlewLimited(t *testing.T) {
	c := NewController(DefaultConstants())
	p := DefaultParameters()
	p.SpeedRef = 1000
	p.AccelLimit = 50

	dt := 1e-4
	maxStep := p.AccelLimit * dt / (2 * math.Pi)
	prev := 0.0
	for n := 0; n < 100; n++ {
		c.Update(p, MotorState{}, float64(n)*dt, dt)
		f := c.State().LastFrequency
		if math.Abs(f-prev) > maxStep+1e-15 {
			t.Fatalf("tick %d: frequency moved %v, limit %v", n, f-prev, maxStep)
		}
		prev = f
	}
	if prev <= 0 {
		t.Errorf("expected frequency to ramp up, got %v", prev)
	}
}

func TestVfDutyFollowsSineLaw(t *testing.T) {
	for _, tc := range []struct {
		name      string
		direction float64
	}{
		{"forward", 1},
		{"reverse", -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(DefaultConstants())
			p := DefaultParameters()
			p.SpeedRef = 100
			p.AccelLimit = 2000
			p.Direction = tc.direction

			dt := 1e-4
			lo, hi := 1.0, 0.0
			for n := 0; n < 2000; n++ {
				tm := float64(n) * dt
				duty := c.Update(p, MotorState{}, tm, dt)
				f := c.State().LastFrequency
				sum := 0.0
				for i, off := range []float64{0, -2 * math.Pi / 3, 2 * math.Pi / 3} {
					want := 0.5 * (1 + math.Sin(2*math.Pi*f*tc.direction*tm+off))
					if math.Abs(duty[i]-want) > 1e-12 {
						t.Fatalf("tick %d phase %d: expected %v, got %v (f=%v)", n, i, want, duty[i], f)
					}
					sum += duty[i]
				}
				if math.Abs(sum-1.5) > 1e-9 {
					t.Fatalf("tick %d: unbalanced duty triple %v", n, duty)
				}
				lo, hi = math.Min(lo, duty[0]), math.Max(hi, duty[0])
			}
			if f := c.State().LastFrequency; f < 5 {
				t.Errorf("expected frequency ramped towards the reference, got %v", f)
			}
			// full modulation swing, not scaled by frequency
			if lo > 0.05 || hi < 0.95 {
				t.Errorf("expected phase A to swing across [0,1], got [%v, %v]", lo, hi)
			}
		})
	}
}

func TestFOCNormalisesLargeCommands(t *testing.T) {
	c := NewController(DefaultConstants())
	p := DefaultParameters()
	p.Mode = ModeFOC
	p.SpeedRef = 5000
	p.TorqueRef = 1e6
	p.FluxRef = 50

	dt := 1e-4
	for n := 0; n < 200; n++ {
		duty := c.Update(p, MotorState{RotorFlux: 1}, float64(n)*dt, dt)
		peak := 0.0
		for i, d := range duty {
			if d < 0 || d > 1 {
				t.Fatalf("tick %d phase %d: duty %v outside [0,1]", n, i, d)
			}
			peak = math.Max(peak, math.Abs(2*d-1))
		}
		if math.Abs(peak-1) > 1e-9 {
			t.Fatalf("tick %d: expected the largest phase normalised to 1, got %v", n, peak)
		}
	}
}

func TestFOCZeroCommandStaysCentred(t *testing.T) {
	c := NewController(DefaultConstants())
	p := DefaultParameters()
	p.Mode = ModeFOC
	p.SpeedRef = 0
	p.TorqueRef = 0
	p.FluxRef = 1

	duty := c.Update(p, MotorState{RotorFlux: 1}, 0, 1e-4)
	for i, d := range duty {
		if d != 0.5 {
			t.Errorf("phase %d: expected 0.5 with no command, got %v", i, d)
		}
	}
}

func TestDTCReturnsZeroDuty(t *testing.T) {
	c := NewController(DefaultConstants())
	p := DefaultParameters()
	p.Mode = ModeDTC
	if got := c.Update(p, MotorState{}, 0.01, 1e-4); got != [3]float64{} {
		t.Errorf("expected zero duty, got %v", got)
	}
	if c.State() != (ControllerState{}) {
		t.Errorf("expected untouched integrators, got %+v", c.State())
	}
}

func TestControllerResetClearsIntegrators(t *testing.T) {
	c := NewController(DefaultConstants())
	p := DefaultParameters()
	p.Mode = ModeFOC
	c.Update(p, MotorState{}, 0, 1e-4)
	c.Reset()
	if c.State() != (ControllerState{}) {
		t.Errorf("expected zero state after reset, got %+v", c.State())
	}
}
