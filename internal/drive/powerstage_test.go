package drive

import (
	"math"
	"testing"
)

func TestGeneratePhaseVoltagesScaling(t *testing.T) {
	ps := NewPowerStage(DefaultConstants())
	p := DefaultParameters()

	v := ps.GeneratePhaseVoltages([3]float64{1, 0.5, 0}, p, 0, 1e-4)
	k := p.DCLinkVoltage * (1 - p.DeadTime*p.PWMFrequency) * p.ModulationIndex
	want := [3]float64{k, 0.5 * k, 0}
	for i := range v {
		if math.Abs(v[i]-want[i]) > 1e-9 {
			t.Errorf("phase %d: expected %v, got %v", i, want[i], v[i])
		}
	}

	p.Overmodulation = true
	v = ps.GeneratePhaseVoltages([3]float64{1, 0.5, 0}, p, 0, 1e-4)
	if math.Abs(v[0]-k*1.15) > 1e-9 {
		t.Errorf("expected overmodulated %v, got %v", k*1.15, v[0])
	}
}

func TestHarmonicInjectionUsesSimulationTime(t *testing.T) {
	ps := NewPowerStage(DefaultConstants())
	p := DefaultParameters()
	p.HarmonicInjection = true

	tm := 1.0 / (6 * p.PWMFrequency) // 3π·f·t = π/2
	v := ps.GeneratePhaseVoltages([3]float64{0, 0, 0}, p, tm, 1e-4)
	k := p.DCLinkVoltage * (1 - p.DeadTime*p.PWMFrequency) * p.ModulationIndex
	for i := range v {
		if math.Abs(v[i]-0.1*k) > 1e-9 {
			t.Errorf("phase %d: expected %v, got %v", i, 0.1*k, v[i])
		}
	}
}

func TestSpaceVectorCentresTriple(t *testing.T) {
	duty := [3]float64{0.9, 0.4, 0.3}
	out := spaceVectorDuty(duty)

	hi := math.Max(out[0], math.Max(out[1], out[2]))
	lo := math.Min(out[0], math.Min(out[1], out[2]))
	if math.Abs(hi+lo-1) > 1e-12 {
		t.Errorf("expected triple centred on 0.5, got %v", out)
	}
	// line-to-line differences are preserved
	if math.Abs((out[0]-out[1])-(duty[0]-duty[1])) > 1e-12 {
		t.Errorf("expected line voltage preserved, got %v", out)
	}
}

func TestPowerStageTemperature(t *testing.T) {
	c := DefaultConstants()
	ps := NewPowerStage(c)
	p := DefaultParameters()

	ps.GeneratePhaseVoltages([3]float64{0.5, 0.5, 0.5}, p, 0, 1e-3)
	loss := p.PWMFrequency * 1e-4 * p.DCLinkVoltage
	heat := loss * c.InverterThermalResistance
	cooling := (0.5*p.FanSpeed + 0.3*p.CoolantFlow) / c.InverterThermalCapacitance
	want := 25 + (heat-cooling)*1e-3
	if got := ps.State().Temperature; math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}

	// strong cooling and no switching never drops below ambient
	p.PWMFrequency = 0
	p.FanSpeed = 1
	p.CoolantFlow = 100
	for n := 0; n < 1000; n++ {
		ps.GeneratePhaseVoltages([3]float64{}, p, 0, 1)
	}
	if got := ps.State().Temperature; got != 25 {
		t.Errorf("expected floor at 25, got %v", got)
	}
}
