package drive

import "math"

// overmodulationGain is the extra fundamental gained above the linear region.
const overmodulationGain = 1.15

// PowerStageState is the thermal state of the inverter bridge.
type PowerStageState struct {
	Temperature float64 `json:"temperature"` // °C
}

// PowerStage is the averaged inverter: duty cycles in, phase voltages out.
// Not safe for concurrent use.
type PowerStage struct {
	consts Constants
	state  PowerStageState
}

func NewPowerStage(c Constants) *PowerStage {
	return &PowerStage{
		consts: c,
		state:  PowerStageState{Temperature: c.AmbientTemperature},
	}
}

func (ps *PowerStage) State() PowerStageState { return ps.state }

func (ps *PowerStage) Restore(s PowerStageState) { ps.state = s }

// GeneratePhaseVoltages scales the duty triple by the bus voltage, the dead-time
// derating and the modulation factor, then advances the bridge temperature.
//
// The dead-time factor is not clamped: DeadTime*PWMFrequency >= 1 inverts the
// output. Keeping the product below one is the caller's job.
func (ps *PowerStage) GeneratePhaseVoltages(duty [3]float64, p DriveParameters, t, dt float64) [3]float64 {
	deadFactor := 1 - p.DeadTime*p.PWMFrequency
	modFactor := p.ModulationIndex
	if p.Overmodulation {
		modFactor *= overmodulationGain
	}

	if p.PWMType == PWMSpaceVector {
		duty = spaceVectorDuty(duty)
	}

	var harmonic float64
	if p.HarmonicInjection {
		harmonic = 0.1 * math.Sin(3*math.Pi*p.PWMFrequency*t)
	}

	var v [3]float64
	for i := range duty {
		signal := duty[i] + harmonic
		v[i] = signal * p.DCLinkVoltage * deadFactor * modFactor
	}

	ps.updateTemperature(p, dt)
	return v
}

// spaceVectorDuty applies min-max zero-sequence injection: the common-mode
// offset centres the triple inside [0,1] and stretches the linear range by 2/√3.
func spaceVectorDuty(duty [3]float64) [3]float64 {
	// move to signed references around zero
	var ref [3]float64
	for i, d := range duty {
		ref[i] = 2*d - 1
	}
	hi := math.Max(ref[0], math.Max(ref[1], ref[2]))
	lo := math.Min(ref[0], math.Min(ref[1], ref[2]))
	zero := -(hi + lo) / 2

	var out [3]float64
	for i := range ref {
		out[i] = 0.5 * (1 + ref[i] + zero)
	}
	return out
}

func (ps *PowerStage) updateTemperature(p DriveParameters, dt float64) {
	c := ps.consts
	t := ps.state.Temperature

	loss := p.PWMFrequency * 1e-4 * p.DCLinkVoltage * (1 + 0.01*(t-c.AmbientTemperature))
	heat := loss * c.InverterThermalResistance
	cooling := (0.5*p.FanSpeed + 0.3*p.CoolantFlow) / c.InverterThermalCapacitance

	t += (heat - cooling) * dt
	ps.state.Temperature = math.Max(t, c.AmbientTemperature)
}
