package drive

import "math"

const twoPi = 2 * math.Pi

// phase offsets of the B and C legs relative to A
var phaseOffsets = [3]float64{0, -twoPi / 3, twoPi / 3}

// ControllerState holds every integrator of the control law.
type ControllerState struct {
	SpeedIntegral  float64 `json:"speed_integral"`
	TorqueIntegral float64 `json:"torque_integral"`
	FluxIntegral   float64 `json:"flux_integral"`
	LastFrequency  float64 `json:"last_frequency"` // Hz, V/f slew memory
}

// Controller produces the duty triple for the next step. The integrators only
// reset on an explicit Reset call. Not safe for concurrent use.
type Controller struct {
	consts Constants
	state  ControllerState
}

func NewController(c Constants) *Controller {
	return &Controller{consts: c}
}

func (c *Controller) State() ControllerState { return c.state }

func (c *Controller) Restore(s ControllerState) { c.state = s }

// Reset clears all integrators and the frequency memory.
func (c *Controller) Reset() { c.state = ControllerState{} }

// Update returns duty cycles in [0,1] for the selected control mode.
func (c *Controller) Update(p DriveParameters, m MotorState, t, dt float64) [3]float64 {
	switch p.Mode {
	case ModeVf:
		return c.updateVf(p, m, t, dt)
	case ModeFOC:
		return c.updateFOC(p, m, t, dt)
	case ModeDTC:
		// direct torque control is not modelled; no drive
		return [3]float64{}
	}
	return [3]float64{}
}

func (c *Controller) updateVf(p DriveParameters, m MotorState, t, dt float64) [3]float64 {
	e := p.SpeedRef - m.Speed
	c.state.SpeedIntegral += e * dt
	target := p.Kp*e + p.Ki*c.state.SpeedIntegral

	maxStep := p.AccelLimit * dt / twoPi
	last := c.state.LastFrequency
	f := math.Min(math.Max(target, last-maxStep), last+maxStep)
	c.state.LastFrequency = f

	// full swing at every frequency; the voltage command itself is not modelled
	omega := twoPi * f * p.Direction
	var duty [3]float64
	for i, off := range phaseOffsets {
		duty[i] = 0.5 * (1 + math.Sin(omega*t+off))
	}
	return duty
}

func (c *Controller) updateFOC(p DriveParameters, m MotorState, t, dt float64) [3]float64 {
	k := c.consts

	e := p.SpeedRef - m.Speed
	c.state.SpeedIntegral += e * dt
	torqueRef := p.TorqueRef + p.Kp*e + p.Ki*c.state.SpeedIntegral

	eT := torqueRef - m.Torque
	c.state.TorqueIntegral += eT * dt
	vq := k.TorqueKp*eT + k.TorqueKi*c.state.TorqueIntegral

	eF := p.FluxRef - m.RotorFlux
	c.state.FluxIntegral += eF * dt
	vd := k.FluxKp*eF + k.FluxKi*c.state.FluxIntegral

	theta := twoPi * p.SpeedRef * t * p.Direction
	v := inverseParkClarke(vd, vq, theta)

	peak := math.Max(math.Abs(v[0]), math.Max(math.Abs(v[1]), math.Abs(v[2])))
	if peak > 0 {
		for i := range v {
			v[i] /= peak
		}
	}

	var duty [3]float64
	for i := range v {
		duty[i] = 0.5 * (1 + v[i])
	}
	return duty
}

func inverseParkClarke(vd, vq, theta float64) [3]float64 {
	sin, cos := math.Sincos(theta)
	alpha := vd*cos - vq*sin
	beta := vd*sin + vq*cos

	const half = 0.5
	sq3 := math.Sqrt(3) / 2
	return [3]float64{
		alpha,
		-half*alpha + sq3*beta,
		-half*alpha - sq3*beta,
	}
}
