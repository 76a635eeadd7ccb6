package drive

import "math"

// constantLoadTorque is the shaft load of LoadConstant, N·m.
const constantLoadTorque = 10.0

// MotorState is the electromechanical state of the induction machine.
type MotorState struct {
	Speed       float64 `json:"speed"`  // rad/s, never negative
	Torque      float64 `json:"torque"` // N·m, electrical
	RotorFlux   float64 `json:"rotor_flux"`
	Vd          float64 `json:"vd"`
	Vq          float64 `json:"vq"`
	Id          float64 `json:"id"`
	Iq          float64 `json:"iq"`
	Temperature float64 `json:"temperature"` // °C
	Resistance  float64 `json:"resistance"`  // Ω, temperature-corrected
}

// Motor integrates torque, rotor flux, shaft speed and winding temperature.
// Not safe for concurrent use.
type Motor struct {
	consts Constants
	torque TorqueModel
	state  MotorState
}

func NewMotor(c Constants, tm TorqueModel, initial DriveParameters) *Motor {
	if tm == nil {
		tm = DQTorque{}
	}
	return &Motor{
		consts: c,
		torque: tm,
		state: MotorState{
			RotorFlux:   c.InitialRotorFlux,
			Temperature: c.AmbientTemperature,
			Resistance:  initial.Resistance,
		},
	}
}

func (m *Motor) State() MotorState { return m.state }

func (m *Motor) Restore(s MotorState) { m.state = s }

func (m *Motor) TorqueModel() TorqueModel { return m.torque }

// UpdateState advances the motor by one step from the applied phase voltages
// and the measured phase currents.
func (m *Motor) UpdateState(v, i [3]float64, p DriveParameters, dt float64) {
	m.updateThermal(i, p, dt)

	m.state.Vq, m.state.Vd = clarke(v)
	m.state.Iq, m.state.Id = clarke(i)

	m.state.Torque = m.torque.Torque(p, m.state.RotorFlux, m.state.Iq, i)

	flux := m.state.RotorFlux
	m.state.RotorFlux = flux + dt*(-flux/p.Inductance+m.state.Id)

	speed := m.state.Speed
	coupling := p.CouplingStiffness * speed * dt
	accel := (m.state.Torque - loadTorque(p.LoadType, speed) - (p.Damping+p.Friction)*speed - coupling) / p.TotalInertia()
	m.state.Speed = math.Max(speed+accel*dt, 0)
}

func (m *Motor) updateThermal(i [3]float64, p DriveParameters, dt float64) {
	c := m.consts
	t := m.state.Temperature

	i2r := (i[0]*i[0] + i[1]*i[1] + i[2]*i[2]) * p.Resistance
	heat := i2r * c.MotorThermalResistance
	cooling := (0.6*p.FanSpeed + 0.4*p.CoolantFlow) / c.MotorThermalCapacitance

	t = math.Max(t+(heat-cooling)*dt, c.AmbientTemperature)
	m.state.Temperature = t
	m.state.Resistance = p.Resistance * (1 + p.TempCoefficient*(t-c.AmbientTemperature))
}

// clarke projects a phase triple onto the stationary orthogonal pair (q, d).
func clarke(x [3]float64) (q, d float64) {
	q = (2.0 / 3.0) * (x[0] - 0.5*(x[1]+x[2]))
	d = (x[1] - x[2]) / math.Sqrt(3)
	return q, d
}

func loadTorque(lt LoadType, speed float64) float64 {
	switch lt {
	case LoadConstant:
		return constantLoadTorque
	case LoadFanPump:
		return 0.1 * speed * speed
	case LoadInertia:
		return 0
	}
	return 0
}
