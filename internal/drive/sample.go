package drive

// Sample is the per-tick result handed to the sink.
type Sample struct {
	Tick                uint64      `json:"tick"`
	Time                float64     `json:"time"` // s, simulation time at the start of the tick
	Voltages            [3]float64  `json:"voltages"`
	Currents            [3]float64  `json:"currents"`
	Speed               float64     `json:"speed"`
	Torque              float64     `json:"torque"`
	Fault               FaultKind   `json:"fault"`
	MotorTemperature    float64     `json:"motor_temperature"`
	InverterTemperature float64     `json:"inverter_temperature"`
	Mode                ControlMode `json:"mode"`
	ThermalTrip         bool        `json:"thermal_trip,omitempty"`
}

// Sink receives samples in tick order. Accept must not block the caller;
// implementations queue internally.
type Sink interface {
	Accept(Sample)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Sample)

func (f SinkFunc) Accept(s Sample) { f(s) }

// ParameterSource supplies the snapshot used by the next tick.
type ParameterSource interface {
	Snapshot() DriveParameters
}
