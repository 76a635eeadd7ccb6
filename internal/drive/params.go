package drive

import (
	"fmt"
	"math"
)

// DriveParameters is the configuration snapshot consumed by one tick.
// It is copied by value; the session never retains a reference to caller memory.
type DriveParameters struct {
	// inverter
	DCLinkVoltage     float64 `json:"dc_link_voltage"` // V
	PWMFrequency      float64 `json:"pwm_frequency"`   // Hz
	DeadTime          float64 `json:"dead_time"`       // s
	ModulationIndex   float64 `json:"modulation_index"`
	HarmonicInjection bool    `json:"harmonic_injection"`
	Overmodulation    bool    `json:"overmodulation"`
	PWMType           PWMType `json:"pwm_type"`

	// cooling
	FanSpeed    float64 `json:"fan_speed"`    // 0–1
	CoolantFlow float64 `json:"coolant_flow"` // L/min

	// motor and load
	RatedVoltage      float64  `json:"rated_voltage"` // V
	RatedPower        float64  `json:"rated_power"`   // kW
	PolePairs         float64  `json:"pole_pairs"`
	Resistance        float64  `json:"resistance"` // Ω
	Inductance        float64  `json:"inductance"` // H
	LoadType          LoadType `json:"load_type"`
	LoadInertia       float64  `json:"load_inertia"`  // kg·m²
	Damping           float64  `json:"damping"`       // N·m·s/rad
	ShaftInertia      float64  `json:"shaft_inertia"` // kg·m²
	Friction          float64  `json:"friction"`      // N·m·s/rad
	TempCoefficient   float64  `json:"temp_coefficient"`
	CouplingStiffness float64  `json:"coupling_stiffness"`

	// controller
	Mode       ControlMode `json:"mode"`
	Kp         float64     `json:"kp"`
	Ki         float64     `json:"ki"`
	SpeedRef   float64     `json:"speed_ref"`   // rad/s
	TorqueRef  float64     `json:"torque_ref"`  // N·m
	FluxRef    float64     `json:"flux_ref"`    // Wb
	AccelLimit float64     `json:"accel_limit"` // rad/s²
	Direction  float64     `json:"direction"`   // +1 forward, -1 reverse

	// faults and protection
	CurrentSensorFault bool           `json:"current_sensor_fault"`
	AutoReset          bool           `json:"auto_reset"`
	MaxTemperature     float64        `json:"max_temperature"` // °C
	Protection         ProtectionMode `json:"protection"`
}

// DefaultParameters returns the factory settings of the drive.
func DefaultParameters() DriveParameters {
	return DriveParameters{
		DCLinkVoltage:   400,
		PWMFrequency:    10000,
		DeadTime:        1e-6,
		ModulationIndex: 0.8,
		PWMType:         PWMSine,

		FanSpeed:    0.5,
		CoolantFlow: 5,

		RatedVoltage:      230,
		RatedPower:        5,
		PolePairs:         2,
		Resistance:        0.5,
		Inductance:        0.01,
		LoadType:          LoadConstant,
		LoadInertia:       0.1,
		Damping:           0.01,
		ShaftInertia:      0.05,
		Friction:          0.01,
		TempCoefficient:   0.005,
		CouplingStiffness: 5000,

		Mode:       ModeVf,
		Kp:         0.1,
		Ki:         0.01,
		SpeedRef:   100,
		TorqueRef:  0,
		FluxRef:    1,
		AccelLimit: 100,
		Direction:  1,

		MaxTemperature: 150,
		Protection:     ProtectionWarning,
	}
}

// Validate rejects snapshots that would make a tick produce non-finite state.
// Ranges are the parameter source's business; only finiteness, enum membership
// and the denominators used by the models are checked here.
func (p DriveParameters) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"dc_link_voltage", p.DCLinkVoltage},
		{"pwm_frequency", p.PWMFrequency},
		{"dead_time", p.DeadTime},
		{"modulation_index", p.ModulationIndex},
		{"fan_speed", p.FanSpeed},
		{"coolant_flow", p.CoolantFlow},
		{"rated_voltage", p.RatedVoltage},
		{"rated_power", p.RatedPower},
		{"pole_pairs", p.PolePairs},
		{"resistance", p.Resistance},
		{"inductance", p.Inductance},
		{"load_inertia", p.LoadInertia},
		{"damping", p.Damping},
		{"shaft_inertia", p.ShaftInertia},
		{"friction", p.Friction},
		{"temp_coefficient", p.TempCoefficient},
		{"coupling_stiffness", p.CouplingStiffness},
		{"kp", p.Kp},
		{"ki", p.Ki},
		{"speed_ref", p.SpeedRef},
		{"torque_ref", p.TorqueRef},
		{"flux_ref", p.FluxRef},
		{"accel_limit", p.AccelLimit},
		{"direction", p.Direction},
		{"max_temperature", p.MaxTemperature},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfiguration, f.name)
		}
	}

	switch {
	case !p.Mode.valid():
		return fmt.Errorf("%w: mode %d", ErrInvalidConfiguration, p.Mode)
	case !p.LoadType.valid():
		return fmt.Errorf("%w: load type %d", ErrInvalidConfiguration, p.LoadType)
	case !p.PWMType.valid():
		return fmt.Errorf("%w: pwm type %d", ErrInvalidConfiguration, p.PWMType)
	case !p.Protection.valid():
		return fmt.Errorf("%w: protection mode %d", ErrInvalidConfiguration, p.Protection)
	case p.Direction != 1 && p.Direction != -1:
		return fmt.Errorf("%w: direction must be +1 or -1, got %v", ErrInvalidConfiguration, p.Direction)
	case p.Inductance <= 0:
		return fmt.Errorf("%w: inductance must be positive", ErrInvalidConfiguration)
	case p.LoadInertia+p.ShaftInertia <= 0:
		return fmt.Errorf("%w: total inertia must be positive", ErrInvalidConfiguration)
	case p.Resistance+0.1*p.Inductance <= 0:
		return fmt.Errorf("%w: sensor impedance must be positive", ErrInvalidConfiguration)
	case p.RatedVoltage <= 0:
		return fmt.Errorf("%w: rated voltage must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// TotalInertia is the rotating mass seen by the shaft.
func (p DriveParameters) TotalInertia() float64 { return p.LoadInertia + p.ShaftInertia }
