package drive

import (
	"fmt"
	"math"
	"time"
)

// Constants holds the model coefficients that are fixed for the life of a session.
type Constants struct {
	AmbientTemperature float64 // °C, floor for both thermal states

	MotorThermalResistance     float64 // °C/W
	MotorThermalCapacitance    float64 // J/°C
	InverterThermalResistance  float64 // °C/W
	InverterThermalCapacitance float64 // J/°C

	SensorNoise float64 // σ of additive Gaussian noise on measured currents, A

	OvercurrentScale  float64
	UndervoltageScale float64
	IGBTDutyCeiling   float64
	AutoResetAfter    time.Duration

	// FOC inner loops
	TorqueKp float64
	TorqueKi float64
	FluxKp   float64
	FluxKi   float64

	InitialRotorFlux float64 // Wb
	TorqueModel      string  // "dq" or "average"
}

// DefaultConstants mirrors the values used by the reference drive.
func DefaultConstants() Constants {
	return Constants{
		AmbientTemperature: 25,

		MotorThermalResistance:     0.1,
		MotorThermalCapacitance:    100,
		InverterThermalResistance:  0.05,
		InverterThermalCapacitance: 50,

		OvercurrentScale:  0.5,
		UndervoltageScale: 0.7,
		IGBTDutyCeiling:   0.2,
		AutoResetAfter:    2 * time.Second,

		TorqueKp: 0.5,
		TorqueKi: 0.05,
		FluxKp:   0.3,
		FluxKi:   0.03,

		InitialRotorFlux: 1,
		TorqueModel:      TorqueModelDQ,
	}
}

func (c Constants) Validate() error {
	for name, v := range map[string]float64{
		"ambient_temperature":          c.AmbientTemperature,
		"motor_thermal_resistance":     c.MotorThermalResistance,
		"motor_thermal_capacitance":    c.MotorThermalCapacitance,
		"inverter_thermal_resistance":  c.InverterThermalResistance,
		"inverter_thermal_capacitance": c.InverterThermalCapacitance,
		"sensor_noise":                 c.SensorNoise,
		"initial_rotor_flux":           c.InitialRotorFlux,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidConfiguration, name)
		}
	}
	if c.MotorThermalCapacitance <= 0 || c.InverterThermalCapacitance <= 0 {
		return fmt.Errorf("%w: thermal capacitance must be positive", ErrInvalidConfiguration)
	}
	if c.SensorNoise < 0 {
		return fmt.Errorf("%w: sensor noise must not be negative", ErrInvalidConfiguration)
	}
	if _, err := TorqueModelByName(c.TorqueModel); err != nil {
		return err
	}
	return nil
}
