package drive

import (
	"fmt"
	"math"
)

const (
	TorqueModelDQ      = "dq"
	TorqueModelAverage = "average"
)

// TorqueModel turns the d-q projection of the phase currents into electrical torque.
type TorqueModel interface {
	Name() string
	Torque(p DriveParameters, flux, iq float64, currents [3]float64) float64
}

// DQTorque is the d-q projection model: Te = 1.5·pp·ψ·iq.
type DQTorque struct{}

func (DQTorque) Name() string { return TorqueModelDQ }

func (DQTorque) Torque(p DriveParameters, flux, iq float64, _ [3]float64) float64 {
	return 1.5 * p.PolePairs * flux * iq
}

// AverageCurrentTorque is the simpler model: Te = pp·ψ·mean|i|·0.1.
// It yields roughly an order of magnitude less torque than DQTorque.
type AverageCurrentTorque struct{}

func (AverageCurrentTorque) Name() string { return TorqueModelAverage }

func (AverageCurrentTorque) Torque(p DriveParameters, flux, _ float64, currents [3]float64) float64 {
	avg := (math.Abs(currents[0]) + math.Abs(currents[1]) + math.Abs(currents[2])) / 3
	return p.PolePairs * flux * avg * 0.1
}

// TorqueModelByName resolves a configured model name; the empty name means "dq".
func TorqueModelByName(name string) (TorqueModel, error) {
	switch name {
	case TorqueModelDQ, "":
		return DQTorque{}, nil
	case TorqueModelAverage:
		return AverageCurrentTorque{}, nil
	}
	return nil, fmt.Errorf("%w: unknown torque model %q", ErrInvalidConfiguration, name)
}
