package drive

import "math/rand/v2"

// Sensor derives the measured phase currents from the applied voltages using
// the steady-state impedance R + 0.1·L. It has no memory of past currents.
type Sensor struct {
	noise float64
	src   *rand.PCG
	rng   *rand.Rand
}

// NewSensor returns a sensor with Gaussian noise σ. A nil src falls back to a
// fixed seed so runs stay reproducible.
func NewSensor(noise float64, src *rand.PCG) *Sensor {
	if src == nil {
		src = rand.NewPCG(1, 2)
	}
	return &Sensor{noise: noise, src: src, rng: rand.New(src)}
}

// MeasureCurrents returns zeros when the sensor has failed.
func (s *Sensor) MeasureCurrents(v [3]float64, resistance, inductance float64, failed bool) [3]float64 {
	var out [3]float64
	if failed {
		return out
	}
	z := resistance + 0.1*inductance
	for i := range v {
		out[i] = v[i] / z
		if s.noise > 0 {
			out[i] += s.rng.NormFloat64() * s.noise
		}
	}
	return out
}

func (s *Sensor) state() []byte {
	b, _ := s.src.MarshalBinary()
	return b
}

func (s *Sensor) restore(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return s.src.UnmarshalBinary(b)
}
