package drive

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// DefaultTimeStep is the fixed integration step, s.
const DefaultTimeStep = 1e-4

// Session owns every component of one simulated drive and advances them in a
// fixed order. It is not safe for concurrent use; see simulator.Runner.
type Session struct {
	consts Constants
	dt     float64
	tick   uint64
	params DriveParameters
	sink   Sink

	stage      *PowerStage
	motor      *Motor
	controller *Controller
	sensor     *Sensor
	faults     *FaultManager
}

type sessionOptions struct {
	consts   Constants
	clock    Clock
	dt       float64
	sink     Sink
	src      *rand.PCG
	observer FaultObserver
}

// Option configures NewSession.
type Option func(*sessionOptions)

func WithConstants(c Constants) Option { return func(o *sessionOptions) { o.consts = c } }

func WithClock(c Clock) Option { return func(o *sessionOptions) { o.clock = c } }

// WithTimeStep sets the fixed step. The explicit Euler scheme needs it small
// against the electrical time constant L/R.
func WithTimeStep(dt float64) Option { return func(o *sessionOptions) { o.dt = dt } }

func WithSink(s Sink) Option { return func(o *sessionOptions) { o.sink = s } }

// WithRand seeds the sensor noise source.
func WithRand(src *rand.PCG) Option { return func(o *sessionOptions) { o.src = src } }

func WithFaultObserver(fn FaultObserver) Option { return func(o *sessionOptions) { o.observer = fn } }

// NewSession builds a session with zeroed component state.
func NewSession(initial DriveParameters, opts ...Option) (*Session, error) {
	o := sessionOptions{
		consts: DefaultConstants(),
		clock:  SystemClock{},
		dt:     DefaultTimeStep,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if err := o.consts.Validate(); err != nil {
		return nil, err
	}
	if o.dt <= 0 || math.IsNaN(o.dt) || math.IsInf(o.dt, 0) {
		return nil, fmt.Errorf("%w: time step must be positive, got %v", ErrInvalidConfiguration, o.dt)
	}
	tm, err := TorqueModelByName(o.consts.TorqueModel)
	if err != nil {
		return nil, err
	}

	s := &Session{
		consts:     o.consts,
		dt:         o.dt,
		params:     initial,
		sink:       o.sink,
		stage:      NewPowerStage(o.consts),
		motor:      NewMotor(o.consts, tm, initial),
		controller: NewController(o.consts),
		sensor:     NewSensor(o.consts.SensorNoise, o.src),
		faults:     NewFaultManager(o.consts, o.clock, o.observer),
	}
	return s, nil
}

// Step advances the drive by one time step using p. An invalid p is rejected
// before any component is touched.
func (s *Session) Step(p DriveParameters) (Sample, error) {
	if err := p.Validate(); err != nil {
		return Sample{}, err
	}
	t := s.Time()
	s.params = p
	s.faults.simTime = t

	duty := s.controller.Update(p, s.motor.State(), t, s.dt)
	duty = s.faults.ShapeDuty(duty)

	v := s.stage.GeneratePhaseVoltages(duty, p, t, s.dt)
	v = s.faults.ApplyFaults(v, s.motor.State().Temperature, s.stage.State().Temperature, p)

	i := s.sensor.MeasureCurrents(v, p.Resistance, p.Inductance, p.CurrentSensorFault)
	s.motor.UpdateState(v, i, p, s.dt)

	m := s.motor.State()
	sample := Sample{
		Tick:                s.tick,
		Time:                t,
		Voltages:            v,
		Currents:            i,
		Speed:               m.Speed,
		Torque:              m.Torque,
		Fault:               s.faults.Kind(),
		MotorTemperature:    m.Temperature,
		InverterTemperature: s.stage.State().Temperature,
		Mode:                p.Mode,
		ThermalTrip:         s.faults.State().ThermalTrip,
	}
	if s.sink != nil {
		s.sink.Accept(sample)
	}

	s.tick++
	return sample, nil
}

// StepFrom takes the next snapshot from src and steps with it.
func (s *Session) StepFrom(src ParameterSource) (Sample, error) {
	return s.Step(src.Snapshot())
}

// InjectFault forces a fault. FaultNone is ignored.
func (s *Session) InjectFault(kind FaultKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: fault %d", ErrInvalidConfiguration, kind)
	}
	s.faults.simTime = s.Time()
	if !s.faults.Inject(kind) {
		return fmt.Errorf("%w: %s while thermally tripped", ErrFaultRejected, kind)
	}
	return nil
}

func (s *Session) ClearFault() {
	s.faults.simTime = s.Time()
	s.faults.Clear()
}

func (s *Session) ResetController() { s.controller.Reset() }

func (s *Session) Fault() FaultState { return s.faults.State() }

func (s *Session) Motor() MotorState { return s.motor.State() }

func (s *Session) PowerStage() PowerStageState { return s.stage.State() }

func (s *Session) Controller() ControllerState { return s.controller.State() }

// Parameters returns the snapshot used by the most recent tick.
func (s *Session) Parameters() DriveParameters { return s.params }

func (s *Session) Constants() Constants { return s.consts }

func (s *Session) TorqueModel() string { return s.motor.TorqueModel().Name() }

func (s *Session) Tick() uint64 { return s.tick }

func (s *Session) TimeStep() float64 { return s.dt }

// Time is the simulation time of the next tick, s.
func (s *Session) Time() float64 { return float64(s.tick) * s.dt }

// SessionState is a complete copy of the mutable session state.
type SessionState struct {
	Tick       uint64          `json:"tick"`
	Params     DriveParameters `json:"params"`
	PowerStage PowerStageState `json:"power_stage"`
	Motor      MotorState      `json:"motor"`
	Controller ControllerState `json:"controller"`
	Fault      FaultState      `json:"fault"`
	Noise      []byte          `json:"noise,omitempty"`
}

func (s *Session) Snapshot() SessionState {
	return SessionState{
		Tick:       s.tick,
		Params:     s.params,
		PowerStage: s.stage.State(),
		Motor:      s.motor.State(),
		Controller: s.controller.State(),
		Fault:      s.faults.State(),
		Noise:      s.sensor.state(),
	}
}

// Restore rolls the session back to st.
func (s *Session) Restore(st SessionState) error {
	if err := s.sensor.restore(st.Noise); err != nil {
		return fmt.Errorf("restore noise source: %w", err)
	}
	s.tick = st.Tick
	s.params = st.Params
	s.stage.Restore(st.PowerStage)
	s.motor.Restore(st.Motor)
	s.controller.Restore(st.Controller)
	s.faults.Restore(st.Fault)
	return nil
}
