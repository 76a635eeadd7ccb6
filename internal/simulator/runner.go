package simulator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
	"inverter-drive/internal/params"
)

// Config 运行器配置
type Config struct {
	RunID        string
	DriveID      string
	TickInterval time.Duration // wall time between ticker fires
	StepsPerTick int           // simulation steps per fire
}

// Status is a point-in-time view of the run.
type Status struct {
	RunID               string            `json:"run_id"`
	DriveID             string            `json:"drive_id"`
	Running             bool              `json:"running"`
	Tick                uint64            `json:"tick"`
	SimTime             float64           `json:"sim_time"`
	Mode                drive.ControlMode `json:"mode"`
	Fault               drive.FaultKind   `json:"fault"`
	ThermalTrip         bool              `json:"thermal_trip"`
	Speed               float64           `json:"speed"`
	Torque              float64           `json:"torque"`
	MotorTemperature    float64           `json:"motor_temperature"`
	InverterTemperature float64           `json:"inverter_temperature"`
	ParamsVersion       uint64            `json:"params_version"`
	SkippedTicks        uint64            `json:"skipped_ticks"`
	LastError           string            `json:"last_error,omitempty"`
}

// ParameterStore is the live parameter set the runner reads each tick and
// writes scenario and wire updates into. *params.Store implements it.
type ParameterStore interface {
	drive.ParameterSource
	ApplyText(values map[string]string) error
	Apply(updates []params.Update) error
	Version() uint64
}

// Runner drives a Session from a parameter store. At most one tick runs at a
// time; fault commands and resets wait for the tick in progress.
type Runner struct {
	mu       sync.Mutex
	session  *drive.Session
	store    ParameterStore
	scenario *params.Scenario
	cfg      Config
	logger   *zap.Logger

	skipped uint64
	lastErr string

	running atomic.Bool
}

func NewRunner(session *drive.Session, store ParameterStore, cfg Config, logger *zap.Logger) *Runner {
	if cfg.StepsPerTick <= 0 {
		cfg.StepsPerTick = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		session: session,
		store:   store,
		cfg:     cfg,
		logger:  logger.With(zap.String("run_id", cfg.RunID)),
	}
}

// SetScenario replaces the scripted timeline. Events already in the past
// fire on the next tick.
func (r *Runner) SetScenario(sc *params.Scenario) {
	r.mu.Lock()
	r.scenario = sc
	r.mu.Unlock()
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("simulator: already running")
	}
	defer r.running.Store(false)

	r.logger.Info("Runner started",
		zap.Duration("tick_interval", r.cfg.TickInterval),
		zap.Int("steps_per_tick", r.cfg.StepsPerTick),
		zap.Float64("dt", r.session.TimeStep()))

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Runner stopped", zap.Uint64("tick", r.Tick()))
			return ctx.Err()
		case <-ticker.C:
			for i := 0; i < r.cfg.StepsPerTick; i++ {
				_ = r.Step()
			}
		}
	}
}

// RunSteps executes n steps as fast as possible and returns how many were
// taken (skipped ticks included).
func (r *Runner) RunSteps(ctx context.Context, n int) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, errors.New("simulator: already running")
	}
	defer r.running.Store(false)

	for i := 0; i < n; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return i, err
			}
		}
		_ = r.Step()
	}
	return n, nil
}

// Step runs one tick. An invalid parameter snapshot leaves the session
// untouched and is logged once per distinct error.
func (r *Runner) Step() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.playScenario()

	if _, err := r.session.StepFrom(r.store); err != nil {
		r.skipped++
		if msg := err.Error(); msg != r.lastErr {
			r.lastErr = msg
			r.logger.Warn("Tick skipped", zap.Error(err), zap.Uint64("tick", r.session.Tick()))
		}
		return err
	}
	r.lastErr = ""
	return nil
}

func (r *Runner) playScenario() {
	for _, e := range r.scenario.Due(r.session.Time()) {
		if len(e.Set) > 0 {
			if err := r.store.ApplyText(e.Set); err != nil {
				r.logger.Warn("Scenario event rejected", zap.Float64("at", e.At), zap.Error(err))
			}
		}
		if e.Clear {
			r.session.ClearFault()
		}
		if e.Inject != "" {
			if err := r.session.InjectFault(e.Fault()); err != nil {
				r.logger.Warn("Scenario fault rejected", zap.Float64("at", e.At), zap.Error(err))
			}
		}
		if e.ResetController {
			r.session.ResetController()
		}
	}
}

func (r *Runner) InjectFault(kind drive.FaultKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.InjectFault(kind)
}

func (r *Runner) ClearFault() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.ClearFault()
}

func (r *Runner) ResetController() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session.ResetController()
}

// ApplyParams validates and stores wire updates; they take effect next tick.
func (r *Runner) ApplyParams(updates []params.Update) error {
	return r.store.Apply(updates)
}

func (r *Runner) Tick() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Tick()
}

// Snapshot copies the whole session state between ticks.
func (r *Runner) Snapshot() drive.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Snapshot()
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.session.Motor()
	fs := r.session.Fault()
	return Status{
		RunID:               r.cfg.RunID,
		DriveID:             r.cfg.DriveID,
		Running:             r.running.Load(),
		Tick:                r.session.Tick(),
		SimTime:             r.session.Time(),
		Mode:                r.session.Parameters().Mode,
		Fault:               fs.Kind,
		ThermalTrip:         fs.ThermalTrip,
		Speed:               m.Speed,
		Torque:              m.Torque,
		MotorTemperature:    m.Temperature,
		InverterTemperature: r.session.PowerStage().Temperature,
		ParamsVersion:       r.store.Version(),
		SkippedTicks:        r.skipped,
		LastError:           r.lastErr,
	}
}
