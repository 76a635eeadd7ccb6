package drive

import (
	"math"
	"time"
)

// TransitionCause says what moved the fault state machine.
type TransitionCause string

const (
	CauseInjected  TransitionCause = "injected"
	CauseCleared   TransitionCause = "cleared"
	CauseThermal   TransitionCause = "thermal"
	CauseAutoReset TransitionCause = "auto_reset"
)

// FaultTransition is reported to the observer on every state change.
type FaultTransition struct {
	From    FaultKind       `json:"from"`
	To      FaultKind       `json:"to"`
	Cause   TransitionCause `json:"cause"`
	SimTime float64         `json:"sim_time"`
	At      time.Time       `json:"at"`
}

// FaultObserver must return immediately; it runs inside the tick.
type FaultObserver func(FaultTransition)

// FaultState is the current fault and when it began on the injected clock.
type FaultState struct {
	Kind        FaultKind `json:"kind"`
	Onset       time.Time `json:"onset"`
	ThermalTrip bool      `json:"thermal_trip"` // Overheat raised by the thermal monitor
}

// FaultManager owns the fault state machine and shapes the inverter output.
// Not safe for concurrent use.
type FaultManager struct {
	consts   Constants
	clock    Clock
	observer FaultObserver
	state    FaultState
	simTime  float64
}

func NewFaultManager(c Constants, clock Clock, observer FaultObserver) *FaultManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &FaultManager{consts: c, clock: clock, observer: observer}
}

func (fm *FaultManager) State() FaultState { return fm.state }

func (fm *FaultManager) Restore(s FaultState) { fm.state = s }

func (fm *FaultManager) Kind() FaultKind { return fm.state.Kind }

// Inject sets the fault and stamps its onset. FaultNone is a no-op; use Clear.
// A thermally tripped Overheat can only be replaced by another Overheat, and
// Inject reports false when it refuses.
func (fm *FaultManager) Inject(kind FaultKind) bool {
	if !kind.Valid() {
		return false
	}
	if kind == FaultNone {
		return true
	}
	if fm.state.ThermalTrip && fm.state.Kind == FaultOverheat && kind != FaultOverheat {
		return false
	}
	fm.transition(kind, CauseInjected, false)
	return true
}

// Clear returns to FaultNone.
func (fm *FaultManager) Clear() {
	if fm.state.Kind == FaultNone {
		fm.state = FaultState{}
		return
	}
	fm.transition(FaultNone, CauseCleared, false)
}

// ShapeDuty caps the duty command while an IGBT is failed.
func (fm *FaultManager) ShapeDuty(duty [3]float64) [3]float64 {
	if fm.state.Kind != FaultIGBTFailure {
		return duty
	}
	for i := range duty {
		duty[i] = math.Min(duty[i], fm.consts.IGBTDutyCeiling)
	}
	return duty
}

// ApplyFaults runs the thermal monitor, then auto-reset, then shapes the
// voltages for the resulting fault state.
func (fm *FaultManager) ApplyFaults(v [3]float64, motorT, inverterT float64, p DriveParameters) [3]float64 {
	if motorT > p.MaxTemperature || inverterT > p.MaxTemperature {
		switch p.Protection {
		case ProtectionShutdown:
			if fm.state.Kind != FaultOverheat {
				fm.transition(FaultOverheat, CauseThermal, true)
			}
			fm.state.ThermalTrip = true
			return [3]float64{}
		case ProtectionWarning:
			if fm.state.Kind != FaultOverheat {
				fm.transition(FaultOverheat, CauseThermal, true)
			}
		case ProtectionNone:
		}
	}

	if p.AutoReset && fm.state.Kind != FaultNone &&
		fm.clock.Now().Sub(fm.state.Onset) > fm.consts.AutoResetAfter {
		fm.transition(FaultNone, CauseAutoReset, false)
	}

	switch fm.state.Kind {
	case FaultNone:
	case FaultOvercurrent:
		v = scale(v, fm.consts.OvercurrentScale)
	case FaultUndervoltage:
		v = scale(v, fm.consts.UndervoltageScale)
	case FaultPhaseLoss:
		v[0] = 0
	case FaultOverheat:
		if p.Protection == ProtectionShutdown {
			v = [3]float64{}
		}
	case FaultIGBTFailure:
		// already limited on the duty command
	}
	return v
}

func (fm *FaultManager) transition(to FaultKind, cause TransitionCause, thermal bool) {
	from := fm.state.Kind
	now := fm.clock.Now()
	fm.state = FaultState{Kind: to, ThermalTrip: thermal}
	if to != FaultNone {
		fm.state.Onset = now
	}
	if fm.observer != nil {
		fm.observer(FaultTransition{From: from, To: to, Cause: cause, SimTime: fm.simTime, At: now})
	}
}

func scale(v [3]float64, k float64) [3]float64 {
	for i := range v {
		v[i] *= k
	}
	return v
}
