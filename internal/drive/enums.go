package drive

import (
	"fmt"
	"strings"
)

// ControlMode 控制模式
type ControlMode uint8

const (
	ModeVf  ControlMode = iota // scalar V/f
	ModeFOC                    // field-oriented vector control
	ModeDTC                    // direct torque control (stub)
)

func (m ControlMode) String() string {
	switch m {
	case ModeVf:
		return "V/f"
	case ModeFOC:
		return "FOC"
	case ModeDTC:
		return "DTC"
	}
	return fmt.Sprintf("ControlMode(%d)", uint8(m))
}

func (m ControlMode) valid() bool { return m <= ModeDTC }

func (m ControlMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ControlMode) UnmarshalText(b []byte) error {
	v, err := ParseControlMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseControlMode accepts "V/f", "vf", "FOC" and "DTC" (case-insensitive).
func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v/f", "vf", "":
		return ModeVf, nil
	case "foc":
		return ModeFOC, nil
	case "dtc":
		return ModeDTC, nil
	}
	return 0, fmt.Errorf("%w: unknown control mode %q", ErrInvalidConfiguration, s)
}

// LoadType 负载类型
type LoadType uint8

const (
	LoadConstant LoadType = iota // fixed 10 N·m
	LoadFanPump                  // quadratic in speed
	LoadInertia                  // pure inertia, no load torque
)

func (l LoadType) String() string {
	switch l {
	case LoadConstant:
		return "Constant"
	case LoadFanPump:
		return "Fan/Pump"
	case LoadInertia:
		return "Inertia"
	}
	return fmt.Sprintf("LoadType(%d)", uint8(l))
}

func (l LoadType) valid() bool { return l <= LoadInertia }

func ParseLoadType(s string) (LoadType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "constant", "":
		return LoadConstant, nil
	case "fan/pump", "fan", "pump", "fan_pump":
		return LoadFanPump, nil
	case "inertia":
		return LoadInertia, nil
	}
	return 0, fmt.Errorf("%w: unknown load type %q", ErrInvalidConfiguration, s)
}

// PWMType 调制方式
type PWMType uint8

const (
	PWMSine        PWMType = iota // SPWM
	PWMSpaceVector                // SVPWM
)

func (p PWMType) String() string {
	switch p {
	case PWMSine:
		return "SPWM"
	case PWMSpaceVector:
		return "SVPWM"
	}
	return fmt.Sprintf("PWMType(%d)", uint8(p))
}

func (p PWMType) valid() bool { return p <= PWMSpaceVector }

func ParsePWMType(s string) (PWMType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spwm", "sine", "":
		return PWMSine, nil
	case "svpwm", "space_vector":
		return PWMSpaceVector, nil
	}
	return 0, fmt.Errorf("%w: unknown pwm type %q", ErrInvalidConfiguration, s)
}

// ProtectionMode 热保护模式
type ProtectionMode uint8

const (
	ProtectionNone ProtectionMode = iota
	ProtectionWarning
	ProtectionShutdown
)

func (p ProtectionMode) String() string {
	switch p {
	case ProtectionNone:
		return "None"
	case ProtectionWarning:
		return "Warning"
	case ProtectionShutdown:
		return "Shutdown"
	}
	return fmt.Sprintf("ProtectionMode(%d)", uint8(p))
}

func (p ProtectionMode) valid() bool { return p <= ProtectionShutdown }

func ParseProtectionMode(s string) (ProtectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return ProtectionNone, nil
	case "warning", "":
		return ProtectionWarning, nil
	case "shutdown":
		return ProtectionShutdown, nil
	}
	return 0, fmt.Errorf("%w: unknown protection mode %q", ErrInvalidConfiguration, s)
}

// FaultKind is the closed set of simulated drive faults.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultOvercurrent
	FaultUndervoltage
	FaultPhaseLoss
	FaultOverheat
	FaultIGBTFailure
)

// AllFaultKinds lists every fault kind in wire order.
var AllFaultKinds = []FaultKind{
	FaultNone, FaultOvercurrent, FaultUndervoltage, FaultPhaseLoss, FaultOverheat, FaultIGBTFailure,
}

func (f FaultKind) String() string {
	switch f {
	case FaultNone:
		return "None"
	case FaultOvercurrent:
		return "Overcurrent"
	case FaultUndervoltage:
		return "Undervoltage"
	case FaultPhaseLoss:
		return "Phase Loss"
	case FaultOverheat:
		return "Overheat"
	case FaultIGBTFailure:
		return "IGBTFailure"
	}
	return fmt.Sprintf("FaultKind(%d)", uint8(f))
}

// Valid reports whether f is one of the enumerated kinds.
func (f FaultKind) Valid() bool { return f <= FaultIGBTFailure }

func (f FaultKind) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FaultKind) UnmarshalText(b []byte) error {
	k, err := ParseFaultKind(string(b))
	if err != nil {
		return err
	}
	*f = k
	return nil
}

func ParseFaultKind(s string) (FaultKind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(norm)
	switch norm {
	case "none", "":
		return FaultNone, nil
	case "overcurrent":
		return FaultOvercurrent, nil
	case "undervoltage":
		return FaultUndervoltage, nil
	case "phaseloss":
		return FaultPhaseLoss, nil
	case "overheat":
		return FaultOverheat, nil
	case "igbtfailure", "igbt":
		return FaultIGBTFailure, nil
	}
	return 0, fmt.Errorf("%w: unknown fault %q", ErrInvalidConfiguration, s)
}
