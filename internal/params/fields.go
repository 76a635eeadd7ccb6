package params

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"inverter-drive/internal/drive"
)

// ErrUnknownParameter is returned for names or IDs outside the field table.
var ErrUnknownParameter = errors.New("params: unknown parameter")

type fieldKind uint8

const (
	kindNumber fieldKind = iota
	kindBool
	kindEnum
)

// Field describes one tunable parameter. Every value travels as float64 on the
// wire; booleans are 0/1 and enums their ordinal.
type Field struct {
	ID   uint8
	Name string
	kind fieldKind
	get  func(*drive.DriveParameters) float64
	set  func(*drive.DriveParameters, float64)
	// enums only
	parse func(string) (float64, error)
	max   float64
}

func number(id uint8, name string, ptr func(*drive.DriveParameters) *float64) Field {
	return Field{
		ID: id, Name: name, kind: kindNumber,
		get: func(p *drive.DriveParameters) float64 { return *ptr(p) },
		set: func(p *drive.DriveParameters, v float64) { *ptr(p) = v },
	}
}

func boolean(id uint8, name string, ptr func(*drive.DriveParameters) *bool) Field {
	return Field{
		ID: id, Name: name, kind: kindBool,
		get: func(p *drive.DriveParameters) float64 {
			if *ptr(p) {
				return 1
			}
			return 0
		},
		set: func(p *drive.DriveParameters, v float64) { *ptr(p) = v != 0 },
	}
}

var fields = []Field{
	number(1, "dc_link_voltage", func(p *drive.DriveParameters) *float64 { return &p.DCLinkVoltage }),
	number(2, "pwm_frequency", func(p *drive.DriveParameters) *float64 { return &p.PWMFrequency }),
	number(3, "dead_time", func(p *drive.DriveParameters) *float64 { return &p.DeadTime }),
	number(4, "modulation_index", func(p *drive.DriveParameters) *float64 { return &p.ModulationIndex }),
	boolean(5, "harmonic_injection", func(p *drive.DriveParameters) *bool { return &p.HarmonicInjection }),
	boolean(6, "overmodulation", func(p *drive.DriveParameters) *bool { return &p.Overmodulation }),
	{
		ID: 7, Name: "pwm_type", kind: kindEnum, max: float64(drive.PWMSpaceVector),
		get: func(p *drive.DriveParameters) float64 { return float64(p.PWMType) },
		set: func(p *drive.DriveParameters, v float64) { p.PWMType = drive.PWMType(v) },
		parse: func(s string) (float64, error) {
			v, err := drive.ParsePWMType(s)
			return float64(v), err
		},
	},
	number(8, "fan_speed", func(p *drive.DriveParameters) *float64 { return &p.FanSpeed }),
	number(9, "coolant_flow", func(p *drive.DriveParameters) *float64 { return &p.CoolantFlow }),
	number(10, "rated_voltage", func(p *drive.DriveParameters) *float64 { return &p.RatedVoltage }),
	number(11, "rated_power", func(p *drive.DriveParameters) *float64 { return &p.RatedPower }),
	number(12, "pole_pairs", func(p *drive.DriveParameters) *float64 { return &p.PolePairs }),
	number(13, "resistance", func(p *drive.DriveParameters) *float64 { return &p.Resistance }),
	number(14, "inductance", func(p *drive.DriveParameters) *float64 { return &p.Inductance }),
	{
		ID: 15, Name: "load_type", kind: kindEnum, max: float64(drive.LoadInertia),
		get: func(p *drive.DriveParameters) float64 { return float64(p.LoadType) },
		set: func(p *drive.DriveParameters, v float64) { p.LoadType = drive.LoadType(v) },
		parse: func(s string) (float64, error) {
			v, err := drive.ParseLoadType(s)
			return float64(v), err
		},
	},
	number(16, "load_inertia", func(p *drive.DriveParameters) *float64 { return &p.LoadInertia }),
	number(17, "damping", func(p *drive.DriveParameters) *float64 { return &p.Damping }),
	number(18, "shaft_inertia", func(p *drive.DriveParameters) *float64 { return &p.ShaftInertia }),
	number(19, "friction", func(p *drive.DriveParameters) *float64 { return &p.Friction }),
	number(20, "temp_coefficient", func(p *drive.DriveParameters) *float64 { return &p.TempCoefficient }),
	number(21, "coupling_stiffness", func(p *drive.DriveParameters) *float64 { return &p.CouplingStiffness }),
	{
		ID: 22, Name: "mode", kind: kindEnum, max: float64(drive.ModeDTC),
		get: func(p *drive.DriveParameters) float64 { return float64(p.Mode) },
		set: func(p *drive.DriveParameters, v float64) { p.Mode = drive.ControlMode(v) },
		parse: func(s string) (float64, error) {
			v, err := drive.ParseControlMode(s)
			return float64(v), err
		},
	},
	number(23, "kp", func(p *drive.DriveParameters) *float64 { return &p.Kp }),
	number(24, "ki", func(p *drive.DriveParameters) *float64 { return &p.Ki }),
	number(25, "speed_ref", func(p *drive.DriveParameters) *float64 { return &p.SpeedRef }),
	number(26, "torque_ref", func(p *drive.DriveParameters) *float64 { return &p.TorqueRef }),
	number(27, "flux_ref", func(p *drive.DriveParameters) *float64 { return &p.FluxRef }),
	number(28, "accel_limit", func(p *drive.DriveParameters) *float64 { return &p.AccelLimit }),
	number(29, "direction", func(p *drive.DriveParameters) *float64 { return &p.Direction }),
	boolean(30, "current_sensor_fault", func(p *drive.DriveParameters) *bool { return &p.CurrentSensorFault }),
	boolean(31, "auto_reset", func(p *drive.DriveParameters) *bool { return &p.AutoReset }),
	number(32, "max_temperature", func(p *drive.DriveParameters) *float64 { return &p.MaxTemperature }),
	{
		ID: 33, Name: "protection", kind: kindEnum, max: float64(drive.ProtectionShutdown),
		get: func(p *drive.DriveParameters) float64 { return float64(p.Protection) },
		set: func(p *drive.DriveParameters, v float64) { p.Protection = drive.ProtectionMode(v) },
		parse: func(s string) (float64, error) {
			v, err := drive.ParseProtectionMode(s)
			return float64(v), err
		},
	},
}

var (
	byName = make(map[string]*Field, len(fields))
	byID   = make(map[uint8]*Field, len(fields))
)

func init() {
	for i := range fields {
		f := &fields[i]
		byName[f.Name] = f
		byID[f.ID] = f
	}
}

// Fields returns the parameter table in ID order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

func LookupName(name string) (Field, bool) {
	f, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

func LookupID(id uint8) (Field, bool) {
	f, ok := byID[id]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// Get reads the field's wire value from p.
func (f Field) Get(p drive.DriveParameters) float64 { return f.get(&p) }

// Apply writes a wire value into p. Enum ordinals out of range are rejected.
func (f Field) Apply(p *drive.DriveParameters, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is not finite", drive.ErrInvalidConfiguration, f.Name)
	}
	if f.kind == kindEnum && (v < 0 || v > f.max || v != math.Trunc(v)) {
		return fmt.Errorf("%w: %s has no value %v", drive.ErrInvalidConfiguration, f.Name, v)
	}
	f.set(p, v)
	return nil
}

// Parse turns a text value ("FOC", "true", "120.5") into the wire value.
func (f Field) Parse(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	switch f.kind {
	case kindEnum:
		return f.parse(raw)
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", drive.ErrInvalidConfiguration, f.Name, err)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", drive.ErrInvalidConfiguration, f.Name, err)
	}
	return v, nil
}

// Format renders the current value of f in p the way Parse accepts it.
func (f Field) Format(p drive.DriveParameters) string {
	switch f.Name {
	case "pwm_type":
		return p.PWMType.String()
	case "load_type":
		return p.LoadType.String()
	case "mode":
		return p.Mode.String()
	case "protection":
		return p.Protection.String()
	}
	if f.kind == kindBool {
		return strconv.FormatBool(f.Get(p) != 0)
	}
	return strconv.FormatFloat(f.Get(p), 'g', -1, 64)
}
