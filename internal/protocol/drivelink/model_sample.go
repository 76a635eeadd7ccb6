package drivelink

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"inverter-drive/internal/drive"
)

// SampleUnitLength 单个采样单元长度
//
//	Tick(4) + Time(4) + Va..Vc(3×2) + Ia..Ic(3×4) + Speed(4) + Torque(4)
//	+ Fault(1) + Mode(1) + MotorTemp(4) + InverterTemp(4) + Flags(1) = 45
const SampleUnitLength = 45

// Scaling of the sample unit. Raw = (value + offset) / precision, saturated.
const (
	timePrecision    = 0.001 // s
	voltageOffset    = 1000  // V
	voltagePrecision = 0.1
	currentOffset    = 100000 // A
	currentPrecision = 0.01
	speedPrecision   = 0.001 // rad/s
	torqueOffset     = 20000 // N·m
	torquePrecision  = 0.01
	tempOffset       = 40 // °C
	tempPrecision    = 0.01
)

const flagThermalTrip = 0x01

// SampleUnit 采样数据单元 (命令单元 0x02)
type SampleUnit struct {
	Tick                uint32
	Time                float64
	Voltages            [3]float64
	Currents            [3]float64
	Speed               float64
	Torque              float64
	Fault               drive.FaultKind
	Mode                drive.ControlMode
	MotorTemperature    float64
	InverterTemperature float64
	ThermalTrip         bool
}

// NewSampleUnit 从仿真采样构建数据单元
func NewSampleUnit(s drive.Sample) SampleUnit {
	return SampleUnit{
		Tick:                uint32(s.Tick),
		Time:                s.Time,
		Voltages:            s.Voltages,
		Currents:            s.Currents,
		Speed:               s.Speed,
		Torque:              s.Torque,
		Fault:               s.Fault,
		Mode:                s.Mode,
		MotorTemperature:    s.MotorTemperature,
		InverterTemperature: s.InverterTemperature,
		ThermalTrip:         s.ThermalTrip,
	}
}

// Sample 还原为仿真采样 (精度受编码限制)
func (u SampleUnit) Sample() drive.Sample {
	return drive.Sample{
		Tick:                uint64(u.Tick),
		Time:                u.Time,
		Voltages:            u.Voltages,
		Currents:            u.Currents,
		Speed:               u.Speed,
		Torque:              u.Torque,
		Fault:               u.Fault,
		MotorTemperature:    u.MotorTemperature,
		InverterTemperature: u.InverterTemperature,
		Mode:                u.Mode,
		ThermalTrip:         u.ThermalTrip,
	}
}

func (u SampleUnit) encodeTo(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], u.Tick)
	binary.BigEndian.PutUint32(b[4:8], scale32(u.Time, 0, timePrecision))
	off := 8
	for _, v := range u.Voltages {
		binary.BigEndian.PutUint16(b[off:off+2], scale16(v, voltageOffset, voltagePrecision))
		off += 2
	}
	for _, i := range u.Currents {
		binary.BigEndian.PutUint32(b[off:off+4], scale32(i, currentOffset, currentPrecision))
		off += 4
	}
	binary.BigEndian.PutUint32(b[off:off+4], scale32(u.Speed, 0, speedPrecision))
	off += 4
	binary.BigEndian.PutUint32(b[off:off+4], scale32(u.Torque, torqueOffset, torquePrecision))
	off += 4
	b[off] = byte(u.Fault)
	b[off+1] = byte(u.Mode)
	off += 2
	binary.BigEndian.PutUint32(b[off:off+4], scale32(u.MotorTemperature, tempOffset, tempPrecision))
	off += 4
	binary.BigEndian.PutUint32(b[off:off+4], scale32(u.InverterTemperature, tempOffset, tempPrecision))
	off += 4
	if u.ThermalTrip {
		b[off] = flagThermalTrip
	}
}

func parseSampleUnit(b []byte) SampleUnit {
	var u SampleUnit
	u.Tick = binary.BigEndian.Uint32(b[0:4])
	u.Time = unscale(uint64(binary.BigEndian.Uint32(b[4:8])), 0, timePrecision)
	off := 8
	for i := range u.Voltages {
		u.Voltages[i] = unscale(uint64(binary.BigEndian.Uint16(b[off:off+2])), voltageOffset, voltagePrecision)
		off += 2
	}
	for i := range u.Currents {
		u.Currents[i] = unscale(uint64(binary.BigEndian.Uint32(b[off:off+4])), currentOffset, currentPrecision)
		off += 4
	}
	u.Speed = unscale(uint64(binary.BigEndian.Uint32(b[off:off+4])), 0, speedPrecision)
	off += 4
	u.Torque = unscale(uint64(binary.BigEndian.Uint32(b[off:off+4])), torqueOffset, torquePrecision)
	off += 4
	u.Fault = drive.FaultKind(b[off])
	u.Mode = drive.ControlMode(b[off+1])
	off += 2
	u.MotorTemperature = unscale(uint64(binary.BigEndian.Uint32(b[off:off+4])), tempOffset, tempPrecision)
	off += 4
	u.InverterTemperature = unscale(uint64(binary.BigEndian.Uint32(b[off:off+4])), tempOffset, tempPrecision)
	off += 4
	u.ThermalTrip = b[off]&flagThermalTrip != 0
	return u
}

// SampleData 采样数据 [时间 6][数量 1][单元 N×45]
type SampleData struct {
	CollectTime time.Time
	Units       []SampleUnit
}

// Encode 编码采样数据, 单帧最多 255 个单元
func (d *SampleData) Encode() ([]byte, error) {
	if len(d.Units) > math.MaxUint8 {
		return nil, ErrTooLarge
	}
	buf := make([]byte, 7+len(d.Units)*SampleUnitLength)
	copy(buf[0:6], EncodeTime(d.CollectTime))
	buf[6] = byte(len(d.Units))
	off := 7
	for _, u := range d.Units {
		u.encodeTo(buf[off : off+SampleUnitLength])
		off += SampleUnitLength
	}
	return buf, nil
}

// ParseSampleData 解析采样数据
func ParseSampleData(data []byte) (*SampleData, error) {
	if len(data) < 7 {
		return nil, errors.New("drivelink: sample data too short")
	}
	t, err := DecodeTime(data[:6])
	if err != nil {
		return nil, err
	}
	count := int(data[6])
	if len(data) < 7+count*SampleUnitLength {
		return nil, errors.New("drivelink: sample data length mismatch")
	}
	units := make([]SampleUnit, 0, count)
	off := 7
	for i := 0; i < count; i++ {
		units = append(units, parseSampleUnit(data[off:off+SampleUnitLength]))
		off += SampleUnitLength
	}
	return &SampleData{CollectTime: t, Units: units}, nil
}

func scale16(v, offset, precision float64) uint16 {
	return uint16(saturate(v, offset, precision, math.MaxUint16))
}

func scale32(v, offset, precision float64) uint32 {
	return uint32(saturate(v, offset, precision, math.MaxUint32))
}

func saturate(v, offset, precision, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	raw := math.Round((v + offset) / precision)
	return math.Min(math.Max(raw, 0), limit)
}

func unscale(raw uint64, offset, precision float64) float64 {
	return float64(raw)*precision - offset
}
