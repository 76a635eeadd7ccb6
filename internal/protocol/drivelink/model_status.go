package drivelink

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"inverter-drive/internal/drive"
)

// StatusDataLength: Time(6) + Tick(8) + 5×float64(40) + Fault(1) + Mode(1) + Flags(1)
const StatusDataLength = 6 + 8 + 5*8 + 3

// StatusData 状态应答 (命令单元 0x12)
type StatusData struct {
	CollectTime         time.Time
	Tick                uint64
	SimTime             float64
	Speed               float64
	Torque              float64
	MotorTemperature    float64
	InverterTemperature float64
	Fault               drive.FaultKind
	Mode                drive.ControlMode
	ThermalTrip         bool
}

func (s *StatusData) Encode() []byte {
	buf := make([]byte, StatusDataLength)
	copy(buf[0:6], EncodeTime(s.CollectTime))
	binary.BigEndian.PutUint64(buf[6:14], s.Tick)
	off := 14
	for _, v := range []float64{s.SimTime, s.Speed, s.Torque, s.MotorTemperature, s.InverterTemperature} {
		binary.BigEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
		off += 8
	}
	buf[off] = byte(s.Fault)
	buf[off+1] = byte(s.Mode)
	if s.ThermalTrip {
		buf[off+2] = flagThermalTrip
	}
	return buf
}

func ParseStatus(data []byte) (*StatusData, error) {
	if len(data) < StatusDataLength {
		return nil, errors.New("drivelink: status data too short")
	}
	t, err := DecodeTime(data[:6])
	if err != nil {
		return nil, err
	}
	s := &StatusData{CollectTime: t, Tick: binary.BigEndian.Uint64(data[6:14])}
	f := func(off int) float64 { return math.Float64frombits(binary.BigEndian.Uint64(data[off : off+8])) }
	s.SimTime = f(14)
	s.Speed = f(22)
	s.Torque = f(30)
	s.MotorTemperature = f(38)
	s.InverterTemperature = f(46)
	s.Fault = drive.FaultKind(data[54])
	s.Mode = drive.ControlMode(data[55])
	s.ThermalTrip = data[56]&flagThermalTrip != 0
	return s, nil
}
