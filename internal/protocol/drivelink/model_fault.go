package drivelink

import (
	"errors"
	"fmt"
	"time"

	"inverter-drive/internal/drive"
)

// FaultAction 故障命令动作
type FaultAction byte

const (
	FaultInject          FaultAction = 0x01
	FaultClear           FaultAction = 0x02
	FaultResetController FaultAction = 0x03
)

func (a FaultAction) String() string {
	switch a {
	case FaultInject:
		return "inject"
	case FaultClear:
		return "clear"
	case FaultResetController:
		return "reset_controller"
	}
	return fmt.Sprintf("FaultAction(%d)", byte(a))
}

// FaultData 故障命令 (命令单元 0x11)
// 格式: [时间 6][动作 1][故障类型 1]
type FaultData struct {
	CollectTime time.Time
	Action      FaultAction
	Kind        drive.FaultKind
}

func ParseFault(data []byte) (*FaultData, error) {
	if len(data) < 8 {
		return nil, errors.New("drivelink: fault data too short")
	}
	t, err := DecodeTime(data[:6])
	if err != nil {
		return nil, err
	}
	d := &FaultData{CollectTime: t, Action: FaultAction(data[6]), Kind: drive.FaultKind(data[7])}
	switch d.Action {
	case FaultInject, FaultClear, FaultResetController:
	default:
		return nil, fmt.Errorf("drivelink: unknown fault action 0x%02X", data[6])
	}
	if !d.Kind.Valid() {
		return nil, fmt.Errorf("%w: fault kind %d", drive.ErrInvalidConfiguration, data[7])
	}
	return d, nil
}

func (d *FaultData) Encode() []byte {
	buf := make([]byte, 8)
	copy(buf[0:6], EncodeTime(d.CollectTime))
	buf[6] = byte(d.Action)
	buf[7] = byte(d.Kind)
	return buf
}
