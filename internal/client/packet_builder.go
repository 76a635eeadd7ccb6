package client

import (
	"fmt"
	"sort"
	"time"

	"inverter-drive/internal/drive"
	"inverter-drive/internal/params"
	protocol "inverter-drive/internal/protocol/drivelink"
)

// PacketBuilder 构建发往仿真器的 drivelink 请求报文
type PacketBuilder struct {
	DriveID string
	seq     uint16
	now     func() time.Time
}

func NewPacketBuilder(driveID string) *PacketBuilder {
	return &PacketBuilder{DriveID: driveID, now: time.Now}
}

func (pb *PacketBuilder) frame(cmd byte, data []byte) ([]byte, error) {
	return protocol.EncodePacket(&protocol.Packet{
		Command:    cmd,
		Response:   protocol.RespCommand,
		DriveID:    pb.DriveID,
		Encryption: protocol.EncNone,
		DataUnit:   data,
	})
}

// BuildLogin 生成登入报文 (0x05), 流水号自增
func (pb *PacketBuilder) BuildLogin(username, password string) ([]byte, error) {
	pb.seq++
	data := (&protocol.LoginData{
		CollectTime: pb.now(),
		Seq:         pb.seq,
		Username:    username,
		Password:    password,
	}).Encode()
	return pb.frame(protocol.CmdLogin, data)
}

// BuildSubscribe 订阅采样推送, 每 every 个 tick 一帧
func (pb *PacketBuilder) BuildSubscribe(every uint16) ([]byte, error) {
	return pb.frame(protocol.CmdSubscribe, (&protocol.SubscribeData{CollectTime: pb.now(), Every: every}).Encode())
}

func (pb *PacketBuilder) BuildUnsubscribe() ([]byte, error) {
	return pb.frame(protocol.CmdUnsubscribe, protocol.EncodeTime(pb.now()))
}

func (pb *PacketBuilder) BuildHeartbeat() ([]byte, error) {
	return pb.frame(protocol.CmdHeartbeat, protocol.EncodeTime(pb.now()))
}

func (pb *PacketBuilder) BuildStatus() ([]byte, error) {
	return pb.frame(protocol.CmdStatus, protocol.EncodeTime(pb.now()))
}

// BuildSetParams 按参数名写入, 值为文本 ("FOC", "true", "120.5")
func (pb *PacketBuilder) BuildSetParams(values map[string]string) ([]byte, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	pd := &protocol.ParamsData{CollectTime: pb.now()}
	for _, name := range names {
		f, ok := params.LookupName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", params.ErrUnknownParameter, name)
		}
		v, err := f.Parse(values[name])
		if err != nil {
			return nil, err
		}
		pd.Entries = append(pd.Entries, protocol.ParamEntry{ID: f.ID, Value: v})
	}
	data, err := pd.Encode()
	if err != nil {
		return nil, err
	}
	return pb.frame(protocol.CmdSetParams, data)
}

func (pb *PacketBuilder) BuildInjectFault(kind drive.FaultKind) ([]byte, error) {
	return pb.buildFault(protocol.FaultInject, kind)
}

func (pb *PacketBuilder) BuildClearFault() ([]byte, error) {
	return pb.buildFault(protocol.FaultClear, drive.FaultNone)
}

func (pb *PacketBuilder) BuildResetController() ([]byte, error) {
	return pb.buildFault(protocol.FaultResetController, drive.FaultNone)
}

func (pb *PacketBuilder) buildFault(action protocol.FaultAction, kind drive.FaultKind) ([]byte, error) {
	return pb.frame(protocol.CmdFault, (&protocol.FaultData{CollectTime: pb.now(), Action: action, Kind: kind}).Encode())
}
