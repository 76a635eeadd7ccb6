package drivelink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// drivelink 协议常量定义
const (
	StartChar = 0x2323 // 起始符 "##"
	// HeaderLength: 2(Start) + 1(Cmd) + 1(Resp) + 17(DriveID) + 1(Enc) + 2(Len) = 24
	HeaderLength = 24
	// MinPacketSize: Header + Checksum(1) = 25
	MinPacketSize = 25
	DriveIDLength = 17
	// MaxDataLength 数据单元长度字段为 2 字节
	MaxDataLength = 0xFFFF

	// 命令标识
	CmdSubscribe   = 0x01 // 订阅采样数据
	CmdSample      = 0x02 // 采样数据 (服务端下发)
	CmdUnsubscribe = 0x03
	CmdLogin       = 0x05 // 平台登入
	CmdHeartbeat   = 0x07
	CmdSetParams   = 0x10 // 参数写入
	CmdFault       = 0x11 // 故障注入/清除
	CmdStatus      = 0x12 // 状态查询

	// 应答标识
	RespCommand = 0xFE
	RespOK      = 0x01
	RespError   = 0x02

	EncNone = 0x01
)

// Packet 代表一个解析后的 drivelink 报文
type Packet struct {
	Command      byte
	Response     byte // 应答标识: 0xFE=命令, 0x01=成功, 0x02=错误
	DriveID      string
	Encryption   byte
	DataUnit     []byte
	OriginalData []byte // 原始字节数据
}

// ParseHeader 尝试从字节切片开头解析报文头。
// 返回预期的数据单元长度或错误。
func ParseHeader(data []byte) (dataLen uint16, err error) {
	if len(data) < HeaderLength {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	if data[0] != 0x23 || data[1] != 0x23 {
		return 0, fmt.Errorf("%w: start %X%X", ErrInvalidHeader, data[0], data[1])
	}
	// 0-1: ##
	// 2: 命令单元
	// 3: 应答标识
	// 4-20: DriveID
	// 21: 加密方式
	// 22-23: 数据单元长度 (大端序)
	return binary.BigEndian.Uint16(data[22:24]), nil
}

// Decode 将一个完整帧 (通常来自 PacketScanner) 解析为 Packet。
func Decode(frame []byte) (*Packet, error) {
	dataLen, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) != HeaderLength+int(dataLen)+1 {
		return nil, fmt.Errorf("%w: length field %d does not match frame of %d bytes",
			ErrInvalidHeader, dataLen, len(frame))
	}
	if !VerifyChecksum(frame) {
		return nil, errors.New("drivelink: checksum mismatch")
	}
	return &Packet{
		Command:      frame[2],
		Response:     frame[3],
		DriveID:      strings.TrimRight(string(frame[4:21]), "\x00"),
		Encryption:   frame[21],
		DataUnit:     frame[HeaderLength : HeaderLength+int(dataLen)],
		OriginalData: frame,
	}, nil
}

// VerifyChecksum 验证完整报文的 BCC 校验码。
// Checksum Range: From Command (Index 2) to Data End.
func VerifyChecksum(packetData []byte) bool {
	if len(packetData) < MinPacketSize {
		return false
	}
	receivedBCC := packetData[len(packetData)-1]
	return receivedBCC == CalculateChecksum(packetData[2:len(packetData)-1])
}

// CalculateChecksum 计算给定数据的异或校验和 (XOR Checksum)
func CalculateChecksum(data []byte) byte {
	var bcc byte
	for _, b := range data {
		bcc ^= b
	}
	return bcc
}

// EncodeTime 将时间编码为 6 字节: 年(-2000) 月 日 时 分 秒
func EncodeTime(t time.Time) []byte {
	t = t.UTC()
	return []byte{
		byte(t.Year() - 2000),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// DecodeTime 解析 6 字节时间 (UTC)
func DecodeTime(b []byte) (time.Time, error) {
	if len(b) < 6 {
		return time.Time{}, errors.New("drivelink: time field too short")
	}
	return time.Date(int(b[0])+2000, time.Month(b[1]), int(b[2]),
		int(b[3]), int(b[4]), int(b[5]), 0, time.UTC), nil
}

// RequestTime returns the 6-byte time prefix of a data unit, or nil.
func RequestTime(data []byte) []byte {
	if len(data) >= 6 {
		return data[:6]
	}
	return nil
}
