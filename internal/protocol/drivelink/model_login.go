package drivelink

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	usernameLength = 12
	passwordLength = 20
	// LoginDataLength: Time(6) + Seq(2) + Username(12) + Password(20)
	LoginDataLength = 6 + 2 + usernameLength + passwordLength
)

// LoginData 平台登入数据 (命令单元 0x05)
type LoginData struct {
	CollectTime time.Time
	Seq         uint16
	Username    string
	Password    string
}

// ParseLogin 解析平台登入数据
// 格式: [时间 6][流水号 2][用户名 12][密码 20]
func ParseLogin(data []byte) (*LoginData, error) {
	if len(data) < LoginDataLength {
		return nil, errors.New("drivelink: login data too short")
	}
	t, err := DecodeTime(data[:6])
	if err != nil {
		return nil, err
	}
	offset := 6
	seq := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	username := string(trimNulls(data[offset : offset+usernameLength]))
	offset += usernameLength
	password := string(trimNulls(data[offset : offset+passwordLength]))

	return &LoginData{CollectTime: t, Seq: seq, Username: username, Password: password}, nil
}

// Encode 编码登入数据, 超长的用户名和密码会被截断
func (l *LoginData) Encode() []byte {
	buf := make([]byte, LoginDataLength)
	copy(buf[0:6], EncodeTime(l.CollectTime))
	binary.BigEndian.PutUint16(buf[6:8], l.Seq)
	copy(buf[8:8+usernameLength], l.Username)
	copy(buf[8+usernameLength:], l.Password)
	return buf
}

// SubscribeData 订阅请求 (命令单元 0x01)
// 格式: [时间 6][抽样间隔 2]; Every=0 视为 1
type SubscribeData struct {
	CollectTime time.Time
	Every       uint16
}

func ParseSubscribe(data []byte) (*SubscribeData, error) {
	t, err := DecodeTime(data)
	if err != nil {
		return nil, err
	}
	sub := &SubscribeData{CollectTime: t, Every: 1}
	if len(data) >= 8 {
		if every := binary.BigEndian.Uint16(data[6:8]); every > 0 {
			sub.Every = every
		}
	}
	return sub, nil
}

func (s *SubscribeData) Encode() []byte {
	buf := make([]byte, 8)
	copy(buf[0:6], EncodeTime(s.CollectTime))
	binary.BigEndian.PutUint16(buf[6:8], s.Every)
	return buf
}

func trimNulls(b []byte) []byte {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return b[:i+1]
		}
	}
	return []byte{}
}
