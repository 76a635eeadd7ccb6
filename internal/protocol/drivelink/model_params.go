package drivelink

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

const paramEntryLength = 9 // ID(1) + float64(8)

// ParamEntry 单个参数写入
type ParamEntry struct {
	ID    uint8
	Value float64
}

// ParamsData 参数写入 (命令单元 0x10)
// 格式: [时间 6][数量 1][ID 1 + Value 8]...
type ParamsData struct {
	CollectTime time.Time
	Entries     []ParamEntry
}

func ParseParams(data []byte) (*ParamsData, error) {
	if len(data) < 7 {
		return nil, errors.New("drivelink: params data too short")
	}
	t, err := DecodeTime(data[:6])
	if err != nil {
		return nil, err
	}
	count := int(data[6])
	if len(data) < 7+count*paramEntryLength {
		return nil, errors.New("drivelink: params data length mismatch")
	}
	entries := make([]ParamEntry, 0, count)
	off := 7
	for i := 0; i < count; i++ {
		entries = append(entries, ParamEntry{
			ID:    data[off],
			Value: math.Float64frombits(binary.BigEndian.Uint64(data[off+1 : off+9])),
		})
		off += paramEntryLength
	}
	return &ParamsData{CollectTime: t, Entries: entries}, nil
}

func (d *ParamsData) Encode() ([]byte, error) {
	if len(d.Entries) > math.MaxUint8 {
		return nil, ErrTooLarge
	}
	buf := make([]byte, 7+len(d.Entries)*paramEntryLength)
	copy(buf[0:6], EncodeTime(d.CollectTime))
	buf[6] = byte(len(d.Entries))
	off := 7
	for _, e := range d.Entries {
		buf[off] = e.ID
		binary.BigEndian.PutUint64(buf[off+1:off+9], math.Float64bits(e.Value))
		off += paramEntryLength
	}
	return buf, nil
}
