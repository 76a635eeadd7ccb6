package drivelink

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	// ErrTooLarge 当报文过大时返回 (安全检查)
	ErrTooLarge = errors.New("drivelink: packet too large")
	// ErrInvalidHeader 当头部解析失败时返回 (应跳过处理)
	ErrInvalidHeader = errors.New("drivelink: invalid header")
)

var startMarker = []byte{0x23, 0x23}

// PacketScanner 为 bufio.Scanner 提供 Split 函数
type PacketScanner struct {
	maxPacketSize int
}

// NewPacketScanner 创建一个新的扫描器助手。
// maxPacketSize 限制单帧大小以防止恶意数据导致的 OOM。
func NewPacketScanner(maxPacketSize int) *PacketScanner {
	return &PacketScanner{maxPacketSize: maxPacketSize}
}

// SplitFunc 是用于 bufio.Scanner 解析 drivelink 帧的分割函数。
// 垃圾数据、校验失败和超长声明在同一次调用内跳过并继续搜索下一个起始符,
// 因为 bufio.Scanner 在 EOF 时只会再调用一次。
func (ps *PacketScanner) SplitFunc(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	start := 0
	for {
		// 1. 搜索起始符 "##"
		idx := bytes.Index(data[start:], startMarker)
		if idx == -1 {
			if atEOF || len(data) == 0 {
				return len(data), nil, nil
			}
			// keep the last byte, it may be half a start marker
			return len(data) - 1, nil, nil
		}
		start += idx
		frame := data[start:]

		// 2. 头部不完整
		if len(frame) < HeaderLength {
			if atEOF {
				start++
				continue
			}
			return start, nil, nil
		}

		// 3. 数据单元长度位于索引 22, 23
		dataLen := binary.BigEndian.Uint16(frame[22:24])
		totalLen := HeaderLength + int(dataLen) + 1
		if totalLen > ps.maxPacketSize {
			// 声明长度过大, 很可能是看起来像头部的垃圾数据
			start++
			continue
		}

		// 4. 帧不完整; EOF 时不会再有数据, 当作垃圾跳过
		if len(frame) < totalLen {
			if atEOF {
				start++
				continue
			}
			return start, nil, nil
		}

		// 5. 完整一帧
		if !VerifyChecksum(frame[:totalLen]) {
			start++
			continue
		}
		return start + totalLen, frame[:totalLen], nil
	}
}
