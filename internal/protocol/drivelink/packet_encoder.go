package drivelink

import (
	"encoding/binary"
	"fmt"
)

// EncodePacket 将 Packet 结构体编码为字节流
// Structure: [Start 2][Cmd 1][Resp 1][DriveID 17][Enc 1][Len 2][Data N][Check 1]
func EncodePacket(pkt *Packet) ([]byte, error) {
	dataLen := len(pkt.DataUnit)
	if dataLen > MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes of data", ErrTooLarge, dataLen)
	}
	totalLen := HeaderLength + dataLen + 1
	buf := make([]byte, totalLen)

	// 1. Start ##
	buf[0] = 0x23
	buf[1] = 0x23

	// 2. Cmd
	buf[2] = pkt.Command

	// 3. Response
	if pkt.Response == 0 {
		buf[3] = RespCommand
	} else {
		buf[3] = pkt.Response
	}

	// 4. DriveID (17 chars, zero padded)
	copy(buf[4:21], pkt.DriveID)

	// 5. Enc
	buf[21] = pkt.Encryption
	if buf[21] == 0 {
		buf[21] = EncNone
	}

	// 6. Length
	binary.BigEndian.PutUint16(buf[22:24], uint16(dataLen))

	// 7. Data
	copy(buf[HeaderLength:], pkt.DataUnit)

	// 8. BCC Checksum, Cmd(Index 2) to End of Data
	buf[totalLen-1] = CalculateChecksum(buf[2 : HeaderLength+dataLen])

	return buf, nil
}
