package drivelink

import (
	"time"
)

// BuildGeneralResponse 构建通用应答 (登入, 订阅, 参数写入, 故障命令, 心跳)
// 响应格式: [Time 6], 结果由 Header 中的 Response Flag 决定
func BuildGeneralResponse(requestTime []byte) []byte {
	respData := make([]byte, 6)
	if len(requestTime) >= 6 {
		copy(respData, requestTime[:6])
	} else {
		copy(respData, EncodeTime(time.Now()))
	}
	return respData
}

// BuildResponse 构建完整应答帧
func BuildResponse(req *Packet, ok bool, data []byte) ([]byte, error) {
	flag := byte(RespOK)
	if !ok {
		flag = RespError
	}
	if data == nil {
		data = BuildGeneralResponse(RequestTime(req.DataUnit))
	}
	return EncodePacket(&Packet{
		Command:    req.Command,
		Response:   flag,
		DriveID:    req.DriveID,
		Encryption: EncNone,
		DataUnit:   data,
	})
}
