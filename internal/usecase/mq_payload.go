package usecase

import "encoding/json"

// Payload types carried in MQPayload.Type.
const (
	PayloadSample = "SAMPLE"
	PayloadFault  = "FAULT"
)

// MQPayload 包装消息队列消息，增加类型标识和驱动器编号
type MQPayload struct {
	Type    string      `json:"type"`
	DriveID string      `json:"drive_id"`
	Data    interface{} `json:"data"`
}

// MarshalJSON copies type and drive_id into Data when Data is a JSON object
// so consumers that only read the inner object still see them.
func (p MQPayload) MarshalJSON() ([]byte, error) {
	dataBytes, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}

	var dataMap map[string]interface{}
	if err := json.Unmarshal(dataBytes, &dataMap); err != nil || dataMap == nil {
		// not an object, nothing to inject
		type Alias MQPayload
		return json.Marshal(Alias(p))
	}
	dataMap["msgType"] = p.Type
	dataMap["drive_id"] = p.DriveID

	return json.Marshal(&struct {
		Type    string                 `json:"type"`
		DriveID string                 `json:"drive_id"`
		Data    map[string]interface{} `json:"data"`
	}{
		Type:    p.Type,
		DriveID: p.DriveID,
		Data:    dataMap,
	})
}
