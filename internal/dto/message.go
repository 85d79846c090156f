package dto

import (
	"encoding/json"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
)

// 推送通道上的消息名称 (双向)
const (
	EventJoinRoom     = "join-room"
	EventKeystroke    = "keystroke"
	EventDeliveryAck  = "delivery-ack"
	EventExecutionAck = "execution-ack"
	EventMemberJoined = "member-joined"
)

// Envelope 是 WebSocket 上所有消息的外层结构。
// Data 保持原始字节，便于按 Event 延迟解析以及原样转发。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 序列化 data 并封装成 Envelope 的 JSON 字节。
func NewEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// JoinRoomMessage client -> server
type JoinRoomMessage struct {
	RoomCode string      `json:"roomCode"`
	Role     domain.Role `json:"role"`
}

// KeystrokeMessage client -> server。
// Payload 使用指针以区分 "缺失/null" 与 空字符串。
type KeystrokeMessage struct {
	RoomCode      string  `json:"roomCode"`
	Type          string  `json:"type"`
	Payload       *string `json:"payload"`
	ClientEventID *int64  `json:"clientEventId,omitempty"`
}

// KeystrokeBroadcast server -> 其他房间成员。不携带 roomCode：接收端按连接所属房间区分。
type KeystrokeBroadcast struct {
	Type          domain.EventType `json:"type"`
	Payload       string           `json:"payload"`
	EventID       int64            `json:"eventId"`
	ClientEventID *int64           `json:"clientEventId,omitempty"`
}
