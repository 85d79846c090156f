package domain

// DeliveryAck 是第一阶段确认：事件已进入房间队列 (queued)，不代表接收端已执行。
type DeliveryAck struct {
	RoomCode      string `json:"roomCode"`
	ClientEventID int64  `json:"clientEventId"`
	EventID       int64  `json:"eventId"`
}

// ExecutionAck 是第二阶段确认，由接收端在应用事件之后发出，服务端原样转发给来源端。
type ExecutionAck struct {
	RoomCode      string `json:"roomCode"`
	ClientEventID int64  `json:"clientEventId"`
	EventID       int64  `json:"eventId"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

// MemberJoined 通知房间内其他成员有新端点加入。
type MemberJoined struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}
