package domain

import "time"

// Role 是端点加入房间时声明的角色。中继不校验角色，只在通知中原样携带。
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// RoomInfo 是房间状态的只读快照，由 RoomStore.GetOrCreate 返回。
type RoomInfo struct {
	Code          string    `json:"roomCode"`
	NextEventID   int64     `json:"nextEventId"`
	EventCount    int       `json:"eventCount"`
	LastTouchedAt time.Time `json:"lastTouchedAt"`
}
