package repository

import (
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
)

const (
	// DefaultRetentionWindow 房间在最后一次访问之后保留的时长
	DefaultRetentionWindow = 30 * time.Minute
	// DefaultMaxEventsPerRoom 每个房间保留的最大事件数，超出后从头部丢弃
	DefaultMaxEventsPerRoom = 1000
)

// RoomStore 定义了房间事件日志的操作，独占所有房间实例。
// 实现必须对同一房间的修改串行化，不同房间之间互不阻塞。
// 输入视为已校验，Store 不做重复校验。
type RoomStore interface {
	// GetOrCreate 返回房间快照，不存在时创建。总是刷新 lastTouchedAt (相当于 keep-alive)。
	GetOrCreate(roomCode string) domain.RoomInfo

	// Append 分配 id = nextEventId++ 并追加事件，超出上限时从头部裁剪。刷新 lastTouchedAt。
	Append(roomCode string, eventType domain.EventType, payload string) domain.Event

	// ListSince 返回 id > sinceID 的所有保留事件，按 id 升序。sinceID 为负时视为 0。
	// 获取房间句柄本身会刷新 lastTouchedAt。
	ListSince(roomCode string, sinceID int64) []domain.Event

	// PruneExpired 删除 lastTouchedAt 早于 now - 保留窗口 的房间，返回删除数量。
	// 不会阻塞在正被其他请求持有的房间上。
	PruneExpired(now time.Time) int

	// Peek 返回房间快照但不刷新 lastTouchedAt，房间不存在时返回 ErrRoomNotFound。
	Peek(roomCode string) (domain.RoomInfo, error)

	// Len 返回当前存活的房间数量
	Len() int
}
