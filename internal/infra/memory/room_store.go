package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/repository"

	"github.com/sirupsen/logrus"
)

// roomLog 是单个房间的事件日志，所有字段由 mu 保护。
type roomLog struct {
	mu          sync.Mutex
	code        string
	events      []domain.Event
	nextID      int64
	lastTouched time.Time
	evicted     bool // 已被 PruneExpired 移出 map，持有旧指针的调用方需要重新获取
}

// RoomStore 是 repository.RoomStore 的内存实现。
// rooms map 的读写锁只在查找/插入/删除期间持有；房间内的修改只持有该房间自己的锁。
type RoomStore struct {
	roomsMu sync.RWMutex
	rooms   map[string]*roomLog

	retention time.Duration
	maxEvents int
	now       func() time.Time
}

// Option 配置 RoomStore
type Option func(*RoomStore)

// WithRetention 设置房间保留窗口
func WithRetention(d time.Duration) Option {
	return func(s *RoomStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithMaxEvents 设置每个房间的事件上限
func WithMaxEvents(n int) Option {
	return func(s *RoomStore) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// WithClock 注入时钟，测试中用于模拟过期
func WithClock(now func() time.Time) Option {
	return func(s *RoomStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRoomStore 创建 RoomStore 实例
func NewRoomStore(opts ...Option) *RoomStore {
	s := &RoomStore{
		rooms:     make(map[string]*roomLog),
		retention: repository.DefaultRetentionWindow,
		maxEvents: repository.DefaultMaxEventsPerRoom,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.RoomStore = (*RoomStore)(nil)

// acquire 返回已加锁且已刷新的房间，调用方负责 Unlock。
// 如果拿到的房间刚好被 prune 移除，则重试，保证不会写入一个已经不在 map 里的房间。
func (s *RoomStore) acquire(roomCode string) *roomLog {
	for {
		s.roomsMu.RLock()
		room, ok := s.rooms[roomCode]
		s.roomsMu.RUnlock()

		if !ok {
			s.roomsMu.Lock()
			// 双重检查，其他请求可能已经创建
			if room, ok = s.rooms[roomCode]; !ok {
				room = &roomLog{code: roomCode, nextID: 1}
				s.rooms[roomCode] = room
				logrus.WithField("room_code", roomCode).Debug("RoomStore: room created")
			}
			s.roomsMu.Unlock()
		}

		room.mu.Lock()
		if room.evicted {
			room.mu.Unlock()
			continue
		}
		room.lastTouched = s.now()
		return room
	}
}

func (r *roomLog) info() domain.RoomInfo {
	return domain.RoomInfo{
		Code:          r.code,
		NextEventID:   r.nextID,
		EventCount:    len(r.events),
		LastTouchedAt: r.lastTouched,
	}
}

// GetOrCreate 返回房间快照，不存在时创建，总是刷新 lastTouchedAt。
func (s *RoomStore) GetOrCreate(roomCode string) domain.RoomInfo {
	room := s.acquire(roomCode)
	defer room.mu.Unlock()
	return room.info()
}

// Append 追加事件并按 FIFO 裁剪到 maxEvents。
func (s *RoomStore) Append(roomCode string, eventType domain.EventType, payload string) domain.Event {
	room := s.acquire(roomCode)
	defer room.mu.Unlock()

	event := domain.Event{
		ID:        room.nextID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: room.lastTouched,
	}
	room.nextID++
	room.events = append(room.events, event)

	if overflow := len(room.events) - s.maxEvents; overflow > 0 {
		// 复制到新切片，释放被裁掉部分占用的底层数组
		kept := make([]domain.Event, s.maxEvents)
		copy(kept, room.events[overflow:])
		room.events = kept
	}
	return event
}

// ListSince 返回 id > sinceID 的事件副本
func (s *RoomStore) ListSince(roomCode string, sinceID int64) []domain.Event {
	if sinceID < 0 {
		sinceID = 0
	}
	room := s.acquire(roomCode)
	defer room.mu.Unlock()

	// events 按 id 严格递增，二分查找第一个 id > sinceID 的位置
	start := sort.Search(len(room.events), func(i int) bool {
		return room.events[i].ID > sinceID
	})
	out := make([]domain.Event, len(room.events)-start)
	copy(out, room.events[start:])
	return out
}

// Peek 返回房间快照，不刷新 lastTouchedAt
func (s *RoomStore) Peek(roomCode string) (domain.RoomInfo, error) {
	s.roomsMu.RLock()
	room, ok := s.rooms[roomCode]
	s.roomsMu.RUnlock()
	if !ok {
		return domain.RoomInfo{}, repository.ErrRoomNotFound
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted {
		return domain.RoomInfo{}, repository.ErrRoomNotFound
	}
	return room.info(), nil
}

// PruneExpired 删除超过保留窗口未被访问的房间。
// 对房间锁使用 TryLock：正被持有的房间说明正在使用，直接跳过。
func (s *RoomStore) PruneExpired(now time.Time) int {
	cutoff := now.Add(-s.retention)

	// 先在读锁下收集候选，避免在整个扫描期间阻塞其他房间的查找
	s.roomsMu.RLock()
	candidates := make([]*roomLog, 0, len(s.rooms))
	for _, room := range s.rooms {
		candidates = append(candidates, room)
	}
	s.roomsMu.RUnlock()

	removed := 0
	for _, room := range candidates {
		if !room.mu.TryLock() {
			continue
		}
		if room.evicted || !room.lastTouched.Before(cutoff) {
			room.mu.Unlock()
			continue
		}
		room.evicted = true
		s.roomsMu.Lock()
		if s.rooms[room.code] == room {
			delete(s.rooms, room.code)
		}
		s.roomsMu.Unlock()
		room.mu.Unlock()
		removed++
	}

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": s.Len(),
		}).Info("RoomStore: expired rooms pruned")
	}
	return removed
}

// Len 返回当前房间数量
func (s *RoomStore) Len() int {
	s.roomsMu.RLock()
	defer s.roomsMu.RUnlock()
	return len(s.rooms)
}
