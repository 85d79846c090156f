package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"
	"github.com/jhaanurag/remote-keyboard-web/internal/repository"
	"github.com/jhaanurag/remote-keyboard-web/internal/service"

	"github.com/sirupsen/logrus"
)

// Endpoint 是一个可以接收推送消息的传输端点 (WebSocket 连接)。
// Deliver 必须是非阻塞的，返回 false 表示消息被丢弃。
type Endpoint interface {
	ID() string
	Deliver(message []byte) bool
}

// ackRoute 记录带 clientEventId 的提交来自哪个端点，用于回传 execution-ack
type ackRoute struct {
	origin  Endpoint
	eventID int64
	seq     uint64
}

// routeEntry 按提交顺序记录路由，用于超出上限时淘汰最旧的
type routeEntry struct {
	clientEventID int64
	seq           uint64
}

// room 是 Hub 侧的房间状态：成员集合与 ack 路由表，所有字段由 mu 保护。
// mu 同时用于串行化同一房间的 "追加 + 入队"，保证接收端看到的顺序与 id 顺序一致。
// 不同发送端的 clientEventId 可能相同，所以同一个 clientEventId 下可以挂多条路由，按 eventId 区分。
type room struct {
	mu         sync.Mutex
	code       string
	members    map[Endpoint]domain.Role
	routes     map[int64][]ackRoute
	routeCount int
	routeOrder []routeEntry
	evicted    bool
}

func (r *room) empty() bool {
	return len(r.members) == 0 && r.routeCount == 0
}

// removeRoute 删除 clientEventID 下的第 i 条路由
func (r *room) removeRoute(clientEventID int64, i int) ackRoute {
	list := r.routes[clientEventID]
	route := list[i]
	list = append(list[:i:i], list[i+1:]...)
	if len(list) == 0 {
		delete(r.routes, clientEventID)
	} else {
		r.routes[clientEventID] = list
	}
	r.routeCount--
	return route
}

// findRoute 返回 seq 对应路由的下标，不存在时返回 -1
func (r *room) findRoute(clientEventID int64, seq uint64) int {
	for i, route := range r.routes[clientEventID] {
		if route.seq == seq {
			return i
		}
	}
	return -1
}

// matchRoute 为 execution-ack 选择路由：eventID 非零时必须一致，否则取最早的一条
func (r *room) matchRoute(clientEventID, eventID int64) int {
	for i, route := range r.routes[clientEventID] {
		if eventID == 0 || route.eventID == eventID {
			return i
		}
	}
	return -1
}

// Hub 维护房间成员关系，负责事件提交后的扇出以及 ack 回传。
type Hub struct {
	relay *service.RelayService

	roomsMu sync.RWMutex
	rooms   map[string]*room

	// endpoint -> 该端点有成员关系或 ack 路由的房间
	endpointsMu   sync.Mutex
	endpointRooms map[Endpoint]map[string]struct{}

	maxRoutes     int
	pruneInterval time.Duration
	lastPrune     atomic.Int64
	now           func() time.Time
	routeSeq      atomic.Uint64
}

// Option 配置 Hub
type Option func(*Hub)

// WithMaxRoutes 设置每个房间最多保留的待回传 ack 路由数
func WithMaxRoutes(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxRoutes = n
		}
	}
}

// WithPruneInterval 两次机会式清理之间的最小间隔，0 表示每次请求都清理
func WithPruneInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d >= 0 {
			h.pruneInterval = d
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(relay *service.RelayService, opts ...Option) *Hub {
	if relay == nil {
		panic("RelayService cannot be nil for Hub")
	}
	h := &Hub{
		relay:         relay,
		rooms:         make(map[string]*room),
		endpointRooms: make(map[Endpoint]map[string]struct{}),
		maxRoutes:     repository.DefaultMaxEventsPerRoom,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// acquireRoom 返回已加锁的房间。create 为 false 且房间不存在时返回 nil。
// 拿到的房间如果已被移除 (evicted)，重新获取。
func (h *Hub) acquireRoom(code string, create bool) *room {
	for {
		h.roomsMu.RLock()
		r, ok := h.rooms[code]
		h.roomsMu.RUnlock()

		if !ok {
			if !create {
				return nil
			}
			h.roomsMu.Lock()
			if r, ok = h.rooms[code]; !ok {
				r = &room{
					code:    code,
					members: make(map[Endpoint]domain.Role),
					routes:  make(map[int64][]ackRoute),
				}
				h.rooms[code] = r
			}
			h.roomsMu.Unlock()
		}

		r.mu.Lock()
		if r.evicted {
			r.mu.Unlock()
			continue
		}
		return r
	}
}

// evictLocked 在持有 r.mu 时把空房间从 map 中移除
func (h *Hub) evictLocked(r *room) {
	r.evicted = true
	h.roomsMu.Lock()
	if h.rooms[r.code] == r {
		delete(h.rooms, r.code)
	}
	h.roomsMu.Unlock()
}

func (h *Hub) trackEndpoint(ep Endpoint, code string) {
	h.endpointsMu.Lock()
	defer h.endpointsMu.Unlock()
	set, ok := h.endpointRooms[ep]
	if !ok {
		set = make(map[string]struct{})
		h.endpointRooms[ep] = set
	}
	set[code] = struct{}{}
}

// Submit 校验并追加事件，然后广播给房间内除 origin 之外的所有成员。
// origin 为 nil (轮询提交) 时不排除任何成员。广播是 fire-and-forget：
// 单个成员投递失败只记录日志，不影响其他成员和提交结果。
func (h *Hub) Submit(ctx context.Context, cmd service.SubmitCommand, origin Endpoint, clientEventID *int64) (domain.Event, error) {
	// 1. 校验在加锁之前完成，非法请求不会创建房间
	eventType, err := h.relay.Validate(cmd)
	if err != nil {
		return domain.Event{}, err
	}

	// 2. 追加与入队在同一把房间锁内完成
	r := h.acquireRoom(cmd.RoomCode, true)
	defer r.mu.Unlock()

	event := h.relay.Append(cmd.RoomCode, eventType, *cmd.Payload)

	if clientEventID != nil && origin != nil {
		h.addRouteLocked(r, *clientEventID, origin, event.ID)
	}

	// 3. 构造广播消息 (不携带 roomCode)
	message, err := dto.NewEnvelope(dto.EventKeystroke, dto.KeystrokeBroadcast{
		Type:          event.Type,
		Payload:       event.Payload,
		EventID:       event.ID,
		ClientEventID: clientEventID,
	})
	if err != nil {
		// 事件已写入，轮询端仍可拿到，这里只记录
		logrus.WithError(err).WithField("room_code", cmd.RoomCode).Error("Failed to marshal keystroke broadcast")
		return event, nil
	}
	h.broadcastLocked(r, message, origin)
	return event, nil
}

// broadcastLocked 在持有 r.mu 时向除 sender 外的成员投递消息
func (h *Hub) broadcastLocked(r *room, message []byte, sender Endpoint) {
	for ep := range r.members {
		if ep == sender {
			continue
		}
		// 非阻塞投递，慢客户端由其 WritePump 或断线清理处理
		if !ep.Deliver(message) {
			logrus.WithFields(logrus.Fields{
				"room_code":    r.code,
				"endpoint_id":  ep.ID(),
				"message_size": len(message),
			}).Warn("Endpoint send buffer full or closed during broadcast, message dropped")
		}
	}
}

func (h *Hub) addRouteLocked(r *room, clientEventID int64, origin Endpoint, eventID int64) {
	seq := h.routeSeq.Add(1)
	r.routes[clientEventID] = append(r.routes[clientEventID], ackRoute{origin: origin, eventID: eventID, seq: seq})
	r.routeCount++
	r.routeOrder = append(r.routeOrder, routeEntry{clientEventID: clientEventID, seq: seq})

	// 超出上限时从最旧的开始淘汰；已被消费的条目直接跳过
	for r.routeCount > h.maxRoutes && len(r.routeOrder) > 0 {
		oldest := r.routeOrder[0]
		r.routeOrder = r.routeOrder[1:]
		if i := r.findRoute(oldest.clientEventID, oldest.seq); i >= 0 {
			r.removeRoute(oldest.clientEventID, i)
		}
	}
	if len(r.routeOrder) > 2*h.maxRoutes {
		compacted := make([]routeEntry, 0, r.routeCount)
		for _, e := range r.routeOrder {
			if r.findRoute(e.clientEventID, e.seq) >= 0 {
				compacted = append(compacted, e)
			}
		}
		r.routeOrder = compacted
	}

	h.trackEndpoint(origin, r.code)
}

// Join 把端点注册为房间成员。重复加入只刷新角色；
// 首次加入或角色变化时，向其他成员发送一次 member-joined 通知。
func (h *Hub) Join(roomCode string, ep Endpoint, role domain.Role) {
	if roomCode == "" || ep == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code":   roomCode,
		"endpoint_id": ep.ID(),
		"role":        role,
	})

	r := h.acquireRoom(roomCode, true)
	// 加入房间同样是一次 keep-alive
	h.relay.Touch(roomCode)

	prevRole, already := r.members[ep]
	r.members[ep] = role
	notify := !already || prevRole != role
	if notify {
		message, err := dto.NewEnvelope(dto.EventMemberJoined, domain.MemberJoined{ID: ep.ID(), Role: role})
		if err != nil {
			logCtx.WithError(err).Error("Failed to marshal member-joined notification")
		} else {
			h.broadcastLocked(r, message, ep)
		}
	}
	r.mu.Unlock()

	h.trackEndpoint(ep, roomCode)
	if already {
		logCtx.Debug("Endpoint re-joined room")
	} else {
		logCtx.Info("Endpoint joined room")
	}
}

// Leave 在连接断开时调用：移除端点在所有房间中的成员关系及其待回传的 ack 路由。
// 不发送离开通知，也不保存任何待确认状态。
func (h *Hub) Leave(ep Endpoint) {
	if ep == nil {
		return
	}
	h.endpointsMu.Lock()
	codes := h.endpointRooms[ep]
	delete(h.endpointRooms, ep)
	h.endpointsMu.Unlock()

	for code := range codes {
		r := h.acquireRoom(code, false)
		if r == nil {
			continue
		}
		delete(r.members, ep)
		for id, list := range r.routes {
			for i := len(list) - 1; i >= 0; i-- {
				if list[i].origin == ep {
					r.removeRoute(id, i)
				}
			}
		}
		if r.empty() {
			h.evictLocked(r)
		}
		r.mu.Unlock()
	}
	logrus.WithFields(logrus.Fields{
		"endpoint_id": ep.ID(),
		"rooms":       len(codes),
	}).Info("Endpoint left all rooms")
}

// RelayExecutionAck 把接收端发出的 execution-ack 原样转发给事件的来源端。
// 按 (roomCode, clientEventId, eventId) 关联；eventId 为 0 时退化为只按 clientEventId 匹配最早的路由。
// 路由在第一次转发后即被消费，重复的 ack 会被忽略。
func (h *Hub) RelayExecutionAck(ack domain.ExecutionAck, raw json.RawMessage) bool {
	logCtx := logrus.WithFields(logrus.Fields{
		"room_code":       ack.RoomCode,
		"client_event_id": ack.ClientEventID,
		"event_id":        ack.EventID,
	})

	r := h.acquireRoom(ack.RoomCode, false)
	if r == nil {
		logCtx.Debug("Execution ack for unknown room ignored")
		return false
	}
	i := r.matchRoute(ack.ClientEventID, ack.EventID)
	if i < 0 {
		r.mu.Unlock()
		logCtx.Debug("Execution ack without matching route ignored")
		return false
	}
	route := r.removeRoute(ack.ClientEventID, i)
	if r.empty() {
		h.evictLocked(r)
	}
	r.mu.Unlock()

	message, err := json.Marshal(dto.Envelope{Event: dto.EventExecutionAck, Data: raw})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal execution ack")
		return false
	}
	if !route.origin.Deliver(message) {
		logCtx.WithField("origin_id", route.origin.ID()).Warn("Failed to relay execution ack to origin")
		return false
	}
	logCtx.Debug("Execution ack relayed to origin")
	return true
}

// MemberCount 返回房间当前成员数
func (h *Hub) MemberCount(roomCode string) int {
	r := h.acquireRoom(roomCode, false)
	if r == nil {
		return 0
	}
	defer r.mu.Unlock()
	return len(r.members)
}

// Prune 机会式清理：过期的 Store 房间以及 Hub 中的空房间。
// 在每个入站请求上调用，pruneInterval 内的重复调用直接返回。
func (h *Hub) Prune() int {
	now := h.now()
	if h.pruneInterval > 0 {
		last := h.lastPrune.Load()
		if last != 0 && now.Sub(time.Unix(0, last)) < h.pruneInterval {
			return 0
		}
		if !h.lastPrune.CompareAndSwap(last, now.UnixNano()) {
			// 其他请求正在清理
			return 0
		}
	}

	removed := h.relay.PruneExpired(now)

	h.roomsMu.RLock()
	candidates := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		candidates = append(candidates, r)
	}
	h.roomsMu.RUnlock()

	for _, r := range candidates {
		if !r.mu.TryLock() {
			continue
		}
		if !r.evicted && r.empty() {
			h.evictLocked(r)
		}
		r.mu.Unlock()
	}
	return removed
}

// RoomCount 返回 Store 中存活的房间数
func (h *Hub) RoomCount() int {
	return h.relay.RoomCount()
}
