package client

import (
	"errors"
	"sync"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
)

// DefaultAckTimeout 两次确认之间允许的最长间隔
const DefaultAckTimeout = 6000 * time.Millisecond

// AckState 是一次本地提交在确认协议中的阶段
type AckState int

const (
	StateSent AckState = iota
	StateQueued
	StateResolvedOK
	StateResolvedFail
	StateAbandoned
)

func (s AckState) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateQueued:
		return "queued"
	case StateResolvedOK:
		return "resolved-ok"
	case StateResolvedFail:
		return "resolved-fail"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal 表示记录已经被移除
func (s AckState) Terminal() bool {
	return s == StateResolvedOK || s == StateResolvedFail || s == StateAbandoned
}

// AckUpdate 每次状态变化都会通知给 OnAck 注册的回调
type AckUpdate struct {
	ClientEventID int64
	State         AckState
	EventID       int64 // 服务端事件 id，收到 delivery-ack 之前为 0
	Err           error
}

// Timer 是 Scheduler 返回的可取消定时器
type Timer interface {
	Stop() bool
}

// Scheduler 创建定时器，测试中可替换为手动触发的实现
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingAck struct {
	state   AckState
	eventID int64
	timer   Timer
	gen     uint64
}

// AckTracker 把本地生成的 clientEventId 与服务端的两阶段确认关联起来。
// 同一个 id 最多只有一条记录；第一个终态生效，之后的确认都被忽略。
type AckTracker struct {
	mu       sync.Mutex
	pending  map[int64]*pendingAck
	timeout  time.Duration
	sched    Scheduler
	gen      uint64
	handlers []func(AckUpdate)
}

// AckOption 配置 AckTracker
type AckOption func(*AckTracker)

// WithAckTimeout 设置超时时间
func WithAckTimeout(d time.Duration) AckOption {
	return func(t *AckTracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithScheduler 注入定时器实现
func WithScheduler(s Scheduler) AckOption {
	return func(t *AckTracker) {
		if s != nil {
			t.sched = s
		}
	}
}

// NewAckTracker 创建 AckTracker
func NewAckTracker(opts ...AckOption) *AckTracker {
	t := &AckTracker{
		pending: make(map[int64]*pendingAck),
		timeout: DefaultAckTimeout,
		sched:   realScheduler{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnAck 注册状态变化回调。回调在触发变化的 goroutine 中同步执行，不持有锁。
func (t *AckTracker) OnAck(fn func(AckUpdate)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.handlers = append(t.handlers, fn)
	t.mu.Unlock()
}

// Track 开始跟踪一次提交，状态为 sent 并启动超时定时器。
// 如果 id 已经存在，旧记录被替换 (旧定时器取消)。
func (t *AckTracker) Track(clientEventID int64) {
	t.mu.Lock()
	if old, ok := t.pending[clientEventID]; ok {
		old.timer.Stop()
	}
	p := &pendingAck{state: StateSent}
	t.pending[clientEventID] = p
	t.armLocked(clientEventID, p)
	handlers := t.handlers
	t.mu.Unlock()

	notify(handlers, AckUpdate{ClientEventID: clientEventID, State: StateSent})
}

// Cancel 静默移除一条记录，不产生通知
func (t *AckTracker) Cancel(clientEventID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[clientEventID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(t.pending, clientEventID)
	return true
}

// Fail 以 abandoned 结束一条记录并携带 err，用于发送本身失败的情况，
// 保证已经收到 sent 通知的调用方也能拿到终态。
func (t *AckTracker) Fail(clientEventID int64, err error) bool {
	t.mu.Lock()
	p, ok := t.pending[clientEventID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	p.timer.Stop()
	delete(t.pending, clientEventID)
	handlers := t.handlers
	t.mu.Unlock()

	notify(handlers, AckUpdate{ClientEventID: clientEventID, State: StateAbandoned, EventID: p.eventID, Err: err})
	return true
}

// HandleDeliveryAck sent -> queued，记录服务端事件 id 并重新计时。
// 未知 id 或非 sent 状态的记录忽略，返回 false。
func (t *AckTracker) HandleDeliveryAck(ack domain.DeliveryAck) bool {
	t.mu.Lock()
	p, ok := t.pending[ack.ClientEventID]
	if !ok || p.state != StateSent {
		t.mu.Unlock()
		return false
	}
	p.timer.Stop()
	p.state = StateQueued
	p.eventID = ack.EventID
	t.armLocked(ack.ClientEventID, p)
	handlers := t.handlers
	t.mu.Unlock()

	notify(handlers, AckUpdate{ClientEventID: ack.ClientEventID, State: StateQueued, EventID: ack.EventID})
	return true
}

// HandleExecutionAck queued|sent -> resolved-ok | resolved-fail，取消定时器并移除记录。
// 执行确认可能先于投递确认到达，同样接受。
func (t *AckTracker) HandleExecutionAck(ack domain.ExecutionAck) bool {
	t.mu.Lock()
	p, ok := t.pending[ack.ClientEventID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	p.timer.Stop()
	delete(t.pending, ack.ClientEventID)
	handlers := t.handlers
	t.mu.Unlock()

	update := AckUpdate{ClientEventID: ack.ClientEventID, State: StateResolvedOK, EventID: ack.EventID}
	if update.EventID == 0 {
		update.EventID = p.eventID
	}
	if !ack.OK {
		update.State = StateResolvedFail
		update.Err = ErrExecutionFailed
		if ack.Error != "" {
			update.Err = errors.New(ack.Error)
		}
	}
	notify(handlers, update)
	return true
}

// State 返回仍在跟踪中的记录状态
func (t *AckTracker) State(clientEventID int64) (AckState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[clientEventID]
	if !ok {
		return 0, false
	}
	return p.state, true
}

// Pending 返回仍在跟踪中的记录数
func (t *AckTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// armLocked 启动定时器。gen 用于识别已被替换的旧定时器回调。
func (t *AckTracker) armLocked(clientEventID int64, p *pendingAck) {
	t.gen++
	gen := t.gen
	p.gen = gen
	p.timer = t.sched.AfterFunc(t.timeout, func() { t.expire(clientEventID, gen) })
}

func (t *AckTracker) expire(clientEventID int64, gen uint64) {
	t.mu.Lock()
	p, ok := t.pending[clientEventID]
	if !ok || p.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.pending, clientEventID)
	handlers := t.handlers
	t.mu.Unlock()

	notify(handlers, AckUpdate{
		ClientEventID: clientEventID,
		State:         StateAbandoned,
		EventID:       p.eventID,
		Err:           ErrAckTimeout,
	})
}

func notify(handlers []func(AckUpdate), update AckUpdate) {
	for _, fn := range handlers {
		fn(update)
	}
}
