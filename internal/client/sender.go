package client

import (
	"context"
	"sync"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"

	"github.com/sirupsen/logrus"
)

// TransportKind 选择 Sender 使用的通道
type TransportKind int

const (
	TransportPush TransportKind = iota
	TransportPolling
)

func (k TransportKind) String() string {
	if k == TransportPolling {
		return "polling"
	}
	return "push"
}

// PushChannel 是 Sender 需要的推送通道能力，由 *PushTransport 实现
type PushChannel interface {
	SendKeystroke(roomCode string, eventType domain.EventType, payload string, clientEventID *int64) error
	OnKeystroke(func(dto.KeystrokeBroadcast))
	OnDeliveryAck(func(domain.DeliveryAck))
	OnExecutionAck(func(domain.ExecutionAck))
}

// PollingChannel 是 Sender 需要的轮询通道能力，由 *PollingTransport 实现
type PollingChannel interface {
	Submit(ctx context.Context, roomCode string, eventType domain.EventType, payload string) (int64, error)
}

// Outcome 是一次 SendEvent 的结果。
// 推送通道立即返回 Pending=true，最终结果通过 OnAck 通知；轮询通道同步返回。
type Outcome struct {
	Transport     TransportKind
	Pending       bool
	ClientEventID int64
	EventID       int64
	Err           error
}

// Sender 是发送端的入口：分配 clientEventId、跟踪确认、按当前通道提交事件。
type Sender struct {
	push    PushChannel
	polling PollingChannel
	tracker *AckTracker
	counter CounterStore
	room    func() string

	mu                sync.RWMutex
	kind              TransportKind
	keystrokeHandlers []func(dto.KeystrokeBroadcast)
}

// NewSender 组装 Sender。push 和 polling 至少提供一个；room 返回当前房间码。
func NewSender(push PushChannel, polling PollingChannel, tracker *AckTracker, counter CounterStore, room func() string) *Sender {
	if push == nil && polling == nil {
		panic("at least one transport is required for Sender")
	}
	if tracker == nil {
		tracker = NewAckTracker()
	}
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if room == nil {
		panic("room provider cannot be nil for Sender")
	}

	s := &Sender{push: push, polling: polling, tracker: tracker, counter: counter, room: room}
	if push == nil {
		s.kind = TransportPolling
	}
	if push != nil {
		push.OnDeliveryAck(func(ack domain.DeliveryAck) { tracker.HandleDeliveryAck(ack) })
		push.OnExecutionAck(func(ack domain.ExecutionAck) { tracker.HandleExecutionAck(ack) })
		push.OnKeystroke(s.handleKeystroke)
	}
	return s
}

// UseTransport 切换通道。已经在跟踪中的确认不迁移也不取消。
func (s *Sender) UseTransport(kind TransportKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == TransportPush && s.push == nil || kind == TransportPolling && s.polling == nil {
		logrus.WithField("transport", kind).Warn("Requested transport is not configured, keeping current")
		return
	}
	s.kind = kind
}

// Transport 返回当前通道
func (s *Sender) Transport() TransportKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// OnKeystroke 注册房间内其他成员广播过来的 keystroke 回调
func (s *Sender) OnKeystroke(fn func(dto.KeystrokeBroadcast)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.keystrokeHandlers = append(s.keystrokeHandlers, fn)
	s.mu.Unlock()
}

// OnAck 注册确认状态回调
func (s *Sender) OnAck(fn func(AckUpdate)) {
	s.tracker.OnAck(fn)
}

// SendEvent 提交一个事件
func (s *Sender) SendEvent(ctx context.Context, eventType domain.EventType, payload string) Outcome {
	kind := s.Transport()
	roomCode := s.room()
	if roomCode == "" {
		return Outcome{Transport: kind, Err: ErrNoRoom}
	}

	if kind == TransportPolling {
		eventID, err := s.polling.Submit(ctx, roomCode, eventType, payload)
		return Outcome{Transport: kind, EventID: eventID, Err: err}
	}

	// 1. 分配 id 并在发送前开始跟踪，确认可能在 SendKeystroke 返回前到达
	id, err := s.counter.Next()
	if err != nil {
		return Outcome{Transport: kind, Err: err}
	}
	s.tracker.Track(id)

	// 2. 非阻塞发送，失败时以 abandoned 结束跟踪
	if err := s.push.SendKeystroke(roomCode, eventType, payload, &id); err != nil {
		s.tracker.Fail(id, err)
		return Outcome{Transport: kind, ClientEventID: id, Err: err}
	}
	return Outcome{Transport: kind, Pending: true, ClientEventID: id}
}

func (s *Sender) handleKeystroke(msg dto.KeystrokeBroadcast) {
	s.mu.RLock()
	handlers := s.keystrokeHandlers
	s.mu.RUnlock()
	for _, fn := range handlers {
		fn(msg)
	}
}
