package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval 轮询模式下的拉取间隔
const DefaultPollInterval = 500 * time.Millisecond

// KeyEmitter 在本机产生按键输入
type KeyEmitter interface {
	PressKey(key string) error
	TypeText(text string) error
}

// ReceiverChannel 是 Receiver 需要的推送通道能力，由 *PushTransport 实现
type ReceiverChannel interface {
	Join(roomCode string, role domain.Role) error
	SendExecutionAck(ack domain.ExecutionAck) error
	OnKeystroke(func(dto.KeystrokeBroadcast))
}

// EventPoller 由 *PollingTransport 实现
type EventPoller interface {
	Poll(ctx context.Context, roomCode string) ([]domain.Event, error)
}

// Receiver 以 receiver 身份加入房间，把收到的事件交给 KeyEmitter 执行，
// 并对带 clientEventId 的事件回报执行结果。
type Receiver struct {
	push    ReceiverChannel
	emitter KeyEmitter
	status  StatusRenderer
}

// NewReceiver 创建 Receiver，push 可以为 nil (只使用 PollLoop)
func NewReceiver(push ReceiverChannel, emitter KeyEmitter, status StatusRenderer) *Receiver {
	if emitter == nil {
		panic("KeyEmitter cannot be nil for Receiver")
	}
	if status == nil {
		status = LogRenderer{}
	}
	return &Receiver{push: push, emitter: emitter, status: status}
}

// Start 注册 keystroke 回调并加入房间。重连之后需要再次调用。
func (r *Receiver) Start(roomCode string) error {
	if r.push == nil {
		return ErrTransportUnavailable
	}
	if roomCode == "" {
		return ErrNoRoom
	}
	r.push.OnKeystroke(func(msg dto.KeystrokeBroadcast) { r.handleKeystroke(roomCode, msg) })
	if err := r.push.Join(roomCode, domain.RoleReceiver); err != nil {
		return err
	}
	r.status.RenderStatus(fmt.Sprintf("joined room %s, waiting for keystrokes", roomCode))
	return nil
}

// Apply 按事件类型执行：letter 按键，word/block 输入文本
func (r *Receiver) Apply(eventType domain.EventType, payload string) error {
	switch eventType {
	case domain.EventTypeLetter:
		return r.emitter.PressKey(payload)
	case domain.EventTypeWord, domain.EventTypeBlock:
		return r.emitter.TypeText(payload)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

func (r *Receiver) handleKeystroke(roomCode string, msg dto.KeystrokeBroadcast) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": roomCode, "event_id": msg.EventID})

	err := r.Apply(msg.Type, msg.Payload)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to apply keystroke")
	}

	// 只有带 clientEventId 的事件才需要回报
	if msg.ClientEventID == nil {
		return
	}
	ack := domain.ExecutionAck{
		RoomCode:      roomCode,
		ClientEventID: *msg.ClientEventID,
		EventID:       msg.EventID,
		OK:            err == nil,
	}
	if err != nil {
		ack.Error = err.Error()
	}
	if sendErr := r.push.SendExecutionAck(ack); sendErr != nil {
		// 发送端会因超时把该事件标记为 abandoned
		logCtx.WithError(sendErr).Warn("Failed to send execution ack")
	}
}

// PollLoop 轮询模式：按间隔拉取并执行事件，直到 ctx 结束。
// 轮询拉到的事件没有 clientEventId，不产生执行确认。
func (r *Receiver) PollLoop(ctx context.Context, poller EventPoller, roomCode string, interval time.Duration) error {
	if roomCode == "" {
		return ErrNoRoom
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		events, err := poller.Poll(ctx, roomCode)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.status.RenderStatus(fmt.Sprintf("poll failed: %v", err))
		}
		for _, ev := range events {
			if applyErr := r.Apply(ev.Type, ev.Payload); applyErr != nil {
				logrus.WithError(applyErr).WithField("event_id", ev.ID).Warn("Failed to apply polled event")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
