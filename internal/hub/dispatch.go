package hub

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"
	"github.com/jhaanurag/remote-keyboard-web/internal/service"

	"github.com/sirupsen/logrus"
)

// HandleMessage 解析一条来自推送端点的原始消息并分发。
// 格式错误或未知的消息只记录日志，不回复也不断开连接。
func (h *Hub) HandleMessage(ctx context.Context, ep Endpoint, raw []byte) {
	// 每条入站消息都触发一次机会式清理
	h.Prune()

	logCtx := logrus.WithField("endpoint_id", ep.ID())

	var env dto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logCtx.WithError(err).Debug("Ignoring malformed push message")
		return
	}

	switch env.Event {
	case dto.EventJoinRoom:
		var msg dto.JoinRoomMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.RoomCode == "" {
			logCtx.WithError(err).Warn("Ignoring invalid join-room message")
			return
		}
		role := msg.Role
		if role == "" {
			role = domain.RoleSender
		}
		h.Join(msg.RoomCode, ep, role)

	case dto.EventKeystroke:
		h.handleKeystroke(ctx, ep, env.Data, logCtx)

	case dto.EventExecutionAck:
		var ack domain.ExecutionAck
		if err := json.Unmarshal(env.Data, &ack); err != nil || ack.RoomCode == "" {
			logCtx.WithError(err).Warn("Ignoring invalid execution-ack message")
			return
		}
		h.RelayExecutionAck(ack, env.Data)

	default:
		logCtx.WithField("event", env.Event).Debug("Ignoring unknown push event")
	}
}

func (h *Hub) handleKeystroke(ctx context.Context, ep Endpoint, data json.RawMessage, logCtx *logrus.Entry) {
	var msg dto.KeystrokeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logCtx.WithError(err).Warn("Ignoring malformed keystroke message")
		return
	}

	cmd := service.SubmitCommand{RoomCode: msg.RoomCode, Type: msg.Type, Payload: msg.Payload}
	event, err := h.Submit(ctx, cmd, ep, msg.ClientEventID)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logCtx.WithError(err).WithField("room_code", msg.RoomCode).Warn("Dropping invalid keystroke")
		} else {
			logCtx.WithError(err).WithField("room_code", msg.RoomCode).Error("Failed to submit keystroke")
		}
		return
	}

	// 第一阶段确认：事件已进入房间队列
	if msg.ClientEventID == nil {
		return
	}
	ack, err := dto.NewEnvelope(dto.EventDeliveryAck, domain.DeliveryAck{
		RoomCode:      msg.RoomCode,
		ClientEventID: *msg.ClientEventID,
		EventID:       event.ID,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal delivery ack")
		return
	}
	if !ep.Deliver(ack) {
		logCtx.WithField("client_event_id", *msg.ClientEventID).Warn("Failed to deliver delivery ack to origin")
	}
}
