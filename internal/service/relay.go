package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/repository"

	"github.com/sirupsen/logrus"
)

// SubmitCommand 是一次事件提交的输入，来自任意传输层。
// Payload 为 nil 表示缺失；空字符串是合法的 payload。
type SubmitCommand struct {
	RoomCode string
	Type     string
	Payload  *string
}

// RelayService 负责提交校验和写入房间事件日志，不关心广播。
type RelayService struct {
	store repository.RoomStore
}

// NewRelayService 创建 RelayService 实例
func NewRelayService(store repository.RoomStore) *RelayService {
	if store == nil {
		panic("RoomStore cannot be nil for RelayService")
	}
	return &RelayService{store: store}
}

// Validate 检查 roomCode、type、payload 是否齐全，并解析事件类型。
func (s *RelayService) Validate(cmd SubmitCommand) (domain.EventType, error) {
	if cmd.RoomCode == "" {
		return "", fmt.Errorf("%w: roomCode is required", ErrValidation)
	}
	if cmd.Type == "" {
		return "", fmt.Errorf("%w: type is required", ErrValidation)
	}
	if cmd.Payload == nil {
		return "", fmt.Errorf("%w: payload is required", ErrValidation)
	}
	eventType, err := domain.ParseEventType(cmd.Type)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return eventType, nil
}

// Submit 校验并追加事件，返回分配了 id 的事件。
func (s *RelayService) Submit(ctx context.Context, cmd SubmitCommand) (domain.Event, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_code": cmd.RoomCode, "type": cmd.Type})

	eventType, err := s.Validate(cmd)
	if err != nil {
		logCtx.WithError(err).Debug("Rejected invalid submission")
		return domain.Event{}, err
	}

	return s.Append(cmd.RoomCode, eventType, *cmd.Payload), nil
}

// Append 写入已校验的事件。调用方负责先调用 Validate。
func (s *RelayService) Append(roomCode string, eventType domain.EventType, payload string) domain.Event {
	event := s.store.Append(roomCode, eventType, payload)
	logrus.WithFields(logrus.Fields{
		"room_code": roomCode,
		"event_id":  event.ID,
		"type":      eventType,
	}).Debug("Event appended")
	return event
}

// Touch 刷新房间 (加入房间时作为 keep-alive)
func (s *RelayService) Touch(roomCode string) domain.RoomInfo {
	return s.store.GetOrCreate(roomCode)
}

// ListSince 透传到 RoomStore
func (s *RelayService) ListSince(roomCode string, sinceID int64) []domain.Event {
	return s.store.ListSince(roomCode, sinceID)
}

// PruneExpired 清理过期房间，返回清理数量
func (s *RelayService) PruneExpired(now time.Time) int {
	return s.store.PruneExpired(now)
}

// RoomCount 返回当前存活房间数
func (s *RelayService) RoomCount() int {
	return s.store.Len()
}

// RoomInfo 查询房间快照但不刷新
func (s *RelayService) RoomInfo(roomCode string) (domain.RoomInfo, error) {
	return s.store.Peek(roomCode)
}
