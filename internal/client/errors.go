package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable 推送通道未连接，消息不会被缓存
	ErrTransportUnavailable = errors.New("push transport not connected")
	// ErrSendBufferFull 写通道已满
	ErrSendBufferFull = errors.New("push transport send buffer full")
	// ErrNoRoom 当前没有选定房间
	ErrNoRoom = errors.New("room code is not set")
	// ErrAckTimeout 在超时前没有收到执行确认，事件结果未知
	ErrAckTimeout = errors.New("no acknowledgment before timeout")
	// ErrExecutionFailed 接收端报告执行失败但没有给出原因
	ErrExecutionFailed = errors.New("receiver failed to apply event")
	// ErrUnknownEventType 接收端无法解释的事件类型
	ErrUnknownEventType = errors.New("unknown event type")
)

// DeliveryRejectedError 轮询提交收到非 2xx 响应
type DeliveryRejectedError struct {
	StatusCode int
	Message    string
}

func (e *DeliveryRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("delivery rejected: status %d", e.StatusCode)
	}
	return fmt.Sprintf("delivery rejected: status %d: %s", e.StatusCode, e.Message)
}
