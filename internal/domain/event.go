package domain

import (
	"fmt"
	"time"
)

// EventType 决定 payload 在接收端如何被解释，中继本身不解析 payload。
type EventType string

const (
	EventTypeLetter EventType = "letter" // 单个字符或按键名 (如 "Backspace")
	EventTypeWord   EventType = "word"   // 以空白结尾的单词
	EventTypeBlock  EventType = "block"  // 不透明的多字符文本块
)

// Valid 判断事件类型是否属于已知枚举。
func (t EventType) Valid() bool {
	switch t {
	case EventTypeLetter, EventTypeWord, EventTypeBlock:
		return true
	default:
		return false
	}
}

// ParseEventType 将字符串转换为 EventType，未知类型返回错误。
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Event 表示房间事件日志中的一条记录，追加后不可变。
type Event struct {
	ID        int64     `json:"id"`        // 房间内唯一且严格递增
	Type      EventType `json:"type"`      // letter / word / block
	Payload   string    `json:"payload"`   // 原样转发，可以为空字符串
	CreatedAt time.Time `json:"createdAt"` // 追加时间
}
