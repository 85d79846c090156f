package dto

import "github.com/jhaanurag/remote-keyboard-web/internal/domain"

// SubmitEventRequest 是轮询接口 POST 的请求体。
// binding:"required" 作用于指针：只拒绝缺失/null，空字符串 payload 允许通过。
type SubmitEventRequest struct {
	Type    *string `json:"type" binding:"required"`
	Payload *string `json:"payload" binding:"required"`
}

// SubmitEventResponse 202 响应
type SubmitEventResponse struct {
	Accepted bool  `json:"accepted"`
	EventID  int64 `json:"eventId"`
}

// PollEventsResponse 200 响应。调用方必须把游标推进到 NextSince，而不是自己计算。
type PollEventsResponse struct {
	Events    []domain.Event `json:"events"`
	NextSince int64          `json:"nextSince"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}
