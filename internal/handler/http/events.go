package http

import (
	"net/http"
	"strconv"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"
	"github.com/jhaanurag/remote-keyboard-web/internal/hub"
	"github.com/jhaanurag/remote-keyboard-web/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// EventHandler 是轮询接口：基于游标的事件拉取与提交，本身无状态。
type EventHandler struct {
	hub   *hub.Hub
	relay *service.RelayService
}

// NewEventHandler 创建 EventHandler 实例
func NewEventHandler(h *hub.Hub, relay *service.RelayService) *EventHandler {
	if h == nil {
		panic("Hub cannot be nil for EventHandler")
	}
	if relay == nil {
		panic("RelayService cannot be nil for EventHandler")
	}
	return &EventHandler{hub: h, relay: relay}
}

// Submit 处理 POST /api/rooms/:roomCode/events
// 轮询提交没有来源端点，事件会广播给房间内所有推送端点。
func (h *EventHandler) Submit(c *gin.Context) {
	roomCode := c.Param("roomCode")
	logCtx := logrus.WithField("room_code", roomCode)

	// 1. 绑定请求体，缺失或 null 的字段直接拒绝
	var req dto.SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Debug("Handler.Submit: Invalid request body")
		ErrorResponse(c, http.StatusBadRequest, MissingFieldsMessage)
		return
	}

	// 2. 交给 Hub 写入并广播
	cmd := service.SubmitCommand{RoomCode: roomCode, Type: *req.Type, Payload: req.Payload}
	event, err := h.hub.Submit(c.Request.Context(), cmd, nil, nil)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("event_id", event.ID).Debug("Handler.Submit: Event accepted")
	SuccessResponse(c, http.StatusAccepted, dto.SubmitEventResponse{Accepted: true, EventID: event.ID})
}

// Poll 处理 GET /api/rooms/:roomCode/events?since=N
func (h *EventHandler) Poll(c *gin.Context) {
	roomCode := c.Param("roomCode")
	since := parseSince(c.Query("since"))

	events := h.relay.ListSince(roomCode, since)
	if events == nil {
		events = []domain.Event{}
	}
	nextSince := since
	if len(events) > 0 {
		nextSince = events[len(events)-1].ID
	}

	SuccessResponse(c, http.StatusOK, dto.PollEventsResponse{Events: events, NextSince: nextSince})
}

// RoomInfo 处理 GET /api/rooms/:roomCode，只读，不刷新房间
func (h *EventHandler) RoomInfo(c *gin.Context) {
	info, err := h.relay.RoomInfo(c.Param("roomCode"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, info)
}

// Health 处理 GET /api/health
func (h *EventHandler) Health(c *gin.Context) {
	h.hub.Prune()
	SuccessResponse(c, http.StatusOK, gin.H{"ok": true, "rooms": h.hub.RoomCount()})
}

// parseSince 缺失、非数字或负数都视为 0
func parseSince(raw string) int64 {
	if raw == "" {
		return 0
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0
	}
	return since
}
