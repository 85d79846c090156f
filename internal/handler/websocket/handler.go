package websocket

import (
	"net/http"

	"github.com/jhaanurag/remote-keyboard-web/internal/hub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Options 控制连接参数
type Options struct {
	AllowedOrigin  string // "*" 或空表示允许所有来源
	MaxMessageSize int64
	SendBuffer     int
}

// WebSocketHandler 负责处理 WebSocket 升级请求。
// 房间加入通过连接建立后的 join-room 消息完成，不在 URL 中指定。
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	opts     Options
}

// NewWebSocketHandler 创建 WebSocketHandler 实例
func NewWebSocketHandler(h *hub.Hub, opts Options) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if opts.AllowedOrigin == "" || opts.AllowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			// 非浏览器客户端不带 Origin
			return origin == "" || origin == opts.AllowedOrigin
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h, opts: opts}
}

// HandleConnection 处理 GET /ws
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	logCtx := logrus.WithField("remote_addr", c.ClientIP())

	// 1. 升级连接，失败时 Upgrade 已经写回 HTTP 错误
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	// 2. 创建端点并启动读写 goroutine
	client := hub.NewClient(h.hub, conn,
		hub.WithMaxMessageSize(h.opts.MaxMessageSize),
		hub.WithSendBuffer(h.opts.SendBuffer),
	)
	client.Run()

	logCtx.WithField("endpoint_id", client.ID()).Info("WS Handler: Connection upgraded, pumps started")
}
