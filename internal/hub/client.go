package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 写消息允许的最长时间
	writeWait = 10 * time.Second
	// 等待对端 Pong 的最长时间
	pongWait = 60 * time.Second
	// Ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize 单条入站消息的最大字节数
	DefaultMaxMessageSize = 64 * 1024
	// DefaultSendBuffer 每个连接的发送缓冲
	DefaultSendBuffer = 256
)

// Client 代表一个连接到 Hub 的 WebSocket 端点。
// 一个 Client 可以加入多个房间，成员关系由 Hub 维护。
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	id             string
	send           chan []byte
	done           chan struct{}
	closeOnce      sync.Once
	maxMessageSize int64
}

// ClientOption 配置 Client
type ClientOption func(*Client)

// WithMaxMessageSize 设置读取上限
func WithMaxMessageSize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxMessageSize = n
		}
	}
}

// WithSendBuffer 设置发送通道缓冲大小
func WithSendBuffer(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.send = make(chan []byte, n)
		}
	}
}

// NewClient 创建一个新的 Client 实例，端点 id 使用 UUID
func NewClient(hub *Hub, conn *websocket.Conn, opts ...ClientOption) *Client {
	c := &Client{
		hub:            hub,
		conn:           conn,
		id:             uuid.NewString(),
		send:           make(chan []byte, DefaultSendBuffer),
		done:           make(chan struct{}),
		maxMessageSize: DefaultMaxMessageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID 实现 Endpoint
func (c *Client) ID() string { return c.id }

// Deliver 实现 Endpoint：非阻塞入队，缓冲满或连接已关闭时返回 false
func (c *Client) Deliver(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// ReadPump 从连接读取消息并交给 Hub 处理。
// 退出时从所有房间注销并关闭连接。
func (c *Client) ReadPump() {
	logCtx := logrus.WithField("endpoint_id", c.id)
	defer func() {
		c.hub.Leave(c)
		c.shutdown()
		logCtx.Info("readPump exited, endpoint unregistered")
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.HandleMessage(context.Background(), c, message)
	}
}

// WritePump 把 send 通道中的消息写到连接上，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithField("endpoint_id", c.id)
	defer func() {
		ticker.Stop()
		c.shutdown()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
