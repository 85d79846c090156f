package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"
)

// PushConfig 推送通道参数，超时为 0 表示不限制
type PushConfig struct {
	URL              string // 例如 ws://localhost:3000/ws
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	WriteBuffer      int
	ReadLimit        int64
}

// DefaultPushConfig 返回默认配置
func DefaultPushConfig(url string) PushConfig {
	return PushConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		WriteBuffer:      64,
		ReadLimit:        64 * 1024,
	}
}

// PushURL 把 http(s) 基础地址转换为推送通道地址
func PushURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// PushTransport 是推送通道的客户端实现。
// 所有发送都是非阻塞入队，由 writeLoop 写到网络上；未连接时立即返回 ErrTransportUnavailable。
type PushTransport struct {
	cfg PushConfig

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	writeCh   chan outbound
	done      chan struct{}

	handlersMu     sync.RWMutex
	onKeystroke    func(dto.KeystrokeBroadcast)
	onDeliveryAck  func(domain.DeliveryAck)
	onExecutionAck func(domain.ExecutionAck)
	onMemberJoined func(domain.MemberJoined)
	onDisconnect   func(error)
}

// NewPushTransport 创建未连接的推送通道
func NewPushTransport(cfg PushConfig) *PushTransport {
	if cfg.WriteBuffer <= 0 {
		cfg.WriteBuffer = 64
	}
	return &PushTransport{cfg: cfg}
}

// OnKeystroke 注册 keystroke 广播回调
func (p *PushTransport) OnKeystroke(fn func(dto.KeystrokeBroadcast)) {
	p.handlersMu.Lock()
	p.onKeystroke = fn
	p.handlersMu.Unlock()
}

// OnDeliveryAck 注册 delivery-ack 回调
func (p *PushTransport) OnDeliveryAck(fn func(domain.DeliveryAck)) {
	p.handlersMu.Lock()
	p.onDeliveryAck = fn
	p.handlersMu.Unlock()
}

// OnExecutionAck 注册 execution-ack 回调
func (p *PushTransport) OnExecutionAck(fn func(domain.ExecutionAck)) {
	p.handlersMu.Lock()
	p.onExecutionAck = fn
	p.handlersMu.Unlock()
}

// OnMemberJoined 注册 member-joined 回调
func (p *PushTransport) OnMemberJoined(fn func(domain.MemberJoined)) {
	p.handlersMu.Lock()
	p.onMemberJoined = fn
	p.handlersMu.Unlock()
}

// OnDisconnect 连接意外断开时回调 (主动 Close 不触发)
func (p *PushTransport) OnDisconnect(fn func(error)) {
	p.handlersMu.Lock()
	p.onDisconnect = fn
	p.handlersMu.Unlock()
}

// Connect 建立连接并启动读写循环
func (p *PushTransport) Connect(ctx context.Context) error {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return errors.New("already connected")
	}
	p.mu.Unlock()

	if p.cfg.URL == "" {
		return errors.New("empty URL")
	}

	dialCtx := ctx
	if p.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.cfg.HandshakeTimeout)
		defer cancel()
	}
	conn, _, err := websocket.Dial(dialCtx, p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.cfg.URL, err)
	}
	if p.cfg.ReadLimit > 0 {
		conn.SetReadLimit(p.cfg.ReadLimit)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	writeCh := make(chan outbound, p.cfg.WriteBuffer)

	p.mu.Lock()
	if p.cancel != nil {
		// 上一次连接遗留的写循环
		p.cancel()
	}
	p.conn = conn
	p.cancel = cancel
	p.done = done
	p.writeCh = writeCh
	p.connected = true
	p.mu.Unlock()

	go p.readLoop(runCtx, conn, done)
	go p.writeLoop(runCtx, conn, writeCh)
	return nil
}

// Connected 当前是否可以发送
func (p *PushTransport) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Done 返回当前连接结束时关闭的通道，未连接时返回 nil
func (p *PushTransport) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Join 加入房间
func (p *PushTransport) Join(roomCode string, role domain.Role) error {
	return p.enqueue(outbound{Event: dto.EventJoinRoom, Data: dto.JoinRoomMessage{RoomCode: roomCode, Role: role}})
}

// SendKeystroke 提交一个事件，clientEventID 为 nil 时服务端不回 delivery-ack
func (p *PushTransport) SendKeystroke(roomCode string, eventType domain.EventType, payload string, clientEventID *int64) error {
	return p.enqueue(outbound{Event: dto.EventKeystroke, Data: dto.KeystrokeMessage{
		RoomCode:      roomCode,
		Type:          string(eventType),
		Payload:       &payload,
		ClientEventID: clientEventID,
	}})
}

// SendExecutionAck 接收端在应用事件之后回报结果
func (p *PushTransport) SendExecutionAck(ack domain.ExecutionAck) error {
	return p.enqueue(outbound{Event: dto.EventExecutionAck, Data: ack})
}

// Close 关闭连接，未发送的消息被丢弃
func (p *PushTransport) Close() error {
	p.mu.Lock()
	conn := p.conn
	wasConnected := p.connected
	if p.cancel != nil {
		p.cancel()
	}
	p.connected = false
	p.conn = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "client close")
	if !wasConnected {
		// 连接已经断开，关闭错误没有意义
		return nil
	}
	return err
}

func (p *PushTransport) enqueue(msg outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrTransportUnavailable
	}
	select {
	case p.writeCh <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (p *PushTransport) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var env dto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			p.markDisconnected(conn)
			if isExpectedDisconnect(ctx, err) {
				return
			}
			logrus.WithError(err).Warn("Push transport read loop exit")
			p.handlersMu.RLock()
			fn := p.onDisconnect
			p.handlersMu.RUnlock()
			if fn != nil {
				fn(err)
			}
			return
		}
		p.dispatch(env)
	}
}

func (p *PushTransport) writeLoop(ctx context.Context, conn *websocket.Conn, writeCh chan outbound) {
	for {
		select {
		case msg := <-writeCh:
			writeCtx := ctx
			var cancel context.CancelFunc = func() {}
			if p.cfg.WriteTimeout > 0 {
				writeCtx, cancel = context.WithTimeout(ctx, p.cfg.WriteTimeout)
			}
			err := wsjson.Write(writeCtx, conn, msg)
			cancel()
			if err != nil {
				if !isExpectedDisconnect(ctx, err) {
					logrus.WithError(err).WithField("event", msg.Event).Warn("Push transport write loop exit")
				}
				p.markDisconnected(conn)
				_ = conn.Close(websocket.StatusInternalError, "write error")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// markDisconnected 只在 conn 仍是当前连接时修改状态，避免影响重连后的新连接
func (p *PushTransport) markDisconnected(conn *websocket.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == conn {
		p.connected = false
	}
}

func (p *PushTransport) dispatch(env dto.Envelope) {
	// 回调在锁外执行，回调中可以重新注册
	p.handlersMu.RLock()
	onKeystroke, onDeliveryAck := p.onKeystroke, p.onDeliveryAck
	onExecutionAck, onMemberJoined := p.onExecutionAck, p.onMemberJoined
	p.handlersMu.RUnlock()

	logCtx := logrus.WithField("event", env.Event)
	var err error
	switch env.Event {
	case dto.EventKeystroke:
		var msg dto.KeystrokeBroadcast
		if err = json.Unmarshal(env.Data, &msg); err == nil && onKeystroke != nil {
			onKeystroke(msg)
		}
	case dto.EventDeliveryAck:
		var ack domain.DeliveryAck
		if err = json.Unmarshal(env.Data, &ack); err == nil && onDeliveryAck != nil {
			onDeliveryAck(ack)
		}
	case dto.EventExecutionAck:
		var ack domain.ExecutionAck
		if err = json.Unmarshal(env.Data, &ack); err == nil && onExecutionAck != nil {
			onExecutionAck(ack)
		}
	case dto.EventMemberJoined:
		var ev domain.MemberJoined
		if err = json.Unmarshal(env.Data, &ev); err == nil && onMemberJoined != nil {
			onMemberJoined(ev)
		}
	default:
		logCtx.Debug("Ignoring unknown push event")
	}
	if err != nil {
		logCtx.WithError(err).Warn("Failed to decode push event")
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
