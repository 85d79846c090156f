package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/dto"
)

// PollingTransport 是轮询通道的客户端实现，不做重试。
// 每个房间维护一个游标，Poll 总是推进到服务端返回的 nextSince。
type PollingTransport struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	cursors map[string]int64
}

// NewPollingTransport baseURL 例如 http://localhost:3000
func NewPollingTransport(baseURL string, httpClient *http.Client) *PollingTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PollingTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		cursors: make(map[string]int64),
	}
}

func (p *PollingTransport) eventsURL(roomCode string) string {
	return p.baseURL + "/api/rooms/" + url.PathEscape(roomCode) + "/events"
}

// Submit 提交一个事件，返回服务端分配的事件 id。
// 非 2xx 响应返回 *DeliveryRejectedError。
func (p *PollingTransport) Submit(ctx context.Context, roomCode string, eventType domain.EventType, payload string) (int64, error) {
	typ := string(eventType)
	body, err := json.Marshal(dto.SubmitEventRequest{Type: &typ, Payload: &payload})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.eventsURL(roomCode), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out dto.SubmitEventResponse
	if err := p.do(req, &out); err != nil {
		return 0, err
	}
	return out.EventID, nil
}

// Poll 拉取游标之后的事件并推进游标
func (p *PollingTransport) Poll(ctx context.Context, roomCode string) ([]domain.Event, error) {
	since := p.Cursor(roomCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.eventsURL(roomCode)+"?since="+strconv.FormatInt(since, 10), nil)
	if err != nil {
		return nil, err
	}

	var out dto.PollEventsResponse
	if err := p.do(req, &out); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cursors[roomCode] = out.NextSince
	p.mu.Unlock()
	return out.Events, nil
}

// Cursor 返回房间当前游标
func (p *PollingTransport) Cursor(roomCode string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursors[roomCode]
}

// ResetCursor 把房间游标设回 0
func (p *PollingTransport) ResetCursor(roomCode string) {
	p.mu.Lock()
	delete(p.cursors, roomCode)
	p.mu.Unlock()
}

func (p *PollingTransport) do(req *http.Request, out interface{}) error {
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e dto.ErrorResponse
		_ = json.Unmarshal(data, &e)
		return &DeliveryRejectedError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
