package bootstrap_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/bootstrap"
	"github.com/jhaanurag/remote-keyboard-web/internal/client"
	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
	"github.com/jhaanurag/remote-keyboard-web/internal/hub"
	"github.com/jhaanurag/remote-keyboard-web/internal/infra/memory"
	"github.com/jhaanurag/remote-keyboard-web/internal/middleware"
	"github.com/jhaanurag/remote-keyboard-web/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startApp(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &bootstrap.Config{CORSAllowedOrigin: "*", WSMaxMessageBytes: hub.DefaultMaxMessageSize, WSSendBuffer: hub.DefaultSendBuffer}
	relay := service.NewRelayService(memory.NewRoomStore())
	h := hub.NewHub(relay)
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	router := bootstrap.NewRouter(cfg, log, h, relay, middleware.NewLocalLimiter(1000, time.Second))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, h
}

type keyLog struct {
	mu      sync.Mutex
	pressed []string
}

func (k *keyLog) PressKey(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pressed = append(k.pressed, key)
	return nil
}

func (k *keyLog) TypeText(text string) error { return nil }

func TestEndToEnd_PushAckResolves(t *testing.T) {
	srv, h := startApp(t)
	ctx := context.Background()

	// 客户端 B：接收端
	pushB := client.NewPushTransport(client.DefaultPushConfig(client.PushURL(srv.URL)))
	require.NoError(t, pushB.Connect(ctx))
	defer pushB.Close()
	keys := &keyLog{}
	receiver := client.NewReceiver(pushB, keys, client.StatusFunc(func(string) {}))
	require.NoError(t, receiver.Start("1234"))

	// 客户端 A：发送端
	pushA := client.NewPushTransport(client.DefaultPushConfig(client.PushURL(srv.URL)))
	require.NoError(t, pushA.Connect(ctx))
	defer pushA.Close()
	require.NoError(t, pushA.Join("1234", domain.RoleSender))
	require.Eventually(t, func() bool { return h.MemberCount("1234") == 2 }, 3*time.Second, 10*time.Millisecond)

	tracker := client.NewAckTracker()
	updates := make(chan client.AckUpdate, 8)
	tracker.OnAck(func(u client.AckUpdate) { updates <- u })
	sender := client.NewSender(pushA, nil, tracker, client.NewMemoryCounter(), func() string { return "1234" })

	outcome := sender.SendEvent(ctx, domain.EventTypeLetter, "a")
	require.NoError(t, outcome.Err)
	require.True(t, outcome.Pending)
	assert.Equal(t, int64(1), outcome.ClientEventID)

	var seen []client.AckState
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 || !seen[len(seen)-1].Terminal() {
		select {
		case u := <-updates:
			assert.Equal(t, int64(1), u.ClientEventID)
			seen = append(seen, u.State)
		case <-timeout:
			t.Fatalf("ack did not resolve, states so far: %v", seen)
		}
	}

	// delivery-ack 与 execution-ack 独立到达，queued 可能被跳过
	require.NotEmpty(t, seen)
	assert.Equal(t, client.StateSent, seen[0])
	assert.Equal(t, client.StateResolvedOK, seen[len(seen)-1])
	assert.LessOrEqual(t, len(seen), 3)
	keys.mu.Lock()
	assert.Equal(t, []string{"a"}, keys.pressed)
	keys.mu.Unlock()
}

func TestEndToEnd_PollingRoundTrip(t *testing.T) {
	srv, _ := startApp(t)
	ctx := context.Background()
	transport := client.NewPollingTransport(srv.URL, srv.Client())

	eventID, err := transport.Submit(ctx, "abcd", domain.EventTypeWord, "hi ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), eventID)

	events, err := transport.Poll(ctx, "abcd")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, "hi ", events[0].Payload)
	assert.Equal(t, int64(1), transport.Cursor("abcd"))
}

func TestEndToEnd_PollingSubmitReachesPushReceiver(t *testing.T) {
	srv, h := startApp(t)
	ctx := context.Background()

	push := client.NewPushTransport(client.DefaultPushConfig(client.PushURL(srv.URL)))
	require.NoError(t, push.Connect(ctx))
	defer push.Close()
	keys := &keyLog{}
	require.NoError(t, client.NewReceiver(push, keys, nil).Start("mixed"))
	require.Eventually(t, func() bool { return h.MemberCount("mixed") == 1 }, 3*time.Second, 10*time.Millisecond)

	_, err := client.NewPollingTransport(srv.URL, nil).Submit(ctx, "mixed", domain.EventTypeLetter, "z")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		keys.mu.Lock()
		defer keys.mu.Unlock()
		return len(keys.pressed) == 1 && keys.pressed[0] == "z"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPushTransport_SendWhileDisconnected(t *testing.T) {
	push := client.NewPushTransport(client.DefaultPushConfig("ws://127.0.0.1:1/ws"))
	assert.ErrorIs(t, push.SendKeystroke("r", domain.EventTypeLetter, "a", nil), client.ErrTransportUnavailable)
	assert.ErrorIs(t, push.Join("r", domain.RoleSender), client.ErrTransportUnavailable)
}
