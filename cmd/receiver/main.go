package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jhaanurag/remote-keyboard-web/internal/client"
	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
)

// logEmitter 把按键写到日志。真正的键盘注入由宿主环境提供。
type logEmitter struct {
	log *logrus.Entry
}

func (e logEmitter) PressKey(key string) error {
	e.log.WithField("key", key).Info("press key")
	return nil
}

func (e logEmitter) TypeText(text string) error {
	e.log.WithField("text", text).Info("type text")
	return nil
}

func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("SERVER_URL", "http://localhost:3000"), "relay server base URL")
	roomCode := flag.String("room", os.Getenv("ROOM_CODE"), "room code to join")
	poll := flag.Bool("poll", false, "use the polling API instead of the push channel")
	interval := flag.Duration("interval", client.DefaultPollInterval, "poll interval")
	flag.Parse()

	log := logrus.WithField("component", "receiver")
	if *roomCode == "" {
		log.Fatal("room code is required (-room or ROOM_CODE)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emitter := logEmitter{log: log}
	status := client.LogRenderer{Entry: log}

	if *poll {
		poller := client.NewPollingTransport(*serverURL, nil)
		receiver := client.NewReceiver(nil, emitter, status)
		if err := receiver.PollLoop(ctx, poller, *roomCode, *interval); err != nil && ctx.Err() == nil {
			log.WithError(err).Fatal("Poll loop failed")
		}
		return
	}

	push := client.NewPushTransport(client.DefaultPushConfig(client.PushURL(*serverURL)))
	push.OnMemberJoined(func(ev domain.MemberJoined) {
		log.WithFields(logrus.Fields{"member_id": ev.ID, "role": ev.Role}).Info("Member joined room")
	})
	receiver := client.NewReceiver(push, emitter, status)
	runPush(ctx, log, push, receiver, *roomCode)
	_ = push.Close()
}

// runPush 保持连接：断开后按指数退避重连，并重新加入房间
func runPush(ctx context.Context, log *logrus.Entry, push *client.PushTransport, receiver *client.Receiver, roomCode string) {
	for ctx.Err() == nil {
		b := backoff.NewExponentialBackOff()
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 0

		connect := func() error {
			if !push.Connected() {
				if err := push.Connect(ctx); err != nil {
					log.WithError(err).Warn("Connect failed, retrying")
					return err
				}
			}
			return receiver.Start(roomCode)
		}
		if err := backoff.Retry(connect, backoff.WithContext(b, ctx)); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-push.Done():
			log.Warn("Disconnected from server, reconnecting")
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
