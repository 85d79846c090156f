package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jhaanurag/remote-keyboard-web/internal/client"
	"github.com/jhaanurag/remote-keyboard-web/internal/domain"
)

// 从标准输入读取文本：每一行作为一个 block 事件发送，
// "/letter X" 发送单个按键，"/word X" 发送一个单词 (自动补空格)。
func main() {
	_ = godotenv.Load()

	serverURL := flag.String("server", envOr("SERVER_URL", "http://localhost:3000"), "relay server base URL")
	roomCode := flag.String("room", os.Getenv("ROOM_CODE"), "room code to join")
	poll := flag.Bool("poll", false, "submit through the polling API")
	counterPath := flag.String("counter", defaultCounterPath(), "file that stores the next client event id")
	flag.Parse()

	log := logrus.WithField("component", "sender")
	if *roomCode == "" {
		log.Fatal("room code is required (-room or ROOM_CODE)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	polling := client.NewPollingTransport(*serverURL, nil)
	push := client.NewPushTransport(client.DefaultPushConfig(client.PushURL(*serverURL)))
	tracker := client.NewAckTracker()
	sender := client.NewSender(push, polling, tracker, client.NewFileCounter(*counterPath), func() string { return *roomCode })

	sender.OnAck(func(u client.AckUpdate) {
		entry := log.WithFields(logrus.Fields{
			"client_event_id": u.ClientEventID,
			"event_id":        u.EventID,
			"state":           u.State.String(),
		})
		switch u.State {
		case client.StateResolvedFail:
			entry.WithError(u.Err).Warn("Receiver failed to apply event")
		case client.StateAbandoned:
			entry.WithError(u.Err).Warn("Event outcome unknown")
		default:
			entry.Info("Ack update")
		}
	})

	if *poll {
		sender.UseTransport(client.TransportPolling)
	} else {
		if err := push.Connect(ctx); err != nil {
			log.WithError(err).Warn("Push channel unavailable, falling back to polling")
			sender.UseTransport(client.TransportPolling)
		} else if err := push.Join(*roomCode, domain.RoleSender); err != nil {
			log.WithError(err).Warn("Failed to join room")
		}
		push.OnDisconnect(func(err error) {
			log.WithError(err).Warn("Push channel lost, switching to polling")
			sender.UseTransport(client.TransportPolling)
		})
	}
	defer push.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				// 等待最后的确认
				time.Sleep(500 * time.Millisecond)
				return
			}
			eventType, payload := parseLine(line)
			outcome := sender.SendEvent(ctx, eventType, payload)
			entry := log.WithFields(logrus.Fields{"transport": outcome.Transport.String(), "type": eventType})
			if outcome.Err != nil {
				entry.WithError(outcome.Err).Error("Send failed")
				continue
			}
			if outcome.Pending {
				entry.WithField("client_event_id", outcome.ClientEventID).Debug("Event sent, awaiting acks")
			} else {
				entry.WithField("event_id", outcome.EventID).Info("Event accepted")
			}
		}
	}
}

func parseLine(line string) (domain.EventType, string) {
	switch {
	case strings.HasPrefix(line, "/letter "):
		return domain.EventTypeLetter, strings.TrimPrefix(line, "/letter ")
	case strings.HasPrefix(line, "/word "):
		return domain.EventTypeWord, strings.TrimPrefix(line, "/word ") + " "
	default:
		return domain.EventTypeBlock, line + "\n"
	}
}

func defaultCounterPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".remote-keyboard-counter.json"
	}
	return filepath.Join(dir, "remote-keyboard", "counter.json")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
