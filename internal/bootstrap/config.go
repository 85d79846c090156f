package bootstrap

import (
	"os"
	"strconv"
	"time"

	"github.com/jhaanurag/remote-keyboard-web/internal/hub"
	"github.com/jhaanurag/remote-keyboard-web/internal/repository"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort        string
	LogLevel          string
	AppEnv            string // development/production
	CORSAllowedOrigin string
	RetentionWindow   time.Duration
	MaxEventsPerRoom  int
	WSMaxMessageBytes int64
	WSSendBuffer      int
	PruneInterval     time.Duration
	RateLimitMax      int
	RateLimitWindow   time.Duration
	RedisAddr         string // 为空时使用进程内限流
	RedisPassword     string
	RedisDB           int
	KeyPrefix         string
}

// LoadConfig 从环境变量加载配置。非法值回退到默认值并记录警告。
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:        stringEnv("SERVER_PORT", "3000"),
		LogLevel:          stringEnv("LOG_LEVEL", "info"),
		AppEnv:            stringEnv("APP_ENV", "development"),
		CORSAllowedOrigin: stringEnv("CORS_ALLOWED_ORIGIN", "*"),
		RetentionWindow:   durationEnv("RETENTION_WINDOW", repository.DefaultRetentionWindow),
		MaxEventsPerRoom:  intEnv("MAX_EVENTS_PER_ROOM", repository.DefaultMaxEventsPerRoom),
		WSMaxMessageBytes: int64(intEnv("WS_MAX_MESSAGE_BYTES", hub.DefaultMaxMessageSize)),
		WSSendBuffer:      intEnv("WS_SEND_BUFFER", hub.DefaultSendBuffer),
		PruneInterval:     durationEnv("PRUNE_INTERVAL", time.Second),
		RateLimitMax:      intEnv("RATE_LIMIT_MAX", 200),
		RateLimitWindow:   durationEnv("RATE_LIMIT_WINDOW", time.Second),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           intEnv("REDIS_DB", 0),
		KeyPrefix:         stringEnv("REDIS_KEY_PREFIX", "rk:"),
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		logrus.Warnf("Invalid %s '%s', using default %d", key, raw, def)
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		logrus.Warnf("Invalid %s '%s', using default %s", key, raw, def)
		return def
	}
	return v
}
