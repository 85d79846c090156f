package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	httpHandler "github.com/jhaanurag/remote-keyboard-web/internal/handler/http"
	wsHandler "github.com/jhaanurag/remote-keyboard-web/internal/handler/websocket"
	"github.com/jhaanurag/remote-keyboard-web/internal/hub"
	"github.com/jhaanurag/remote-keyboard-web/internal/infra/memory"
	"github.com/jhaanurag/remote-keyboard-web/internal/infra/setup"
	"github.com/jhaanurag/remote-keyboard-web/internal/middleware"
	"github.com/jhaanurag/remote-keyboard-web/internal/service"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	RedisClient *redis.Client // 未配置 REDIS_ADDR 时为 nil
	Relay       *service.RelayService
	Hub         *hub.Hub
	Router      *gin.Engine
	HttpServer  *http.Server
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Info("Configuration loaded successfully")

	// 3. 初始化限流 (Redis 可选)
	var redisClient *redis.Client
	var limiter middleware.Limiter
	if cfg.RedisAddr != "" {
		redisClient, err = setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to init Redis: %w", err)
		}
		limiter = middleware.NewRedisLimiter(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow)
		log.Info("Using Redis rate limiter")
	} else {
		limiter = middleware.NewLocalLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		log.Info("REDIS_ADDR not set, using in-process rate limiter")
	}

	// 4. 初始化 Store / Service / Hub
	store := memory.NewRoomStore(
		memory.WithRetention(cfg.RetentionWindow),
		memory.WithMaxEvents(cfg.MaxEventsPerRoom),
	)
	relay := service.NewRelayService(store)
	hubInstance := hub.NewHub(relay,
		hub.WithMaxRoutes(cfg.MaxEventsPerRoom),
		hub.WithPruneInterval(cfg.PruneInterval),
	)
	log.Info("Room store, relay service and hub initialized")

	// 5. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, hubInstance, relay, limiter)
	log.Info("Router setup complete")

	// 6. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		RedisClient: redisClient,
		Relay:       relay,
		Hub:         hubInstance,
		Router:      router,
		HttpServer:  httpServer,
	}, nil
}

// NewLogger 按配置创建 logger，同时设置 logrus 全局 logger 以便各包的 logrus.WithFields 生效
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	logrus.SetLevel(level)
	log.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s)", level.String())
	return log
}

// NewRouter 注册中间件和所有路由
func NewRouter(cfg *Config, log *logrus.Logger, h *hub.Hub, relay *service.RelayService, limiter middleware.Limiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	eventHandler := httpHandler.NewEventHandler(h, relay)
	socketHandler := wsHandler.NewWebSocketHandler(h, wsHandler.Options{
		AllowedOrigin:  cfg.CORSAllowedOrigin,
		MaxMessageSize: cfg.WSMaxMessageBytes,
		SendBuffer:     cfg.WSSendBuffer,
	})

	api := router.Group("/api")
	if limiter != nil {
		api.Use(middleware.RateLimit(limiter))
	}
	api.Use(middleware.PruneExpired(h))
	{
		api.GET("/health", eventHandler.Health)
		api.GET("/rooms/:roomCode", eventHandler.RoomInfo)
		api.POST("/rooms/:roomCode/events", eventHandler.Submit)
		api.GET("/rooms/:roomCode/events", eventHandler.Poll)
	}

	// 推送通道：房间通过 join-room 消息加入
	router.GET("/ws", socketHandler.HandleConnection)
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	return router
}

// Start 启动 HTTP 服务器。清理是请求驱动的，没有后台任务。
func (a *App) Start() {
	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用。房间状态只在内存中，不做持久化。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 关闭 HTTP 服务器 (已升级的 WebSocket 连接不受 Shutdown 管理，随进程退出)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		} else {
			a.Log.Info("Redis connection closed.")
		}
	}

	a.Log.Info("Application shutdown complete.")
}
