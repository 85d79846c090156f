package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Limiter 判断某个 key (客户端 IP) 的请求是否允许通过
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 进行速率限制。
func RateLimit(limiter Limiter) gin.HandlerFunc {
	if limiter == nil {
		panic("Limiter cannot be nil for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 如果服务在反向代理后面，需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		key := c.ClientIP()

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: Limiter failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			return
		}
		if !allowed {
			logrus.WithFields(logrus.Fields{"client_ip": key, "path": c.Request.URL.Path}).Warn("RateLimit: Limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}

		c.Next()
	}
}

// RedisLimiter 固定窗口计数，多实例部署时共享计数。
type RedisLimiter struct {
	client      *redis.Client
	prefix      string
	maxRequests int
	window      time.Duration
}

// NewRedisLimiter 创建 RedisLimiter
func NewRedisLimiter(client *redis.Client, prefix string, maxRequests int, window time.Duration) *RedisLimiter {
	if client == nil {
		panic("Redis client cannot be nil for RedisLimiter")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RedisLimiter")
	}
	if window <= 0 {
		panic("window duration must be positive for RedisLimiter")
	}
	return &RedisLimiter{client: client, prefix: prefix, maxRequests: maxRequests, window: window}
}

// Allow 在一个 Pipeline 里执行 INCR 和 EXPIRE
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + "ratelimit:" + key

	pipe := l.client.Pipeline()
	incrCmd := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis pipeline failed: %w", err)
	}

	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("failed to read INCR result: %w", err)
	}
	return count <= int64(l.maxRequests), nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter 进程内的按 IP 令牌桶，没有配置 Redis 时使用。
// 长时间不活跃的访客在 Allow 中被顺带清理。
type LocalLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	limit       rate.Limit
	burst       int
	idleTimeout time.Duration
	lastSweep   time.Time
	now         func() time.Time
}

// NewLocalLimiter 每个 window 内允许 maxRequests 个请求，突发上限同为 maxRequests
func NewLocalLimiter(maxRequests int, window time.Duration) *LocalLimiter {
	if maxRequests <= 0 {
		panic("maxRequests must be positive for LocalLimiter")
	}
	if window <= 0 {
		panic("window duration must be positive for LocalLimiter")
	}
	return &LocalLimiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Limit(float64(maxRequests) / window.Seconds()),
		burst:       maxRequests,
		idleTimeout: 5 * time.Minute,
		now:         time.Now,
	}
}

// Allow 实现 Limiter
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTimeout {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idleTimeout {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}
