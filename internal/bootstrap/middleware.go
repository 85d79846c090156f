package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggerMiddleware 记录每个请求。房间接口带上 room_code，轮询带上 since 游标，
// 以便按房间追踪一条事件从提交到被拉取的过程。
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := logrus.Fields{
			"status_code": status,
			"latency_ms":  time.Since(startTime).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"route":       c.FullPath(),
		}
		if roomCode := c.Param("roomCode"); roomCode != "" {
			fields["room_code"] = roomCode
		}
		if since, ok := c.GetQuery("since"); ok {
			fields["since"] = since
		}
		entry := log.WithFields(fields)

		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			entry.Error(errs.String())
			return
		}
		switch {
		case status >= 500:
			entry.Error("Server error")
		case status == http.StatusTooManyRequests:
			entry.Warn("Rate limited")
		case status >= 400:
			entry.Warn("Client error")
		case c.FullPath() == "/ws":
			// 升级后的连接由 hub 记录生命周期，这里只记录握手
			entry.Info("Push connection handshake")
		default:
			// 轮询请求量很大，成功请求记为 debug
			entry.Debug("Request handled")
		}
	}
}

// CORSMiddleware 允许浏览器页面跨域调用轮询接口
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		if allowedOrigin != "*" {
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
